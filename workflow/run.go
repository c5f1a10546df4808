package workflow

import (
	"time"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/id"
)

// RunState represents the lifecycle state of a workflow run.
type RunState string

const (
	// RunStateRunning means a step is executing.
	RunStateRunning RunState = "running"
	// RunStateWaiting means the run is parked on a delay.
	RunStateWaiting RunState = "waiting"
	// RunStateCompleted means every step completed.
	RunStateCompleted RunState = "completed"
	// RunStateFailed means a step failed and later steps were skipped.
	RunStateFailed RunState = "failed"
	// RunStateCancelled means the run's context ended first.
	RunStateCancelled RunState = "cancelled"
)

// Run records one execution of a chain.
type Run struct {
	cadence.Entity

	ID          id.RunID   `json:"id"`
	Workflow    string     `json:"workflow"`
	State       RunState   `json:"state"`
	Step        int        `json:"step"`
	StepName    string     `json:"step_name,omitempty"`
	TickAt      time.Time  `json:"tick_at"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	ResumeAt    *time.Time `json:"resume_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
