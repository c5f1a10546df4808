// Package task defines the durable unit of work produced from a tick, the
// persistence contract for it, and the codecs used to carry the tick inside
// the task payload.
package task

import (
	"time"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/id"
)

// State represents the lifecycle state of a task.
//
//	pending ──fetch──> running ──complete──> completed
//	   ^                  │
//	   └──release/reap────┤
//	                      └──fail──> failed
type State string

const (
	// StatePending means the task is waiting to be fetched by a worker.
	StatePending State = "pending"
	// StateRunning means a worker has claimed the task.
	StateRunning State = "running"
	// StateCompleted means the handler succeeded.
	StateCompleted State = "completed"
	// StateFailed means the handler failed on its final attempt.
	StateFailed State = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Task is a tick persisted for later consumption by a worker.
type Task struct {
	cadence.Entity

	ID          id.TaskID     `json:"id"`
	Name        string        `json:"name"`
	Queue       string        `json:"queue"`
	Payload     []byte        `json:"payload"`
	Codec       string        `json:"codec"`
	State       State         `json:"state"`
	Priority    int           `json:"priority"`
	Attempts    int           `json:"attempts"`
	LastError   string        `json:"last_error,omitempty"`
	WorkerID    id.WorkerID   `json:"worker_id,omitempty"`
	RunAt       time.Time     `json:"run_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	HeartbeatAt *time.Time    `json:"heartbeat_at,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
}
