package workflow

import (
	"context"

	"github.com/xraph/cadence/id"
)

// ListOpts controls pagination and filtering for run list queries.
type ListOpts struct {
	// Limit is the maximum number of runs to return. Zero means no limit.
	Limit int
	// Offset is the number of runs to skip.
	Offset int
	// State filters by run state. Empty means all states.
	State RunState
	// Workflow filters by workflow name. Empty means all workflows.
	Workflow string
}

// Store defines the persistence contract for workflow runs.
type Store interface {
	// CreateRun persists a new run.
	CreateRun(ctx context.Context, run *Run) error

	// GetRun retrieves a run by ID.
	GetRun(ctx context.Context, runID id.RunID) (*Run, error)

	// UpdateRun persists changes to an existing run.
	UpdateRun(ctx context.Context, run *Run) error

	// ListRuns returns runs matching opts, oldest first.
	ListRuns(ctx context.Context, opts ListOpts) ([]*Run, error)
}
