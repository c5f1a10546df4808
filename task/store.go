package task

import (
	"context"
	"time"

	"github.com/xraph/cadence/id"
)

// ListOpts controls pagination and filtering for task list queries.
type ListOpts struct {
	// Limit is the maximum number of tasks to return. Zero means no limit.
	Limit int
	// Offset is the number of tasks to skip.
	Offset int
	// Queue filters by queue name. Empty means all queues.
	Queue string
	// State filters by state. Empty means all states.
	State State
}

// CountOpts controls filtering for task count queries.
type CountOpts struct {
	// Queue filters by queue name. Empty means all queues.
	Queue string
	// State filters by state. Empty means all states.
	State State
}

// Store defines the persistence contract for tasks. The store is the only
// writer of task state: every transition goes through one of its methods,
// and a transition from the wrong state fails with cadence.ErrInvalidState.
//
// Fetch order is priority descending, then RunAt ascending, then ID
// ascending, so tasks piped from one stream are consumed in firing order.
type Store interface {
	// EnqueueTask persists a new task in pending state.
	EnqueueTask(ctx context.Context, t *Task) error

	// FetchTasks atomically claims up to limit pending tasks from the given
	// queues for workerID, moves them to running and returns them.
	FetchTasks(ctx context.Context, queues []string, limit int, workerID id.WorkerID) ([]*Task, error)

	// GetTask retrieves a task by ID.
	GetTask(ctx context.Context, taskID id.TaskID) (*Task, error)

	// CompleteTask moves a running task to completed.
	CompleteTask(ctx context.Context, taskID id.TaskID, attempts int) error

	// FailTask moves a running task to failed, recording the final error.
	FailTask(ctx context.Context, taskID id.TaskID, attempts int, errMsg string) error

	// ReleaseTask returns a running task to pending without counting an
	// attempt, e.g. when a worker stops before running it.
	ReleaseTask(ctx context.Context, taskID id.TaskID) error

	// HeartbeatTask records that workerID is still running the task.
	HeartbeatTask(ctx context.Context, taskID id.TaskID, workerID id.WorkerID) error

	// ReapStaleTasks returns running tasks whose last heartbeat is older
	// than threshold to pending and reports how many were released.
	ReapStaleTasks(ctx context.Context, threshold time.Duration) (int, error)

	// ListTasks returns tasks matching opts in fetch order.
	ListTasks(ctx context.Context, opts ListOpts) ([]*Task, error)

	// CountTasks returns the number of tasks matching opts.
	CountTasks(ctx context.Context, opts CountOpts) (int64, error)

	// DeleteTask removes a task by ID.
	DeleteTask(ctx context.Context, taskID id.TaskID) error
}
