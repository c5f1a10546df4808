package ext

import (
	"context"
	"time"

	"github.com/xraph/cadence/task"
	"github.com/xraph/cadence/tick"
	"github.com/xraph/cadence/workflow"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Stream and pipe hooks
// ──────────────────────────────────────────────────

// TickFired is called each time a stream fires.
type TickFired interface {
	OnTickFired(ctx context.Context, t tick.Tick) error
}

// TaskEnqueued is called after a pipe persists a tick as a task.
type TaskEnqueued interface {
	OnTaskEnqueued(ctx context.Context, t *task.Task) error
}

// PipeFailed is called when a pipe gives up writing a tick. The pipe halts
// after this hook.
type PipeFailed interface {
	OnPipeFailed(ctx context.Context, stream string, err error) error
}

// ──────────────────────────────────────────────────
// Task execution hooks
// ──────────────────────────────────────────────────

// TaskStarted is called when a worker begins a task.
type TaskStarted interface {
	OnTaskStarted(ctx context.Context, t *task.Task) error
}

// TaskCompleted is called after the handler succeeds.
type TaskCompleted interface {
	OnTaskCompleted(ctx context.Context, t *task.Task, elapsed time.Duration) error
}

// TaskRetrying is called when an attempt fails and another will follow.
type TaskRetrying interface {
	OnTaskRetrying(ctx context.Context, t *task.Task, attempt int, err error) error
}

// TaskFailed is called when the final attempt fails.
type TaskFailed interface {
	OnTaskFailed(ctx context.Context, t *task.Task, err error) error
}

// ──────────────────────────────────────────────────
// Workflow hooks
// ──────────────────────────────────────────────────

// WorkflowStarted is called when a workflow run begins.
type WorkflowStarted interface {
	OnWorkflowStarted(ctx context.Context, r *workflow.Run) error
}

// WorkflowStepCompleted is called after a step completes.
type WorkflowStepCompleted interface {
	OnWorkflowStepCompleted(ctx context.Context, r *workflow.Run, stepName string, elapsed time.Duration) error
}

// WorkflowStepFailed is called when a step fails. Later steps are skipped.
type WorkflowStepFailed interface {
	OnWorkflowStepFailed(ctx context.Context, r *workflow.Run, stepName string, err error) error
}

// WorkflowCompleted is called after every step has completed.
type WorkflowCompleted interface {
	OnWorkflowCompleted(ctx context.Context, r *workflow.Run, elapsed time.Duration) error
}

// WorkflowFailed is called when a run ends without completing.
type WorkflowFailed interface {
	OnWorkflowFailed(ctx context.Context, r *workflow.Run, err error) error
}

// ──────────────────────────────────────────────────
// Other hooks
// ──────────────────────────────────────────────────

// Shutdown is called when the engine stops.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
