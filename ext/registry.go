package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/cadence/task"
	"github.com/xraph/cadence/tick"
	"github.com/xraph/cadence/workflow"
)

// entry pairs a hook with the extension name captured at registration.
type entry[H any] struct {
	name string
	hook H
}

// Registry holds registered extensions and dispatches lifecycle events to
// them. Extensions are sorted into per-hook slices at registration time so
// emit calls only visit the ones that care.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	tickFired    []entry[TickFired]
	taskEnqueued []entry[TaskEnqueued]
	pipeFailed   []entry[PipeFailed]

	taskStarted   []entry[TaskStarted]
	taskCompleted []entry[TaskCompleted]
	taskRetrying  []entry[TaskRetrying]
	taskFailed    []entry[TaskFailed]

	workflowStarted       []entry[WorkflowStarted]
	workflowStepCompleted []entry[WorkflowStepCompleted]
	workflowStepFailed    []entry[WorkflowStepFailed]
	workflowCompleted     []entry[WorkflowCompleted]
	workflowFailed        []entry[WorkflowFailed]

	shutdown []entry[Shutdown]
}

// NewRegistry creates an extension registry. A nil logger uses
// slog.Default().
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

func add[H any](list []entry[H], e Extension) []entry[H] {
	if h, ok := e.(H); ok {
		list = append(list, entry[H]{name: e.Name(), hook: h})
	}
	return list
}

// Register adds an extension. Extensions are notified in registration
// order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)

	r.tickFired = add(r.tickFired, e)
	r.taskEnqueued = add(r.taskEnqueued, e)
	r.pipeFailed = add(r.pipeFailed, e)
	r.taskStarted = add(r.taskStarted, e)
	r.taskCompleted = add(r.taskCompleted, e)
	r.taskRetrying = add(r.taskRetrying, e)
	r.taskFailed = add(r.taskFailed, e)
	r.workflowStarted = add(r.workflowStarted, e)
	r.workflowStepCompleted = add(r.workflowStepCompleted, e)
	r.workflowStepFailed = add(r.workflowStepFailed, e)
	r.workflowCompleted = add(r.workflowCompleted, e)
	r.workflowFailed = add(r.workflowFailed, e)
	r.shutdown = add(r.shutdown, e)
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Stream and pipe emitters
// ──────────────────────────────────────────────────

// EmitTickFired notifies TickFired hooks.
func (r *Registry) EmitTickFired(ctx context.Context, t tick.Tick) {
	for _, e := range r.tickFired {
		r.check("OnTickFired", e.name, e.hook.OnTickFired(ctx, t))
	}
}

// EmitTaskEnqueued notifies TaskEnqueued hooks.
func (r *Registry) EmitTaskEnqueued(ctx context.Context, t *task.Task) {
	for _, e := range r.taskEnqueued {
		r.check("OnTaskEnqueued", e.name, e.hook.OnTaskEnqueued(ctx, t))
	}
}

// EmitPipeFailed notifies PipeFailed hooks.
func (r *Registry) EmitPipeFailed(ctx context.Context, stream string, pipeErr error) {
	for _, e := range r.pipeFailed {
		r.check("OnPipeFailed", e.name, e.hook.OnPipeFailed(ctx, stream, pipeErr))
	}
}

// ──────────────────────────────────────────────────
// Task emitters
// ──────────────────────────────────────────────────

// EmitTaskStarted notifies TaskStarted hooks.
func (r *Registry) EmitTaskStarted(ctx context.Context, t *task.Task) {
	for _, e := range r.taskStarted {
		r.check("OnTaskStarted", e.name, e.hook.OnTaskStarted(ctx, t))
	}
}

// EmitTaskCompleted notifies TaskCompleted hooks.
func (r *Registry) EmitTaskCompleted(ctx context.Context, t *task.Task, elapsed time.Duration) {
	for _, e := range r.taskCompleted {
		r.check("OnTaskCompleted", e.name, e.hook.OnTaskCompleted(ctx, t, elapsed))
	}
}

// EmitTaskRetrying notifies TaskRetrying hooks.
func (r *Registry) EmitTaskRetrying(ctx context.Context, t *task.Task, attempt int, taskErr error) {
	for _, e := range r.taskRetrying {
		r.check("OnTaskRetrying", e.name, e.hook.OnTaskRetrying(ctx, t, attempt, taskErr))
	}
}

// EmitTaskFailed notifies TaskFailed hooks.
func (r *Registry) EmitTaskFailed(ctx context.Context, t *task.Task, taskErr error) {
	for _, e := range r.taskFailed {
		r.check("OnTaskFailed", e.name, e.hook.OnTaskFailed(ctx, t, taskErr))
	}
}

// ──────────────────────────────────────────────────
// Workflow emitters
// ──────────────────────────────────────────────────

// EmitWorkflowStarted notifies WorkflowStarted hooks.
func (r *Registry) EmitWorkflowStarted(ctx context.Context, run *workflow.Run) {
	for _, e := range r.workflowStarted {
		r.check("OnWorkflowStarted", e.name, e.hook.OnWorkflowStarted(ctx, run))
	}
}

// EmitWorkflowStepCompleted notifies WorkflowStepCompleted hooks.
func (r *Registry) EmitWorkflowStepCompleted(ctx context.Context, run *workflow.Run, stepName string, elapsed time.Duration) {
	for _, e := range r.workflowStepCompleted {
		r.check("OnWorkflowStepCompleted", e.name, e.hook.OnWorkflowStepCompleted(ctx, run, stepName, elapsed))
	}
}

// EmitWorkflowStepFailed notifies WorkflowStepFailed hooks.
func (r *Registry) EmitWorkflowStepFailed(ctx context.Context, run *workflow.Run, stepName string, stepErr error) {
	for _, e := range r.workflowStepFailed {
		r.check("OnWorkflowStepFailed", e.name, e.hook.OnWorkflowStepFailed(ctx, run, stepName, stepErr))
	}
}

// EmitWorkflowCompleted notifies WorkflowCompleted hooks.
func (r *Registry) EmitWorkflowCompleted(ctx context.Context, run *workflow.Run, elapsed time.Duration) {
	for _, e := range r.workflowCompleted {
		r.check("OnWorkflowCompleted", e.name, e.hook.OnWorkflowCompleted(ctx, run, elapsed))
	}
}

// EmitWorkflowFailed notifies WorkflowFailed hooks.
func (r *Registry) EmitWorkflowFailed(ctx context.Context, run *workflow.Run, runErr error) {
	for _, e := range r.workflowFailed {
		r.check("OnWorkflowFailed", e.name, e.hook.OnWorkflowFailed(ctx, run, runErr))
	}
}

// EmitShutdown notifies Shutdown hooks.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		r.check("OnShutdown", e.name, e.hook.OnShutdown(ctx))
	}
}

// check logs a hook error. Hook errors never block the pipeline.
func (r *Registry) check(hook, extName string, err error) {
	if err == nil {
		return
	}
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
