// Package ext defines the extension system for Cadence.
//
// Extensions are notified of lifecycle events and can react to them by
// recording metrics, writing audit logs, paging someone, and so on.
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
//
// # Implementing an Extension
//
//	type Pager struct{}
//
//	func (p *Pager) Name() string { return "pager" }
//
//	func (p *Pager) OnTaskFailed(ctx context.Context, t *task.Task, err error) error {
//	    return page(ctx, t.Name, err)
//	}
//
// # Hooks
//
//   - [TickFired], [TaskEnqueued], [PipeFailed]: stream and pipe
//   - [TaskStarted], [TaskCompleted], [TaskRetrying], [TaskFailed]: execution
//   - [WorkflowStarted], [WorkflowStepCompleted], [WorkflowStepFailed],
//     [WorkflowCompleted], [WorkflowFailed]: workflow runs
//   - [Shutdown]: engine stop
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook. Hook errors are logged, never
// propagated.
package ext
