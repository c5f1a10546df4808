package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionTickFired             = "tick.fired"
	ActionTaskEnqueued          = "task.enqueued"
	ActionPipeFailed            = "pipe.failed"
	ActionTaskStarted           = "task.started"
	ActionTaskCompleted         = "task.completed"
	ActionTaskRetrying          = "task.retrying"
	ActionTaskFailed            = "task.failed"
	ActionWorkflowStarted       = "workflow.started"
	ActionWorkflowStepCompleted = "workflow.step_completed"
	ActionWorkflowStepFailed    = "workflow.step_failed"
	ActionWorkflowCompleted     = "workflow.completed"
	ActionWorkflowFailed        = "workflow.failed"
)

// Audit event categories group related actions.
const (
	CategoryStream   = "cadence.stream"
	CategoryTask     = "cadence.task"
	CategoryWorkflow = "cadence.workflow"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceStream   = "stream"
	ResourceTask     = "task"
	ResourceWorkflow = "workflow_run"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionTickFired,
		ActionTaskEnqueued,
		ActionPipeFailed,
		ActionTaskStarted,
		ActionTaskCompleted,
		ActionTaskRetrying,
		ActionTaskFailed,
		ActionWorkflowStarted,
		ActionWorkflowStepCompleted,
		ActionWorkflowStepFailed,
		ActionWorkflowCompleted,
		ActionWorkflowFailed,
	}
}
