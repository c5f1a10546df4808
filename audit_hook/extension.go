package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/cadence/ext"
	"github.com/xraph/cadence/task"
	"github.com/xraph/cadence/tick"
	"github.com/xraph/cadence/workflow"
)

// Compile-time interface checks.
var (
	_ ext.Extension             = (*Extension)(nil)
	_ ext.TickFired             = (*Extension)(nil)
	_ ext.TaskEnqueued          = (*Extension)(nil)
	_ ext.PipeFailed            = (*Extension)(nil)
	_ ext.TaskStarted           = (*Extension)(nil)
	_ ext.TaskCompleted         = (*Extension)(nil)
	_ ext.TaskRetrying          = (*Extension)(nil)
	_ ext.TaskFailed            = (*Extension)(nil)
	_ ext.WorkflowStarted       = (*Extension)(nil)
	_ ext.WorkflowStepCompleted = (*Extension)(nil)
	_ ext.WorkflowStepFailed    = (*Extension)(nil)
	_ ext.WorkflowCompleted     = (*Extension)(nil)
	_ ext.WorkflowFailed        = (*Extension)(nil)
)

// Recorder persists audit events.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one audit record.
type AuditEvent struct {
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc adapts a plain function to Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record calls f.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Severity levels.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension records Cadence lifecycle events through a [Recorder].
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that records through r.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Stream and pipe hooks ───────────────────────────

// OnTickFired implements ext.TickFired.
func (e *Extension) OnTickFired(ctx context.Context, t tick.Tick) error {
	severity := SeverityInfo
	if t.Anomaly {
		severity = SeverityWarning
	}
	return e.record(ctx, ActionTickFired, severity, OutcomeSuccess,
		ResourceStream, t.Stream, CategoryStream, nil,
		"seq", t.Seq,
		"timestamp", t.Timestamp.Format(time.RFC3339Nano),
		"timezone", t.Timezone,
		"anomaly", t.Anomaly,
	)
}

// OnTaskEnqueued implements ext.TaskEnqueued.
func (e *Extension) OnTaskEnqueued(ctx context.Context, t *task.Task) error {
	return e.record(ctx, ActionTaskEnqueued, SeverityInfo, OutcomeSuccess,
		ResourceTask, t.ID.String(), CategoryTask, nil,
		"task_name", t.Name,
		"queue", t.Queue,
		"run_at", t.RunAt.Format(time.RFC3339Nano),
	)
}

// OnPipeFailed implements ext.PipeFailed.
func (e *Extension) OnPipeFailed(ctx context.Context, stream string, pipeErr error) error {
	return e.record(ctx, ActionPipeFailed, SeverityCritical, OutcomeFailure,
		ResourceStream, stream, CategoryStream, pipeErr,
	)
}

// ── Task hooks ──────────────────────────────────────

// OnTaskStarted implements ext.TaskStarted.
func (e *Extension) OnTaskStarted(ctx context.Context, t *task.Task) error {
	kv := []any{
		"task_name", t.Name,
		"queue", t.Queue,
	}
	if !t.WorkerID.IsNil() {
		kv = append(kv, "worker_id", t.WorkerID.String())
	}
	return e.record(ctx, ActionTaskStarted, SeverityInfo, OutcomeSuccess,
		ResourceTask, t.ID.String(), CategoryTask, nil, kv...)
}

// OnTaskCompleted implements ext.TaskCompleted.
func (e *Extension) OnTaskCompleted(ctx context.Context, t *task.Task, elapsed time.Duration) error {
	return e.record(ctx, ActionTaskCompleted, SeverityInfo, OutcomeSuccess,
		ResourceTask, t.ID.String(), CategoryTask, nil,
		"task_name", t.Name,
		"queue", t.Queue,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnTaskRetrying implements ext.TaskRetrying.
func (e *Extension) OnTaskRetrying(ctx context.Context, t *task.Task, attempt int, taskErr error) error {
	return e.record(ctx, ActionTaskRetrying, SeverityWarning, OutcomeFailure,
		ResourceTask, t.ID.String(), CategoryTask, taskErr,
		"task_name", t.Name,
		"queue", t.Queue,
		"attempt", attempt,
	)
}

// OnTaskFailed implements ext.TaskFailed.
func (e *Extension) OnTaskFailed(ctx context.Context, t *task.Task, taskErr error) error {
	return e.record(ctx, ActionTaskFailed, SeverityCritical, OutcomeFailure,
		ResourceTask, t.ID.String(), CategoryTask, taskErr,
		"task_name", t.Name,
		"queue", t.Queue,
		"attempts", t.Attempts,
	)
}

// ── Workflow hooks ──────────────────────────────────

// OnWorkflowStarted implements ext.WorkflowStarted.
func (e *Extension) OnWorkflowStarted(ctx context.Context, r *workflow.Run) error {
	return e.record(ctx, ActionWorkflowStarted, SeverityInfo, OutcomeSuccess,
		ResourceWorkflow, r.ID.String(), CategoryWorkflow, nil,
		"workflow", r.Workflow,
		"tick_at", r.TickAt.Format(time.RFC3339Nano),
	)
}

// OnWorkflowStepCompleted implements ext.WorkflowStepCompleted.
func (e *Extension) OnWorkflowStepCompleted(ctx context.Context, r *workflow.Run, stepName string, elapsed time.Duration) error {
	return e.record(ctx, ActionWorkflowStepCompleted, SeverityInfo, OutcomeSuccess,
		ResourceWorkflow, r.ID.String(), CategoryWorkflow, nil,
		"workflow", r.Workflow,
		"step_name", stepName,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnWorkflowStepFailed implements ext.WorkflowStepFailed.
func (e *Extension) OnWorkflowStepFailed(ctx context.Context, r *workflow.Run, stepName string, stepErr error) error {
	return e.record(ctx, ActionWorkflowStepFailed, SeverityWarning, OutcomeFailure,
		ResourceWorkflow, r.ID.String(), CategoryWorkflow, stepErr,
		"workflow", r.Workflow,
		"step_name", stepName,
	)
}

// OnWorkflowCompleted implements ext.WorkflowCompleted.
func (e *Extension) OnWorkflowCompleted(ctx context.Context, r *workflow.Run, elapsed time.Duration) error {
	return e.record(ctx, ActionWorkflowCompleted, SeverityInfo, OutcomeSuccess,
		ResourceWorkflow, r.ID.String(), CategoryWorkflow, nil,
		"workflow", r.Workflow,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnWorkflowFailed implements ext.WorkflowFailed.
func (e *Extension) OnWorkflowFailed(ctx context.Context, r *workflow.Run, runErr error) error {
	return e.record(ctx, ActionWorkflowFailed, SeverityCritical, OutcomeFailure,
		ResourceWorkflow, r.ID.String(), CategoryWorkflow, runErr,
		"workflow", r.Workflow,
		"step", r.Step,
	)
}

// ── Internal helpers ────────────────────────────────

// record builds and sends an audit event if the action is enabled. kvPairs
// become the event metadata. Recorder failures are logged and swallowed.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = reason
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit record failed",
			slog.String("action", action),
			slog.String("resource_id", resourceID),
			slog.String("error", recErr.Error()),
		)
	}
	return nil
}
