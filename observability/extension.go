package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/cadence/ext"
	"github.com/xraph/cadence/task"
	"github.com/xraph/cadence/tick"
	"github.com/xraph/cadence/workflow"
)

// Compile-time interface checks.
var (
	_ ext.Extension         = (*MetricsExtension)(nil)
	_ ext.TickFired         = (*MetricsExtension)(nil)
	_ ext.TaskEnqueued      = (*MetricsExtension)(nil)
	_ ext.PipeFailed        = (*MetricsExtension)(nil)
	_ ext.TaskCompleted     = (*MetricsExtension)(nil)
	_ ext.TaskFailed        = (*MetricsExtension)(nil)
	_ ext.TaskRetrying      = (*MetricsExtension)(nil)
	_ ext.WorkflowStarted   = (*MetricsExtension)(nil)
	_ ext.WorkflowCompleted = (*MetricsExtension)(nil)
	_ ext.WorkflowFailed    = (*MetricsExtension)(nil)
)

const meterName = "github.com/xraph/cadence/observability"

// MetricsExtension records system-wide lifecycle counters. Register it on
// an ext.Registry to track tick rates, anomalies, pipe faults, task
// outcomes and workflow runs.
type MetricsExtension struct {
	TicksFired        metric.Int64Counter
	TickAnomalies     metric.Int64Counter
	TasksEnqueued     metric.Int64Counter
	PipeFailures      metric.Int64Counter
	TasksCompleted    metric.Int64Counter
	TasksFailed       metric.Int64Counter
	TasksRetried      metric.Int64Counter
	WorkflowStarted   metric.Int64Counter
	WorkflowCompleted metric.Int64Counter
	WorkflowFailed    metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension on the global
// MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the
// provided meter. Instruments that fail to register fall back to noops.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	counter := func(name, desc string) metric.Int64Counter {
		c, _ := meter.Int64Counter(name, metric.WithDescription(desc))
		return c
	}
	return &MetricsExtension{
		TicksFired:        counter("cadence.tick.fired", "Ticks emitted by schedule streams"),
		TickAnomalies:     counter("cadence.tick.anomalies", "Ticks fired late because the schedule returned a past instant"),
		TasksEnqueued:     counter("cadence.task.enqueued", "Ticks persisted as tasks"),
		PipeFailures:      counter("cadence.pipe.failed", "Pipes halted by a write fault"),
		TasksCompleted:    counter("cadence.task.completed", "Tasks whose handler succeeded"),
		TasksFailed:       counter("cadence.task.failed", "Tasks that failed every attempt"),
		TasksRetried:      counter("cadence.task.retried", "Handler attempts followed by a retry"),
		WorkflowStarted:   counter("cadence.workflow.started", "Workflow runs started"),
		WorkflowCompleted: counter("cadence.workflow.completed", "Workflow runs completed"),
		WorkflowFailed:    counter("cadence.workflow.failed", "Workflow runs failed or cancelled"),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func schedule(name string) metric.AddOption {
	return metric.WithAttributes(attribute.String("schedule", name))
}

// ── Stream and pipe hooks ───────────────────────────

// OnTickFired implements ext.TickFired.
func (m *MetricsExtension) OnTickFired(ctx context.Context, t tick.Tick) error {
	m.TicksFired.Add(ctx, 1, schedule(t.Stream))
	if t.Anomaly {
		m.TickAnomalies.Add(ctx, 1, schedule(t.Stream))
	}
	return nil
}

// OnTaskEnqueued implements ext.TaskEnqueued.
func (m *MetricsExtension) OnTaskEnqueued(ctx context.Context, t *task.Task) error {
	m.TasksEnqueued.Add(ctx, 1, schedule(t.Name))
	return nil
}

// OnPipeFailed implements ext.PipeFailed.
func (m *MetricsExtension) OnPipeFailed(ctx context.Context, stream string, _ error) error {
	m.PipeFailures.Add(ctx, 1, schedule(stream))
	return nil
}

// ── Task hooks ──────────────────────────────────────

// OnTaskCompleted implements ext.TaskCompleted.
func (m *MetricsExtension) OnTaskCompleted(ctx context.Context, t *task.Task, _ time.Duration) error {
	m.TasksCompleted.Add(ctx, 1, schedule(t.Name))
	return nil
}

// OnTaskFailed implements ext.TaskFailed.
func (m *MetricsExtension) OnTaskFailed(ctx context.Context, t *task.Task, _ error) error {
	m.TasksFailed.Add(ctx, 1, schedule(t.Name))
	return nil
}

// OnTaskRetrying implements ext.TaskRetrying.
func (m *MetricsExtension) OnTaskRetrying(ctx context.Context, t *task.Task, _ int, _ error) error {
	m.TasksRetried.Add(ctx, 1, schedule(t.Name))
	return nil
}

// ── Workflow hooks ──────────────────────────────────

// OnWorkflowStarted implements ext.WorkflowStarted.
func (m *MetricsExtension) OnWorkflowStarted(ctx context.Context, r *workflow.Run) error {
	m.WorkflowStarted.Add(ctx, 1, workflowAttr(r))
	return nil
}

// OnWorkflowCompleted implements ext.WorkflowCompleted.
func (m *MetricsExtension) OnWorkflowCompleted(ctx context.Context, r *workflow.Run, _ time.Duration) error {
	m.WorkflowCompleted.Add(ctx, 1, workflowAttr(r))
	return nil
}

// OnWorkflowFailed implements ext.WorkflowFailed.
func (m *MetricsExtension) OnWorkflowFailed(ctx context.Context, r *workflow.Run, _ error) error {
	m.WorkflowFailed.Add(ctx, 1, workflowAttr(r))
	return nil
}

func workflowAttr(r *workflow.Run) metric.AddOption {
	return metric.WithAttributes(attribute.String("workflow", r.Workflow))
}
