package observability_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/xraph/cadence/ext"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/observability"
	"github.com/xraph/cadence/task"
	"github.com/xraph/cadence/tick"
	"github.com/xraph/cadence/workflow"
)

func newTestExtension() (*observability.MetricsExtension, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return observability.NewMetricsExtensionWithMeter(mp.Meter("test")), reader
}

// counterValue sums every data point of the named counter.
func counterValue(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s: data type %T, want Sum[int64]", name, m.Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func newTestTask() *task.Task {
	return &task.Task{
		ID:    id.NewTaskID(),
		Name:  "daily-report",
		Queue: "default",
	}
}

func newTestRun() *workflow.Run {
	return &workflow.Run{
		ID:       id.NewRunID(),
		Workflow: "digest",
	}
}

func TestMetricsExtension_Name(t *testing.T) {
	e, _ := newTestExtension()
	if e.Name() != "observability-metrics" {
		t.Errorf("expected name %q, got %q", "observability-metrics", e.Name())
	}
}

func TestMetricsExtension_TickFired(t *testing.T) {
	e, reader := newTestExtension()
	ctx := context.Background()

	_ = e.OnTickFired(ctx, tick.Tick{Stream: "report", Seq: 1})
	_ = e.OnTickFired(ctx, tick.Tick{Stream: "report", Seq: 2, Anomaly: true})

	if got := counterValue(t, reader, "cadence.tick.fired"); got != 2 {
		t.Errorf("cadence.tick.fired = %d, want 2", got)
	}
	if got := counterValue(t, reader, "cadence.tick.anomalies"); got != 1 {
		t.Errorf("cadence.tick.anomalies = %d, want 1", got)
	}
}

func TestMetricsExtension_TaskHooks(t *testing.T) {
	e, reader := newTestExtension()
	ctx := context.Background()
	tk := newTestTask()

	tests := []struct {
		name   string
		fire   func() error
		metric string
	}{
		{"enqueued", func() error { return e.OnTaskEnqueued(ctx, tk) }, "cadence.task.enqueued"},
		{"completed", func() error { return e.OnTaskCompleted(ctx, tk, time.Second) }, "cadence.task.completed"},
		{"failed", func() error { return e.OnTaskFailed(ctx, tk, errors.New("boom")) }, "cadence.task.failed"},
		{"retrying", func() error { return e.OnTaskRetrying(ctx, tk, 1, errors.New("again")) }, "cadence.task.retried"},
		{"pipe", func() error { return e.OnPipeFailed(ctx, "report", errors.New("disk")) }, "cadence.pipe.failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fire(); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := counterValue(t, reader, tt.metric); got != 1 {
				t.Errorf("%s = %d, want 1", tt.metric, got)
			}
		})
	}
}

func TestMetricsExtension_WorkflowHooks(t *testing.T) {
	e, reader := newTestExtension()
	ctx := context.Background()
	r := newTestRun()

	_ = e.OnWorkflowStarted(ctx, r)
	_ = e.OnWorkflowCompleted(ctx, r, time.Second)
	_ = e.OnWorkflowStarted(ctx, r)
	_ = e.OnWorkflowFailed(ctx, r, errors.New("step"))

	if got := counterValue(t, reader, "cadence.workflow.started"); got != 2 {
		t.Errorf("started = %d, want 2", got)
	}
	if got := counterValue(t, reader, "cadence.workflow.completed"); got != 1 {
		t.Errorf("completed = %d, want 1", got)
	}
	if got := counterValue(t, reader, "cadence.workflow.failed"); got != 1 {
		t.Errorf("failed = %d, want 1", got)
	}
}

func TestMetricsExtension_ThroughRegistry(t *testing.T) {
	e, reader := newTestExtension()
	reg := ext.NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
	reg.Register(e)

	reg.EmitTaskCompleted(context.Background(), newTestTask(), time.Millisecond)

	if got := counterValue(t, reader, "cadence.task.completed"); got != 1 {
		t.Errorf("cadence.task.completed = %d, want 1", got)
	}
}
