package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/cadence/task"
)

// meterName is the instrumentation scope name for cadence metrics.
const meterName = "github.com/xraph/cadence"

// Metrics returns middleware that records per-attempt metrics using the
// global MeterProvider.
//
// Instruments:
//   - cadence.task.duration (Float64Histogram): attempt time in seconds,
//     with attributes: schedule, queue, status ("ok" or "error")
//   - cadence.task.executions (Int64Counter): total attempts,
//     with attributes: schedule, queue, status ("ok" or "error")
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter returns metrics middleware using the provided meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// On error the API hands back noop instruments.
	duration, _ := meter.Float64Histogram(
		"cadence.task.duration",
		metric.WithDescription("Duration of handler attempts in seconds"),
		metric.WithUnit("s"),
	)
	executions, _ := meter.Int64Counter(
		"cadence.task.executions",
		metric.WithDescription("Total number of handler attempts"),
		metric.WithUnit("{execution}"),
	)

	return func(ctx context.Context, t *task.Task, next Handler) error {
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		status := "ok"
		if err != nil {
			status = "error"
		}

		attrs := metric.WithAttributes(
			attribute.String("schedule", t.Name),
			attribute.String("queue", t.Queue),
			attribute.String("status", status),
		)
		duration.Record(ctx, elapsed, attrs)
		executions.Add(ctx, 1, attrs)

		return err
	}
}
