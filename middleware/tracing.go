package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/cadence/task"
)

// tracerName is the instrumentation scope name for cadence tracing.
const tracerName = "github.com/xraph/cadence"

// Tracing returns middleware that wraps each attempt in an OpenTelemetry
// span using the global TracerProvider. Without a configured provider the
// noop tracer is used.
//
// Span attributes: cadence.task.id, cadence.schedule, cadence.queue,
// cadence.attempt, cadence.run_at.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, t *task.Task, next Handler) error {
		ctx, span := tracer.Start(ctx, "cadence.task.execute",
			trace.WithAttributes(
				attribute.String("cadence.task.id", t.ID.String()),
				attribute.String("cadence.schedule", t.Name),
				attribute.String("cadence.queue", t.Queue),
				attribute.Int("cadence.attempt", t.Attempts),
				attribute.String("cadence.run_at", t.RunAt.Format(time.RFC3339Nano)),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
