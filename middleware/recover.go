package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/cadence/task"
)

// Recover returns middleware that recovers from panics in the handler chain.
// Panics are converted to errors and logged with a stack trace.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, t *task.Task, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("task handler panicked",
					slog.String("schedule", t.Name),
					slog.String("task_id", t.ID.String()),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				retErr = fmt.Errorf("panic in schedule %s: %v", t.Name, r)
			}
		}()
		return next(ctx)
	}
}
