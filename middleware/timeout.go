package middleware

import (
	"context"
	"log/slog"

	"github.com/xraph/cadence/task"
)

// Timeout returns middleware that bounds each attempt by the task's
// Timeout. A zero Timeout leaves the context untouched.
func Timeout(logger *slog.Logger) Middleware {
	return func(ctx context.Context, t *task.Task, next Handler) error {
		if t.Timeout > 0 {
			logger.Debug("task timeout set",
				slog.String("task_id", t.ID.String()),
				slog.Duration("timeout", t.Timeout),
			)
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, t.Timeout)
			defer cancel()
		}
		return next(ctx)
	}
}
