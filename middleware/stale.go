package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/cadence/task"
)

// SkipStale returns middleware that completes a task without running the
// handler when its firing time is more than maxAge in the past. It is
// meant for piped workers that restart onto a backlog and only care about
// recent firings. A non-positive maxAge disables the check.
func SkipStale(maxAge time.Duration, logger *slog.Logger) Middleware {
	return func(ctx context.Context, t *task.Task, next Handler) error {
		if maxAge <= 0 || t.RunAt.IsZero() {
			return next(ctx)
		}
		if age := time.Since(t.RunAt); age > maxAge {
			logger.Info("skipping stale task",
				slog.String("schedule", t.Name),
				slog.String("task_id", t.ID.String()),
				slog.Duration("age", age),
			)
			return nil
		}
		return next(ctx)
	}
}
