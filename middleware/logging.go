package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/cadence/task"
)

// Logging returns middleware that logs the start and outcome of each
// attempt.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, t *task.Task, next Handler) error {
		logger.Info("task started",
			slog.String("schedule", t.Name),
			slog.String("task_id", t.ID.String()),
			slog.String("queue", t.Queue),
			slog.Int("attempt", t.Attempts),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("task attempt failed",
				slog.String("schedule", t.Name),
				slog.String("task_id", t.ID.String()),
				slog.Int("attempt", t.Attempts),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("task completed",
				slog.String("schedule", t.Name),
				slog.String("task_id", t.ID.String()),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
