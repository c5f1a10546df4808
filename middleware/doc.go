// Package middleware provides composable middleware around handler
// attempts.
//
// A [Middleware] wraps one attempt of a task: when a worker retries, the
// whole chain runs again for the next attempt. Middleware are composed
// with [Chain] and applied right-to-left, so the first middleware in the
// slice is the outermost wrapper.
//
//	// logging → recover → handler
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging] logs schedule, queue, attempt and outcome
//   - [Recover] converts handler panics to errors
//   - [Timeout] applies the task's Timeout to the attempt context
//   - [SkipStale] drops tasks whose firing time is too far in the past
//   - [Tracing] wraps the attempt in an OpenTelemetry span
//   - [Metrics] records attempt duration and outcome counters
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, t *task.Task, next middleware.Handler) error {
//	        // pre-processing
//	        err := next(ctx)
//	        // post-processing
//	        return err
//	    }
//	}
package middleware
