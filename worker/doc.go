// Package worker runs tick handlers on a bounded pool.
//
// A [Worker] is assembled with a [Builder]: pick a backend (a direct
// stream or a store-backed pipe), optionally inject shared data and a
// retry policy, then bind a [Handler]:
//
//	w, err := worker.NewBuilder[*Config]("daily-report").
//	    Backend(pipe.Direct(stream)).
//	    Data(cfg).
//	    Retry(worker.Retries(5)).
//	    Build(func(ctx context.Context, t tick.Tick, cfg *Config) error {
//	        return report(ctx, cfg, t.Timestamp)
//	    })
//
// The injected data is set once and passed by value to every invocation.
// Handlers must treat anything it points to as read-only.
//
// Retry repeats only the handler call, in process, up to the policy's
// attempt count. It does not compose with workflow chains: a chain run
// is not restartable from the middle, so [BuildWorkflow] rejects any
// policy that allows more than one attempt with [ErrRetryNotComposable].
//
// [Worker.Run] drains in-flight work before returning. [Worker.Stop]
// waits for the same drain until its context expires and then cancels
// the handlers still running.
package worker
