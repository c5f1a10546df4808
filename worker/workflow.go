package worker

import (
	"context"

	"github.com/xraph/cadence/tick"
	"github.com/xraph/cadence/workflow"
)

// BuildWorkflow binds a chain as the worker's handler. Delays inside the
// chain free the execution slot; the continuation runs on the pool when
// the delay elapses, and the task settles when the chain ends.
//
// A run outlives the middleware call that started it, so per-task
// timeouts do not bound it. Stop's abort does cancel it.
//
// The builder's retry policy must allow a single attempt; otherwise
// BuildWorkflow returns ErrRetryNotComposable.
func BuildWorkflow[D, Out any](b *Builder[D], c *workflow.Chain[D, Out]) (*Worker, error) {
	if b.backend == nil {
		return nil, ErrNoBackend
	}
	if c == nil {
		return nil, ErrNilHandler
	}
	if b.policy.attempts() > 1 {
		return nil, ErrRetryNotComposable
	}

	var pool *Pool
	opts := []workflow.Option{
		workflow.WithResumer(func(fn func()) { pool.Resume(fn) }),
		workflow.WithLogger(b.log()),
	}
	if b.extensions != nil {
		opts = append(opts, workflow.WithEmitter(b.extensions))
	}
	chain := c.With(opts...)
	data := b.data

	w := b.build(func(ctx, base context.Context, t tick.Tick) (func() error, error) {
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		stop := context.AfterFunc(base, cancel)
		release := func() {
			stop()
			cancel()
		}

		inst := chain.Start(runCtx, t, data)
		select {
		case <-inst.Done():
			release()
			_, err := inst.Wait()
			return nil, err
		default:
			return func() error {
				defer release()
				_, err := inst.Wait()
				return err
			}, nil
		}
	})
	pool = w.pool
	return w, nil
}
