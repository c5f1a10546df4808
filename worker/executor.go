package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/cadence/backoff"
	"github.com/xraph/cadence/middleware"
	"github.com/xraph/cadence/task"
	"github.com/xraph/cadence/tick"
)

// invokeFunc runs the bound handler once. ctx is the attempt context
// built by middleware; base is the task context, cancelled only on abort.
// A non-nil wait means the work continues after the call returns; wait
// blocks until it settles.
type invokeFunc func(ctx, base context.Context, t tick.Tick) (wait func() error, err error)

// Executor runs a task through middleware and the bound handler,
// repeats failed attempts per its policy, then records the outcome on
// the backend and emits lifecycle events.
type Executor struct {
	backend Backend
	invoke  invokeFunc
	policy  Policy
	mw      middleware.Middleware
	emitter Emitter
	logger  *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithRetryPolicy sets the attempt policy. The default is one attempt.
func WithRetryPolicy(p Policy) ExecutorOption {
	return func(e *Executor) { e.policy = p }
}

// WithMiddleware sets the middleware wrapping each attempt.
func WithMiddleware(mws ...middleware.Middleware) ExecutorOption {
	return func(e *Executor) { e.mw = middleware.Chain(mws...) }
}

// WithEmitter sets the lifecycle event sink.
func WithEmitter(em Emitter) ExecutorOption {
	return func(e *Executor) {
		if em != nil {
			e.emitter = em
		}
	}
}

// NewExecutor creates an Executor calling h with data for every task
// taken from backend.
func NewExecutor[D any](backend Backend, h Handler[D], data D, logger *slog.Logger, opts ...ExecutorOption) *Executor {
	return newExecutor(backend, func(ctx, _ context.Context, t tick.Tick) (func() error, error) {
		return nil, h(ctx, t, data)
	}, logger, opts...)
}

func newExecutor(backend Backend, invoke invokeFunc, logger *slog.Logger, opts ...ExecutorOption) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		backend: backend,
		invoke:  invoke,
		policy:  Attempts(1),
		mw:      middleware.Chain(),
		emitter: nopEmitter{},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs t to completion and records the outcome. It returns nil
// on success and a *HandlerError after the final failed attempt.
func (e *Executor) Execute(ctx context.Context, t *task.Task) error {
	return e.execute(ctx, t, nil)
}

// execute is Execute with a detach hook. When the handler hands back a
// continuation, detach runs the settlement elsewhere and execute returns
// at once. A nil detach waits inline.
func (e *Executor) execute(ctx context.Context, t *task.Task, detach func(func())) error {
	tk, err := t.Tick()
	if err != nil {
		return e.settle(ctx, t, time.Now(), fmt.Errorf("decode tick: %w", err))
	}

	e.emitter.EmitTaskStarted(ctx, t)
	start := time.Now()
	maxAttempts := e.policy.attempts()

	for attempt := 1; ; attempt++ {
		t.Attempts = attempt

		var wait func() error
		err = e.mw(ctx, t, func(attemptCtx context.Context) error {
			var callErr error
			wait, callErr = e.invoke(attemptCtx, ctx, tk)
			return callErr
		})

		if err == nil && wait != nil {
			if detach == nil {
				return e.settle(ctx, t, start, wait())
			}
			detach(func() { _ = e.settle(ctx, t, start, wait()) })
			return nil
		}
		if err == nil || attempt >= maxAttempts || ctx.Err() != nil {
			break
		}

		e.emitter.EmitTaskRetrying(ctx, t, attempt, err)
		e.logger.Warn("task attempt failed, retrying",
			slog.String("schedule", t.Name),
			slog.String("task_id", t.ID.String()),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", maxAttempts),
			slog.String("error", err.Error()),
		)
		if waitErr := backoff.Wait(ctx, e.policy.Backoff, attempt); waitErr != nil {
			break
		}
	}

	return e.settle(ctx, t, start, err)
}

// settle records the final outcome. Tasks interrupted by an abort are
// released back to the backend when it supports that.
func (e *Executor) settle(ctx context.Context, t *task.Task, start time.Time, err error) error {
	bctx := context.WithoutCancel(ctx)

	if err == nil {
		if cerr := e.backend.Complete(bctx, t); cerr != nil {
			e.logger.Error("failed to record task completion",
				slog.String("task_id", t.ID.String()),
				slog.String("schedule", t.Name),
				slog.String("error", cerr.Error()),
			)
		}
		e.emitter.EmitTaskCompleted(ctx, t, time.Since(start))
		return nil
	}

	if ctx.Err() != nil {
		if r, ok := e.backend.(Releaser); ok {
			if rerr := r.Release(bctx, t); rerr != nil {
				e.logger.Error("failed to release aborted task",
					slog.String("task_id", t.ID.String()),
					slog.String("error", rerr.Error()),
				)
			} else {
				e.logger.Warn("task aborted and released",
					slog.String("task_id", t.ID.String()),
					slog.String("schedule", t.Name),
				)
			}
			return ctx.Err()
		}
	}

	herr := &HandlerError{TaskID: t.ID, Attempts: t.Attempts, Err: err}
	if ferr := e.backend.Fail(bctx, t, err); ferr != nil {
		e.logger.Error("failed to record task failure",
			slog.String("task_id", t.ID.String()),
			slog.String("error", ferr.Error()),
		)
	}
	e.emitter.EmitTaskFailed(ctx, t, herr)
	e.logger.Error("task failed",
		slog.String("schedule", t.Name),
		slog.String("task_id", t.ID.String()),
		slog.Int("attempts", t.Attempts),
		slog.String("error", err.Error()),
	)
	return herr
}
