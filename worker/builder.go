package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/cadence/ext"
	"github.com/xraph/cadence/middleware"
	"github.com/xraph/cadence/tick"
)

// Builder assembles a Worker. Methods mutate and return the builder so
// calls chain; a builder should not be shared between goroutines.
type Builder[D any] struct {
	name            string
	backend         Backend
	policy          Policy
	data            D
	concurrency     int
	logger          *slog.Logger
	middleware      []middleware.Middleware
	extensions      *ext.Registry
	queueManager    QueueManager
	pollInterval    time.Duration
	heartbeat       time.Duration
	staleThreshold  time.Duration
	shutdownTimeout time.Duration
}

// NewBuilder starts a worker named name. Defaults: one attempt, one
// task at a time, zero-valued data.
func NewBuilder[D any](name string) *Builder[D] {
	return &Builder[D]{
		name:         name,
		policy:       Attempts(1),
		concurrency:  1,
		pollInterval: time.Second,
	}
}

// Backend sets where tasks come from.
func (b *Builder[D]) Backend(be Backend) *Builder[D] {
	b.backend = be
	return b
}

// Retry sets the attempt policy.
func (b *Builder[D]) Retry(p Policy) *Builder[D] {
	b.policy = p
	return b
}

// Data sets the value passed to every handler invocation.
func (b *Builder[D]) Data(d D) *Builder[D] {
	b.data = d
	return b
}

// Concurrency bounds how many ticks are handled at once.
func (b *Builder[D]) Concurrency(n int) *Builder[D] {
	b.concurrency = n
	return b
}

// Logger sets the logger. The default is slog.Default().
func (b *Builder[D]) Logger(l *slog.Logger) *Builder[D] {
	b.logger = l
	return b
}

// Middleware appends middleware. They run inside panic recovery and
// outside the per-task timeout, in the order given.
func (b *Builder[D]) Middleware(mws ...middleware.Middleware) *Builder[D] {
	b.middleware = append(b.middleware, mws...)
	return b
}

// Extensions sets the registry notified of task and workflow events.
func (b *Builder[D]) Extensions(r *ext.Registry) *Builder[D] {
	b.extensions = r
	return b
}

// QueueManager sets per-queue and per-schedule limits.
func (b *Builder[D]) QueueManager(m QueueManager) *Builder[D] {
	b.queueManager = m
	return b
}

// PollInterval sets the pause after a backend error.
func (b *Builder[D]) PollInterval(d time.Duration) *Builder[D] {
	b.pollInterval = d
	return b
}

// Heartbeat enables heartbeats every interval and reaping of tasks whose
// heartbeat is older than stale. Only store-backed backends use it.
func (b *Builder[D]) Heartbeat(interval, stale time.Duration) *Builder[D] {
	b.heartbeat = interval
	b.staleThreshold = stale
	return b
}

// ShutdownTimeout bounds the drain when Run's context is cancelled.
// After it, in-flight handlers are cancelled. Zero waits indefinitely.
func (b *Builder[D]) ShutdownTimeout(d time.Duration) *Builder[D] {
	b.shutdownTimeout = d
	return b
}

// Build binds h and returns the worker.
func (b *Builder[D]) Build(h Handler[D]) (*Worker, error) {
	if b.backend == nil {
		return nil, ErrNoBackend
	}
	if h == nil {
		return nil, ErrNilHandler
	}
	data := b.data
	return b.build(func(ctx, _ context.Context, t tick.Tick) (func() error, error) {
		return nil, h(ctx, t, data)
	}), nil
}

func (b *Builder[D]) log() *slog.Logger {
	if b.logger == nil {
		return slog.Default()
	}
	return b.logger
}

func (b *Builder[D]) build(invoke invokeFunc) *Worker {
	logger := b.log().With(slog.String("worker", b.name))

	mws := make([]middleware.Middleware, 0, len(b.middleware)+2)
	mws = append(mws, middleware.Recover(logger))
	mws = append(mws, b.middleware...)
	mws = append(mws, middleware.Timeout(logger))

	execOpts := []ExecutorOption{
		WithRetryPolicy(b.policy),
		WithMiddleware(mws...),
	}
	poolOpts := []PoolOption{
		WithConcurrency(b.concurrency),
		WithPollInterval(b.pollInterval),
		WithHeartbeatInterval(b.heartbeat),
		WithStaleThreshold(b.staleThreshold),
	}
	if b.extensions != nil {
		execOpts = append(execOpts, WithEmitter(b.extensions))
	}
	if b.queueManager != nil {
		poolOpts = append(poolOpts, WithQueueManager(b.queueManager))
	}

	exec := newExecutor(b.backend, invoke, logger, execOpts...)
	return &Worker{
		name:            b.name,
		backend:         b.backend,
		pool:            NewPool(b.backend, exec, logger, poolOpts...),
		logger:          logger,
		shutdownTimeout: b.shutdownTimeout,
	}
}
