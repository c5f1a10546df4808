package worker

import (
	"context"
	"time"

	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/task"
	"github.com/xraph/cadence/tick"
)

// Handler processes one tick with the worker's injected data.
type Handler[D any] func(ctx context.Context, t tick.Tick, data D) error

// Backend supplies tasks to a pool and records their outcome.
// Next returns tick.ErrExhausted once nothing more will arrive.
type Backend interface {
	Next(ctx context.Context) (*task.Task, error)
	Complete(ctx context.Context, t *task.Task) error
	Fail(ctx context.Context, t *task.Task, err error) error
}

// Runner is a backend with a producer loop. Worker.Run runs it alongside
// the pool; a non-nil error from Run is fatal to the worker.
type Runner interface {
	Run(ctx context.Context) error
}

// Releaser is a backend that can hand a claimed task back unprocessed.
type Releaser interface {
	Release(ctx context.Context, t *task.Task) error
}

// Heartbeater is a backend that tracks liveness of claimed tasks.
type Heartbeater interface {
	Heartbeat(ctx context.Context, t *task.Task) error
}

// Reaper is a backend that can return abandoned tasks to pending.
type Reaper interface {
	Reap(ctx context.Context, threshold time.Duration) (int, error)
}

// Closer is a backend holding resources released when the worker stops.
type Closer interface {
	Close() error
}

type identified interface {
	WorkerID() id.WorkerID
}

// QueueManager bounds execution per queue and per schedule. The pool
// calls Acquire before running a task and Release after it settles.
type QueueManager interface {
	Acquire(queue, schedule string) bool
	Release(queue, schedule string)
}

// Emitter receives task lifecycle events. ext.Registry implements it.
type Emitter interface {
	EmitTaskStarted(ctx context.Context, t *task.Task)
	EmitTaskCompleted(ctx context.Context, t *task.Task, elapsed time.Duration)
	EmitTaskRetrying(ctx context.Context, t *task.Task, attempt int, err error)
	EmitTaskFailed(ctx context.Context, t *task.Task, err error)
}

type nopEmitter struct{}

func (nopEmitter) EmitTaskStarted(context.Context, *task.Task)                  {}
func (nopEmitter) EmitTaskCompleted(context.Context, *task.Task, time.Duration) {}
func (nopEmitter) EmitTaskRetrying(context.Context, *task.Task, int, error)     {}
func (nopEmitter) EmitTaskFailed(context.Context, *task.Task, error)            {}
