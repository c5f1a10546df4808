package pipe

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/cadence/backoff"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/task"
	"github.com/xraph/cadence/tick"
)

// Source yields ticks. *tick.Stream implements it.
type Source interface {
	Name() string
	Next(ctx context.Context) (tick.Tick, error)
}

// Emitter receives pipe events. ext.Registry implements it.
type Emitter interface {
	EmitTaskEnqueued(ctx context.Context, t *task.Task)
	EmitPipeFailed(ctx context.Context, stream string, err error)
}

type options struct {
	buffer       int
	codec        task.Codec
	queue        string
	queues       []string
	taskOpts     []task.Option
	maxAttempts  int
	strategy     backoff.Strategy
	pollInterval time.Duration
	workerID     id.WorkerID
	logger       *slog.Logger
	emitter      Emitter
}

func defaultOptions() options {
	return options{
		codec:        task.JSONCodec{},
		maxAttempts:  1,
		pollInterval: time.Second,
		workerID:     id.NewWorkerID(),
		logger:       slog.Default(),
	}
}

// tickTaskOptions returns the task options for a tick: the WithQueue queue,
// when set, followed by the WithTaskOptions list.
func (o options) tickTaskOptions() []task.Option {
	if o.queue == "" {
		return o.taskOpts
	}
	return append([]task.Option{task.WithQueue(o.queue)}, o.taskOpts...)
}

func newOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option configures a direct backend, a Pipe, a Poller or a Piped backend.
type Option func(*options)

// WithBuffer lets a direct backend run up to n ticks ahead of its
// consumers. Zero, the default, means pure pull.
func WithBuffer(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.buffer = n
		}
	}
}

// WithCodec sets the codec used to carry ticks inside task payloads.
func WithCodec(c task.Codec) Option {
	return func(o *options) { o.codec = c }
}

// WithQueue sets the queue piped tasks are written to and read from.
func WithQueue(q string) Option {
	return func(o *options) { o.queue = q }
}

// WithQueues sets the queues a Poller fetches from.
func WithQueues(queues ...string) Option {
	return func(o *options) { o.queues = queues }
}

// WithTaskOptions applies opts to every task a Pipe writes.
func WithTaskOptions(opts ...task.Option) Option {
	return func(o *options) { o.taskOpts = append(o.taskOpts, opts...) }
}

// WithRetry makes a Pipe retry a failed write up to maxAttempts times in
// total, waiting s between attempts. maxAttempts <= 1 keeps the fail-fast
// default.
func WithRetry(maxAttempts int, s backoff.Strategy) Option {
	return func(o *options) {
		if maxAttempts < 1 {
			maxAttempts = 1
		}
		o.maxAttempts = maxAttempts
		o.strategy = s
	}
}

// WithPollInterval sets how long a Poller waits after an empty fetch.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithWorkerID sets the worker identity recorded on fetched tasks.
func WithWorkerID(w id.WorkerID) Option {
	return func(o *options) { o.workerID = w }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithEmitter sets the event emitter.
func WithEmitter(e Emitter) Option {
	return func(o *options) { o.emitter = e }
}
