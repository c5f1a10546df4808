package engine

import (
	"log/slog"
	"time"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/backoff"
	"github.com/xraph/cadence/pipe"
	"github.com/xraph/cadence/schedule"
	"github.com/xraph/cadence/task"
	"github.com/xraph/cadence/tick"
	"github.com/xraph/cadence/worker"
	"github.com/xraph/cadence/workflow"
)

// ScheduleOption configures one scheduled entry.
type ScheduleOption func(*entryConfig)

type entryConfig struct {
	piped       bool
	policy      worker.Policy
	location    *time.Location
	queue       string
	priority    int
	concurrency int
}

// Piped routes the entry's ticks through the engine store: the stream
// writes tasks and the worker polls them. Without it ticks go straight to
// the worker.
func Piped() ScheduleOption {
	return func(c *entryConfig) { c.piped = true }
}

// WithRetry sets the attempt policy. Workflows accept only one attempt.
func WithRetry(p worker.Policy) ScheduleOption {
	return func(c *entryConfig) { c.policy = p }
}

// WithTimezone binds the schedule to loc instead of the configured zone.
func WithTimezone(loc *time.Location) ScheduleOption {
	return func(c *entryConfig) { c.location = loc }
}

// WithQueue sets the queue piped tasks use. The default is the schedule
// name.
func WithQueue(q string) ScheduleOption {
	return func(c *entryConfig) { c.queue = q }
}

// WithPriority sets the priority of piped tasks.
func WithPriority(p int) ScheduleOption {
	return func(c *entryConfig) { c.priority = p }
}

// WithConcurrency bounds the entry's worker. The default is
// Config.Concurrency.
func WithConcurrency(n int) ScheduleOption {
	return func(c *entryConfig) { c.concurrency = n }
}

// Schedule registers a handler fired by sched. data is passed by value to
// every invocation.
func Schedule[D any](eng *Engine, name string, sched schedule.Schedule, h worker.Handler[D], data D, opts ...ScheduleOption) error {
	return register(eng, name, sched, data, opts, func(b *worker.Builder[D]) (*worker.Worker, error) {
		return b.Build(h)
	})
}

// ScheduleWorkflow registers a workflow chain fired by sched. Runs are
// recorded in the engine store when one is configured.
func ScheduleWorkflow[D, Out any](eng *Engine, name string, sched schedule.Schedule, c *workflow.Chain[D, Out], data D, opts ...ScheduleOption) error {
	return register(eng, name, sched, data, opts, func(b *worker.Builder[D]) (*worker.Worker, error) {
		if c != nil && eng.store != nil {
			c = c.With(workflow.WithStore(eng.store))
		}
		return worker.BuildWorkflow(b, c)
	})
}

func register[D any](eng *Engine, name string, sched schedule.Schedule, data D, opts []ScheduleOption, build func(*worker.Builder[D]) (*worker.Worker, error)) error {
	if sched == nil {
		return ErrNilSchedule
	}
	cfg := entryConfig{
		policy:      worker.Attempts(1),
		location:    eng.location,
		queue:       name,
		concurrency: eng.config.Concurrency,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.piped && eng.store == nil {
		return cadence.ErrNoStore
	}

	if err := eng.reserve(name); err != nil {
		return err
	}
	logger := eng.logger.With(slog.String("schedule", name))

	stream := tick.NewStream(sched,
		tick.WithName(name),
		tick.WithLocation(cfg.location),
		tick.WithClock(eng.clock),
		tick.WithLogger(logger),
		tick.WithEmitter(eng.extensions),
	)

	var backend worker.Backend
	if cfg.piped {
		pipeOpts := []pipe.Option{
			pipe.WithQueue(cfg.queue),
			pipe.WithQueues(cfg.queue),
			pipe.WithCodec(eng.codec),
			pipe.WithTaskOptions(task.WithPriority(cfg.priority)),
			pipe.WithPollInterval(eng.config.PollInterval),
			pipe.WithLogger(logger),
			pipe.WithEmitter(eng.extensions),
		}
		pipeOpts = append(pipeOpts, eng.pipeRetry()...)
		backend = pipe.To(stream, eng.store, pipeOpts...)
	} else {
		backend = pipe.Direct(stream,
			pipe.WithBuffer(eng.config.TickBuffer),
			pipe.WithQueue(cfg.queue),
			pipe.WithCodec(eng.codec),
			pipe.WithLogger(logger),
		)
	}

	b := worker.NewBuilder[D](name).
		Backend(backend).
		Retry(cfg.policy).
		Data(data).
		Concurrency(cfg.concurrency).
		Logger(eng.logger).
		Middleware(eng.defaultMws...).
		Extensions(eng.extensions).
		PollInterval(eng.config.PollInterval).
		ShutdownTimeout(eng.config.ShutdownTimeout)
	if cfg.piped {
		b = b.Heartbeat(eng.config.HeartbeatInterval, eng.config.StaleTaskThreshold)
	}
	if eng.queueManager != nil {
		b = b.QueueManager(eng.queueManager)
	}

	w, err := build(b)
	if err != nil {
		eng.unreserve(name)
		return err
	}
	eng.add(w)
	eng.logger.Debug("schedule registered",
		slog.String("schedule", name),
		slog.Bool("piped", cfg.piped),
		slog.String("timezone", stream.Location().String()),
	)
	return nil
}

// pipeRetry returns the pipe write retry option from the config, or none
// when writes fail fast.
func (eng *Engine) pipeRetry() []pipe.Option {
	rc := eng.config.PipeRetry
	if rc.MaxAttempts <= 1 {
		return nil
	}
	initial, maxDelay := rc.Initial, rc.Max
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 10 * time.Second
	}
	return []pipe.Option{pipe.WithRetry(rc.MaxAttempts, backoff.NewExponentialWithJitter(initial, maxDelay))}
}
