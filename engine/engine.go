package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/ext"
	mw "github.com/xraph/cadence/middleware"
	"github.com/xraph/cadence/observability"
	"github.com/xraph/cadence/queue"
	"github.com/xraph/cadence/store"
	"github.com/xraph/cadence/task"
	"github.com/xraph/cadence/tick"
	"github.com/xraph/cadence/worker"
)

// instrumentationName is the scope name for the engine's tracer and meters.
const instrumentationName = "github.com/xraph/cadence"

var (
	// ErrRunning is returned when a schedule is added or Run is called
	// while the engine is running.
	ErrRunning = errors.New("cadence: engine is running")

	// ErrNoSchedules is returned by Run when nothing was scheduled.
	ErrNoSchedules = errors.New("cadence: no schedules registered")

	// ErrNilSchedule is returned when a nil schedule is registered.
	ErrNilSchedule = errors.New("cadence: nil schedule")
)

// Engine owns a set of scheduled workers and runs them together.
type Engine struct {
	config     cadence.Config
	store      store.Store
	logger     *slog.Logger
	clock      tick.Clock
	extensions *ext.Registry
	location   *time.Location
	codec      task.Codec

	exts            []ext.Extension
	mws             []mw.Middleware
	defaultMws      []mw.Middleware
	queueConfigs    []queue.Config
	scheduleConfigs []queue.ScheduleConfig
	queueManager    *queue.Manager

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	mu      sync.Mutex
	workers []*worker.Worker
	names   map[string]struct{}
	running bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore sets the store piped schedules write to and workflows record
// runs in.
func WithStore(s store.Store) Option {
	return func(eng *Engine) { eng.store = s }
}

// WithConfig replaces the default configuration.
func WithConfig(cfg cadence.Config) Option {
	return func(eng *Engine) { eng.config = cfg }
}

// WithLogger sets the logger for the engine and everything it builds.
func WithLogger(l *slog.Logger) Option {
	return func(eng *Engine) { eng.logger = l }
}

// WithClock sets the time source for every tick stream. Tests pass a
// ticktest.Clock.
func WithClock(c tick.Clock) Option {
	return func(eng *Engine) { eng.clock = c }
}

// WithExtension registers an extension with the engine.
func WithExtension(e ext.Extension) Option {
	return func(eng *Engine) { eng.exts = append(eng.exts, e) }
}

// WithMiddleware adds middleware to every worker's chain. It runs inside
// the default tracing, metrics and logging middleware.
func WithMiddleware(m mw.Middleware) Option {
	return func(eng *Engine) { eng.mws = append(eng.mws, m) }
}

// WithQueueConfig registers queue-level rate limiting and concurrency
// configurations. Queues not listed have no limits.
func WithQueueConfig(configs ...queue.Config) Option {
	return func(eng *Engine) { eng.queueConfigs = append(eng.queueConfigs, configs...) }
}

// WithScheduleConfig registers per-schedule limits within a queue.
func WithScheduleConfig(configs ...queue.ScheduleConfig) Option {
	return func(eng *Engine) { eng.scheduleConfigs = append(eng.scheduleConfigs, configs...) }
}

// WithTracerProvider sets a custom OTel TracerProvider for the engine.
// If not set, the global otel.GetTracerProvider() is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(eng *Engine) { eng.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider used by both the
// metrics middleware and the observability extension. If not set, the
// global otel.GetMeterProvider() is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(eng *Engine) { eng.meterProvider = mp }
}

// New creates an engine. The configuration is validated; schedules are
// added afterwards with Schedule and ScheduleWorkflow.
func New(opts ...Option) (*Engine, error) {
	eng := &Engine{
		config: cadence.DefaultConfig(),
		clock:  tick.SystemClock,
		names:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(eng)
	}
	if eng.logger == nil {
		eng.logger = slog.Default()
	}

	if err := eng.config.Validate(); err != nil {
		return nil, err
	}
	loc, err := eng.config.Location()
	if err != nil {
		return nil, err
	}
	eng.location = loc
	codecName := eng.config.Codec
	if codecName == "" {
		codecName = task.CodecNameJSON
	}
	if eng.codec, err = task.CodecFor(codecName); err != nil {
		return nil, fmt.Errorf("%w: %w", cadence.ErrInvalidConfig, err)
	}

	eng.extensions = ext.NewRegistry(eng.logger)

	// Register the observability metrics extension first.
	var obsExt *observability.MetricsExtension
	if eng.meterProvider != nil {
		obsExt = observability.NewMetricsExtensionWithMeter(
			eng.meterProvider.Meter(instrumentationName + "/observability"))
	} else {
		obsExt = observability.NewMetricsExtension()
	}
	eng.extensions.Register(obsExt)
	for _, e := range eng.exts {
		eng.extensions.Register(e)
	}

	var tracingMw mw.Middleware
	if eng.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(eng.tracerProvider.Tracer(instrumentationName))
	} else {
		tracingMw = mw.Tracing()
	}
	var metricsMw mw.Middleware
	if eng.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(eng.meterProvider.Meter(instrumentationName))
	} else {
		metricsMw = mw.Metrics()
	}

	// Workers add recover outside and timeout inside this stack:
	// recover → tracing → metrics → logging → user → timeout.
	eng.defaultMws = make([]mw.Middleware, 0, 3+len(eng.mws))
	eng.defaultMws = append(eng.defaultMws, tracingMw, metricsMw, mw.Logging(eng.logger))
	eng.defaultMws = append(eng.defaultMws, eng.mws...)

	if len(eng.queueConfigs) > 0 || len(eng.scheduleConfigs) > 0 {
		eng.queueManager = queue.NewManager(eng.queueConfigs...)
		for _, sc := range eng.scheduleConfigs {
			eng.queueManager.SetScheduleConfig(sc)
		}
	}

	return eng, nil
}

// Config returns the engine configuration.
func (eng *Engine) Config() cadence.Config { return eng.config }

// Store returns the configured store, or nil.
func (eng *Engine) Store() store.Store { return eng.store }

// Extensions returns the extension registry.
func (eng *Engine) Extensions() *ext.Registry { return eng.extensions }

// Logger returns the engine logger.
func (eng *Engine) Logger() *slog.Logger { return eng.logger }

// QueueManager returns the queue manager, or nil when no limits were
// configured.
func (eng *Engine) QueueManager() *queue.Manager { return eng.queueManager }

// Schedules returns the names of all schedules in registration order.
func (eng *Engine) Schedules() []string {
	eng.mu.Lock()
	defer eng.mu.Unlock()
	names := make([]string, len(eng.workers))
	for i, w := range eng.workers {
		names[i] = w.Name()
	}
	return names
}

// Worker returns the worker for a schedule.
func (eng *Engine) Worker(name string) (*worker.Worker, bool) {
	eng.mu.Lock()
	defer eng.mu.Unlock()
	for _, w := range eng.workers {
		if w.Name() == name {
			return w, true
		}
	}
	return nil, false
}

// Run runs every scheduled worker until all of them end. Cancelling ctx
// drains in-flight work gracefully within Config.ShutdownTimeout. A fatal
// worker error, such as a pipe write fault, stops the other workers and is
// returned.
func (eng *Engine) Run(ctx context.Context) error {
	eng.mu.Lock()
	if eng.running {
		eng.mu.Unlock()
		return ErrRunning
	}
	if len(eng.workers) == 0 {
		eng.mu.Unlock()
		return ErrNoSchedules
	}
	eng.running = true
	workers := append([]*worker.Worker(nil), eng.workers...)
	eng.mu.Unlock()

	eng.logger.Info("engine started", slog.Int("schedules", len(workers)))

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		g.Go(func() error {
			if err := w.Run(gctx); err != nil {
				return fmt.Errorf("schedule %s: %w", w.Name(), err)
			}
			return nil
		})
	}
	err := g.Wait()

	eng.extensions.EmitShutdown(context.WithoutCancel(ctx))
	if err != nil {
		eng.logger.Error("engine stopped", slog.String("error", err.Error()))
		return err
	}
	eng.logger.Info("engine stopped")
	return nil
}

// Stop stops every worker. In-flight tasks drain until ctx is done and are
// then cancelled; Stop returns ctx.Err() in that case.
func (eng *Engine) Stop(ctx context.Context) error {
	eng.mu.Lock()
	workers := append([]*worker.Worker(nil), eng.workers...)
	eng.mu.Unlock()

	var g errgroup.Group
	for _, w := range workers {
		g.Go(func() error { return w.Stop(ctx) })
	}
	return g.Wait()
}

// add registers a built worker under its unique name.
func (eng *Engine) add(w *worker.Worker) {
	eng.mu.Lock()
	defer eng.mu.Unlock()
	eng.workers = append(eng.workers, w)
}

// reserve claims a schedule name.
func (eng *Engine) reserve(name string) error {
	eng.mu.Lock()
	defer eng.mu.Unlock()
	if eng.running {
		return ErrRunning
	}
	if _, ok := eng.names[name]; ok {
		return fmt.Errorf("%w: %q", cadence.ErrDuplicateSchedule, name)
	}
	eng.names[name] = struct{}{}
	return nil
}

func (eng *Engine) unreserve(name string) {
	eng.mu.Lock()
	defer eng.mu.Unlock()
	delete(eng.names, name)
}
