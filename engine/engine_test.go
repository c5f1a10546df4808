package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/xraph/cadence"
	audithook "github.com/xraph/cadence/audit_hook"
	"github.com/xraph/cadence/engine"
	"github.com/xraph/cadence/pipe"
	"github.com/xraph/cadence/schedule"
	"github.com/xraph/cadence/store/memory"
	"github.com/xraph/cadence/task"
	"github.com/xraph/cadence/tick"
	"github.com/xraph/cadence/worker"
	"github.com/xraph/cadence/workflow"
)

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

// instants fires at each of the given offsets from now, then exhausts.
func instants(offsets ...time.Duration) schedule.Schedule {
	now := time.Now()
	at := make([]time.Time, len(offsets))
	for i, o := range offsets {
		at[i] = now.Add(o)
	}
	return schedule.Func(func(ref time.Time) (time.Time, bool) {
		for _, t := range at {
			if t.After(ref) {
				return t.In(ref.Location()), true
			}
		}
		return time.Time{}, false
	})
}

func threeTicks() schedule.Schedule {
	return instants(10*time.Millisecond, 20*time.Millisecond, 30*time.Millisecond)
}

// hourly never fires within a test.
var hourly = schedule.Func(func(ref time.Time) (time.Time, bool) {
	return ref.Add(time.Hour), true
})

func newEngine(t *testing.T, opts ...engine.Option) *engine.Engine {
	t.Helper()
	cfg := cadence.DefaultConfig()
	cfg.PollInterval = 10 * time.Millisecond
	cfg.ShutdownTimeout = time.Second
	cfg.Timezone = "UTC"
	base := []engine.Option{
		engine.WithConfig(cfg),
		engine.WithLogger(silentLogger()),
	}
	eng, err := engine.New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return eng
}

func runEngine(t *testing.T, eng *engine.Engine, ctx context.Context) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop in time")
		return nil
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type brokenStore struct {
	*memory.Store
}

func (s *brokenStore) EnqueueTask(context.Context, *task.Task) error {
	return errors.New("disk full")
}

// trackingExt records lifecycle hooks.
type trackingExt struct {
	ticks     atomic.Int32
	completed atomic.Int32
	shutdown  atomic.Int32
}

func (e *trackingExt) Name() string { return "tracking" }

func (e *trackingExt) OnTickFired(context.Context, tick.Tick) error {
	e.ticks.Add(1)
	return nil
}

func (e *trackingExt) OnTaskCompleted(context.Context, *task.Task, time.Duration) error {
	e.completed.Add(1)
	return nil
}

func (e *trackingExt) OnShutdown(context.Context) error {
	e.shutdown.Add(1)
	return nil
}

// ──────────────────────────────────────────────────
// Construction
// ──────────────────────────────────────────────────

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := cadence.DefaultConfig()
	cfg.Codec = "xml"
	_, err := engine.New(engine.WithConfig(cfg), engine.WithLogger(silentLogger()))
	if !errors.Is(err, cadence.ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig", err)
	}
}

func TestSchedule_DuplicateName(t *testing.T) {
	eng := newEngine(t)
	h := func(context.Context, tick.Tick, struct{}) error { return nil }

	if err := engine.Schedule(eng, "report", hourly, h, struct{}{}); err != nil {
		t.Fatalf("first Schedule: %v", err)
	}
	err := engine.Schedule(eng, "report", hourly, h, struct{}{})
	if !errors.Is(err, cadence.ErrDuplicateSchedule) {
		t.Fatalf("err = %v, want ErrDuplicateSchedule", err)
	}
	if got := eng.Schedules(); len(got) != 1 || got[0] != "report" {
		t.Fatalf("Schedules() = %v", got)
	}
}

func TestSchedule_PipedNeedsStore(t *testing.T) {
	eng := newEngine(t)
	h := func(context.Context, tick.Tick, int) error { return nil }
	err := engine.Schedule(eng, "report", hourly, h, 0, engine.Piped())
	if !errors.Is(err, cadence.ErrNoStore) {
		t.Fatalf("err = %v, want ErrNoStore", err)
	}
}

func TestSchedule_NilSchedule(t *testing.T) {
	eng := newEngine(t)
	h := func(context.Context, tick.Tick, int) error { return nil }
	if err := engine.Schedule(eng, "report", nil, h, 0); !errors.Is(err, engine.ErrNilSchedule) {
		t.Fatalf("err = %v, want ErrNilSchedule", err)
	}
}

func TestScheduleWorkflow_RetryNotComposable(t *testing.T) {
	eng := newEngine(t)
	chain := workflow.New("etl", func(_ context.Context, tk tick.Tick, _ int) (uint64, error) {
		return tk.Seq, nil
	})

	err := engine.ScheduleWorkflow(eng, "etl", hourly, chain, 0, engine.WithRetry(worker.Retries(2)))
	if !errors.Is(err, worker.ErrRetryNotComposable) {
		t.Fatalf("err = %v, want ErrRetryNotComposable", err)
	}
	// A failed registration frees the name.
	if err := engine.ScheduleWorkflow(eng, "etl", hourly, chain, 0); err != nil {
		t.Fatalf("ScheduleWorkflow after failure: %v", err)
	}
}

func TestRun_NoSchedules(t *testing.T) {
	eng := newEngine(t)
	if err := eng.Run(context.Background()); !errors.Is(err, engine.ErrNoSchedules) {
		t.Fatalf("err = %v, want ErrNoSchedules", err)
	}
}

// ──────────────────────────────────────────────────
// Running
// ──────────────────────────────────────────────────

func TestRun_DirectHandlesEveryTick(t *testing.T) {
	tracker := &trackingExt{}
	eng := newEngine(t, engine.WithExtension(tracker))

	var (
		calls atomic.Int32
		sum   atomic.Int64
	)
	h := func(_ context.Context, tk tick.Tick, data int) error {
		calls.Add(1)
		sum.Add(int64(data))
		if tk.Stream != "report" {
			t.Errorf("tick stream = %q", tk.Stream)
		}
		if tk.Timezone != "UTC" {
			t.Errorf("tick timezone = %q, want UTC", tk.Timezone)
		}
		return nil
	}
	if err := engine.Schedule(eng, "report", threeTicks(), h, 42); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	if err := runEngine(t, eng, context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("handler calls = %d, want 3", got)
	}
	if got := sum.Load(); got != 3*42 {
		t.Fatalf("data sum = %d, want %d", got, 3*42)
	}
	if got := tracker.ticks.Load(); got != 3 {
		t.Errorf("ticks fired = %d, want 3", got)
	}
	if got := tracker.completed.Load(); got != 3 {
		t.Errorf("tasks completed = %d, want 3", got)
	}
	if got := tracker.shutdown.Load(); got != 1 {
		t.Errorf("shutdown hooks = %d, want 1", got)
	}
}

func TestRun_PipedCompletesInStore(t *testing.T) {
	s := memory.New()
	eng := newEngine(t, engine.WithStore(s))

	var calls atomic.Int32
	h := func(context.Context, tick.Tick, struct{}) error {
		calls.Add(1)
		return nil
	}
	if err := engine.Schedule(eng, "report", threeTicks(), h, struct{}{}, engine.Piped(), engine.WithPriority(5)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	if err := runEngine(t, eng, context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("handler calls = %d, want 3", got)
	}

	tasks, err := s.ListTasks(context.Background(), task.ListOpts{Queue: "report"})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("tasks in queue %q = %d, want 3", "report", len(tasks))
	}
	for _, tk := range tasks {
		if tk.State != task.StateCompleted {
			t.Errorf("task %s state = %q", tk.ID, tk.State)
		}
		if tk.Priority != 5 {
			t.Errorf("task %s priority = %d, want 5", tk.ID, tk.Priority)
		}
	}
}

func TestRun_PipedAuditTrail(t *testing.T) {
	var (
		mu     sync.Mutex
		events []*audithook.AuditEvent
	)
	rec := audithook.RecorderFunc(func(_ context.Context, evt *audithook.AuditEvent) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, evt)
		return nil
	})
	audit := audithook.New(rec, audithook.WithActions(audithook.ActionTaskEnqueued, audithook.ActionTaskCompleted))

	eng := newEngine(t, engine.WithStore(memory.New()), engine.WithExtension(audit))
	h := func(context.Context, tick.Tick, struct{}) error { return nil }
	if err := engine.Schedule(eng, "report", threeTicks(), h, struct{}{}, engine.Piped()); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := runEngine(t, eng, context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	counts := map[string]int{}
	for _, evt := range events {
		counts[evt.Action]++
		if evt.Metadata["queue"] != "report" {
			t.Errorf("%s queue = %v, want report", evt.Action, evt.Metadata["queue"])
		}
	}
	if counts[audithook.ActionTaskEnqueued] != 3 {
		t.Errorf("enqueued events = %d, want 3", counts[audithook.ActionTaskEnqueued])
	}
	if counts[audithook.ActionTaskCompleted] != 3 {
		t.Errorf("completed events = %d, want 3", counts[audithook.ActionTaskCompleted])
	}
	if len(events) != 6 {
		t.Errorf("events = %d, want 6", len(events))
	}
}

func TestRun_RetryRecovers(t *testing.T) {
	eng := newEngine(t)

	var attempts atomic.Int32
	h := func(context.Context, tick.Tick, int) error {
		if attempts.Add(1) == 1 {
			return errors.New("transient")
		}
		return nil
	}
	err := engine.Schedule(eng, "flaky", instants(10*time.Millisecond), h, 0,
		engine.WithRetry(worker.Retries(1)))
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	if err := runEngine(t, eng, context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := attempts.Load(); got != 2 {
		t.Fatalf("attempts = %d, want 2", got)
	}
}

func TestRun_PipeFaultStopsEverything(t *testing.T) {
	eng := newEngine(t, engine.WithStore(&brokenStore{Store: memory.New()}))
	h := func(context.Context, tick.Tick, int) error { return nil }

	if err := engine.Schedule(eng, "broken", threeTicks(), h, 0, engine.Piped()); err != nil {
		t.Fatalf("Schedule broken: %v", err)
	}
	// A healthy direct schedule that would otherwise run for an hour.
	if err := engine.Schedule(eng, "idle", hourly, h, 0); err != nil {
		t.Fatalf("Schedule idle: %v", err)
	}

	err := runEngine(t, eng, context.Background())
	var writeErr *pipe.WriteError
	if !errors.As(err, &writeErr) {
		t.Fatalf("err = %v, want *pipe.WriteError", err)
	}
	if writeErr.Tick.Stream != "broken" {
		t.Errorf("WriteError stream = %q", writeErr.Tick.Stream)
	}
}

func TestRun_CancelDrains(t *testing.T) {
	eng := newEngine(t)
	h := func(context.Context, tick.Tick, int) error { return nil }
	if err := engine.Schedule(eng, "idle", hourly, h, 0); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	if err := runEngine(t, eng, ctx); err != nil {
		t.Fatalf("Run after cancel: %v", err)
	}
}

func TestRun_Twice(t *testing.T) {
	eng := newEngine(t)
	release := make(chan struct{})
	h := func(context.Context, tick.Tick, int) error {
		<-release
		return nil
	}
	if err := engine.Schedule(eng, "once", instants(time.Millisecond), h, 0); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- eng.Run(context.Background()) }()

	waitFor(t, func() bool {
		return errors.Is(engine.Schedule(eng, "late", hourly, h, 0), engine.ErrRunning)
	})
	if err := eng.Run(context.Background()); !errors.Is(err, engine.ErrRunning) {
		t.Fatalf("second Run err = %v, want ErrRunning", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestStop_AbortsAfterDeadline(t *testing.T) {
	eng := newEngine(t)
	started := make(chan struct{})
	h := func(ctx context.Context, _ tick.Tick, _ int) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}
	if err := engine.Schedule(eng, "stuck", instants(time.Millisecond), h, 0); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- eng.Run(context.Background()) }()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := eng.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Stop err = %v, want DeadlineExceeded", err)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

// ──────────────────────────────────────────────────
// Workflows and telemetry
// ──────────────────────────────────────────────────

func TestRun_WorkflowRecordsRuns(t *testing.T) {
	s := memory.New()
	eng := newEngine(t, engine.WithStore(s))

	extract := workflow.New("etl", func(_ context.Context, tk tick.Tick, base int) (int, error) {
		return base + int(tk.Seq), nil
	})
	var total atomic.Int64
	chain := workflow.Then(workflow.Delay(extract, 5*time.Millisecond), "load",
		func(_ context.Context, n int, _ int) (struct{}, error) {
			total.Add(int64(n))
			return struct{}{}, nil
		})

	if err := engine.ScheduleWorkflow(eng, "etl", threeTicks(), chain, 100); err != nil {
		t.Fatalf("ScheduleWorkflow: %v", err)
	}
	if err := runEngine(t, eng, context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Seqs 1..3 on top of 100 each.
	if got := total.Load(); got != 306 {
		t.Fatalf("loaded total = %d, want 306", got)
	}
	waitFor(t, func() bool {
		runs, err := s.ListRuns(context.Background(), workflow.ListOpts{
			Workflow: "etl",
			State:    workflow.RunStateCompleted,
		})
		return err == nil && len(runs) == 3
	})
}

func TestRun_MeterProviderCountsTicks(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	eng := newEngine(t, engine.WithMeterProvider(mp))

	h := func(context.Context, tick.Tick, int) error { return nil }
	if err := engine.Schedule(eng, "report", threeTicks(), h, 0); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := runEngine(t, eng, context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var fired, executions int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				switch m.Name {
				case "cadence.tick.fired":
					fired += dp.Value
				case "cadence.task.executions":
					executions += dp.Value
				}
			}
		}
	}
	if fired != 3 {
		t.Errorf("cadence.tick.fired = %d, want 3", fired)
	}
	if executions != 3 {
		t.Errorf("cadence.task.executions = %d, want 3", executions)
	}
}
