package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/task"
	"github.com/xraph/cadence/tick"
)

// acquireInterval is how often a task blocked by the queue manager
// re-checks its limits.
const acquireInterval = 10 * time.Millisecond

// Pool runs tasks from a backend on a bounded set of goroutines.
type Pool struct {
	backend      Backend
	executor     *Executor
	concurrency  int
	pollInterval time.Duration
	workerID     id.WorkerID
	logger       *slog.Logger

	// Heartbeat / reaper configuration.
	heartbeatInterval time.Duration
	staleThreshold    time.Duration

	// Queue manager (optional).
	queueManager QueueManager

	slots   chan struct{}
	stopCh  chan struct{}
	done    chan struct{}
	loops   sync.WaitGroup
	bg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	stopped bool

	fetchCtx    context.Context
	fetchCancel context.CancelFunc
	baseCtx     context.Context

	active   map[string]*activeTask
	activeMu sync.Mutex
}

type activeTask struct {
	task   *task.Task
	cancel context.CancelFunc
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithConcurrency sets how many tasks run at once. Values below 1 mean 1.
func WithConcurrency(n int) PoolOption {
	return func(p *Pool) {
		if n < 1 {
			n = 1
		}
		p.concurrency = n
	}
}

// WithPollInterval sets the pause after a backend error.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.pollInterval = d }
}

// WithHeartbeatInterval sets how often the pool sends heartbeats for
// active tasks. A zero value disables heartbeats.
func WithHeartbeatInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.heartbeatInterval = d }
}

// WithStaleThreshold sets the heartbeat age after which running tasks
// are reaped back to pending. A zero value disables reaping.
func WithStaleThreshold(d time.Duration) PoolOption {
	return func(p *Pool) { p.staleThreshold = d }
}

// WithQueueManager sets the queue manager for rate limiting and
// concurrency control.
func WithQueueManager(m QueueManager) PoolOption {
	return func(p *Pool) { p.queueManager = m }
}

// NewPool creates a worker pool.
func NewPool(backend Backend, executor *Executor, logger *slog.Logger, opts ...PoolOption) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		backend:      backend,
		executor:     executor,
		concurrency:  1,
		pollInterval: time.Second,
		logger:       logger,
		stopCh:       make(chan struct{}),
		done:         make(chan struct{}),
		active:       make(map[string]*activeTask),
	}
	if b, ok := backend.(identified); ok {
		p.workerID = b.WorkerID()
	} else {
		p.workerID = id.NewWorkerID()
	}
	for _, opt := range opts {
		opt(p)
	}
	p.slots = make(chan struct{}, p.concurrency)
	return p
}

// WorkerID returns the pool's unique worker identifier.
func (p *Pool) WorkerID() id.WorkerID { return p.workerID }

// Concurrency returns the execution bound.
func (p *Pool) Concurrency() int { return p.concurrency }

// Done is closed once every fetch loop has ended and detached work has
// settled, either because the backend is exhausted or after Stop.
func (p *Pool) Done() <-chan struct{} { return p.done }

// Start launches the worker goroutines. It returns immediately. Task
// contexts inherit ctx's values but not its cancellation.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running || p.stopped {
		return nil
	}
	p.running = true
	p.fetchCtx, p.fetchCancel = context.WithCancel(ctx)
	p.baseCtx = context.WithoutCancel(ctx)

	p.logger.Info("worker pool starting",
		slog.String("worker_id", p.workerID.String()),
		slog.Int("concurrency", p.concurrency),
	)

	for range p.concurrency {
		p.loops.Add(1)
		go p.dequeueLoop()
	}
	go func() {
		p.loops.Wait()
		close(p.done)
	}()

	if _, ok := p.backend.(Heartbeater); ok && p.heartbeatInterval > 0 {
		p.bg.Add(1)
		go p.heartbeatLoop()
	}
	if _, ok := p.backend.(Reaper); ok && p.staleThreshold > 0 {
		p.bg.Add(1)
		go p.reaperLoop()
	}

	return nil
}

// Stop stops fetching and waits for in-flight tasks to finish. If ctx
// ends first, in-flight tasks are cancelled and Stop waits for them to
// unwind.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.stopped = true
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.String("worker_id", p.workerID.String()))

	close(p.stopCh)
	p.fetchCancel()

	select {
	case <-p.done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling active tasks")
		p.Abort()
		<-p.done
	}
	p.bg.Wait()

	return nil
}

// Abort cancels every in-flight task. Workflows waiting on a delay are
// cancelled too.
func (p *Pool) Abort() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for taskID, a := range p.active {
		p.logger.Warn("cancelling active task", slog.String("task_id", taskID))
		a.cancel()
	}
}

// Resume runs fn under one of the pool's execution slots. Workflow
// continuations use it so delayed steps count against the bound.
func (p *Pool) Resume(fn func()) {
	p.loops.Add(1)
	go func() {
		defer p.loops.Done()
		p.slots <- struct{}{}
		defer func() { <-p.slots }()
		fn()
	}()
}

// dequeueLoop is run by each worker goroutine.
func (p *Pool) dequeueLoop() {
	defer p.loops.Done()

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		t, err := p.backend.Next(p.fetchCtx)
		if err != nil {
			if errors.Is(err, tick.ErrExhausted) {
				p.logger.Debug("backend exhausted", slog.String("worker_id", p.workerID.String()))
				return
			}
			if p.fetchCtx.Err() != nil {
				return
			}
			p.logger.Error("fetch task error", slog.String("error", err.Error()))
			if !p.sleep(p.pollInterval) {
				return
			}
			continue
		}

		if !p.admit(t) {
			p.giveBack(t)
			return
		}
		p.run(t)
	}
}

// admit waits for the queue manager and a free slot. It reports false
// when the pool stops first.
func (p *Pool) admit(t *task.Task) bool {
	if p.queueManager != nil {
		for !p.queueManager.Acquire(t.Queue, t.Name) {
			if !p.sleep(acquireInterval) {
				return false
			}
		}
	}
	select {
	case p.slots <- struct{}{}:
		return true
	case <-p.stopCh:
		if p.queueManager != nil {
			p.queueManager.Release(t.Queue, t.Name)
		}
		return false
	}
}

// giveBack returns a fetched but unstarted task to the backend.
func (p *Pool) giveBack(t *task.Task) {
	r, ok := p.backend.(Releaser)
	if !ok {
		p.logger.Warn("dropping unstarted tick on shutdown",
			slog.String("schedule", t.Name),
			slog.Time("run_at", t.RunAt),
		)
		return
	}
	if err := r.Release(context.WithoutCancel(p.fetchCtx), t); err != nil {
		p.logger.Error("failed to release task",
			slog.String("task_id", t.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (p *Pool) run(t *task.Task) {
	ctx := p.track(t)
	detached := false
	defer func() {
		<-p.slots
		if p.queueManager != nil {
			p.queueManager.Release(t.Queue, t.Name)
		}
		if !detached {
			p.untrack(t)
		}
	}()

	err := p.executor.execute(ctx, t, func(fn func()) {
		detached = true
		p.loops.Add(1)
		go func() {
			defer p.loops.Done()
			defer p.untrack(t)
			fn()
		}()
	})
	if err != nil {
		p.logger.Debug("task execution failed",
			slog.String("task_id", t.ID.String()),
			slog.String("schedule", t.Name),
			slog.String("error", err.Error()),
		)
	}
}

// heartbeatLoop periodically sends heartbeats for all active tasks.
func (p *Pool) heartbeatLoop() {
	defer p.bg.Done()

	hb := p.backend.(Heartbeater)
	ticker := time.NewTicker(p.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			for _, t := range p.activeTasks() {
				if err := hb.Heartbeat(p.baseCtx, t); err != nil {
					p.logger.Warn("heartbeat failed",
						slog.String("task_id", t.ID.String()),
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}
}

// reaperLoop periodically returns tasks with expired heartbeats to
// pending.
func (p *Pool) reaperLoop() {
	defer p.bg.Done()

	r := p.backend.(Reaper)
	ticker := time.NewTicker(p.staleThreshold)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			n, err := r.Reap(p.baseCtx, p.staleThreshold)
			if err != nil {
				p.logger.Error("reap stale tasks error", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				p.logger.Info("reaped stale tasks", slog.Int("count", n))
			}
		}
	}
}

// sleep waits d or until Stop. It reports false when stopped.
func (p *Pool) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-p.stopCh:
		return false
	}
}

func (p *Pool) track(t *task.Task) context.Context {
	ctx, cancel := context.WithCancel(p.baseCtx)
	p.activeMu.Lock()
	p.active[t.ID.String()] = &activeTask{task: t, cancel: cancel}
	p.activeMu.Unlock()
	return ctx
}

func (p *Pool) untrack(t *task.Task) {
	p.activeMu.Lock()
	a, ok := p.active[t.ID.String()]
	delete(p.active, t.ID.String())
	p.activeMu.Unlock()
	if ok {
		a.cancel()
	}
}

func (p *Pool) activeTasks() []*task.Task {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	out := make([]*task.Task, 0, len(p.active))
	for _, a := range p.active {
		out = append(out, a.task)
	}
	return out
}
