package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/tick"
)

// Instance is one execution of a chain. It owns its intermediate results.
type Instance[Out any] struct {
	done chan struct{}
	out  Out
	err  error

	mu  sync.Mutex
	run Run
}

// Done is closed when the instance has finished.
func (i *Instance[Out]) Done() <-chan struct{} { return i.done }

// Wait blocks until the instance finishes and returns its result.
func (i *Instance[Out]) Wait() (Out, error) {
	<-i.done
	return i.out, i.err
}

// Run returns a snapshot of the run record.
func (i *Instance[Out]) Run() Run {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.run
}

type runner[D, Out any] struct {
	chain *Chain[D, Out]
	inst  *Instance[Out]
	ctx   context.Context
	data  D
	began time.Time
}

// Start launches an instance for t. Steps up to the first delay run on the
// calling goroutine; Start returns once the instance has finished or
// parked on a delay.
func (c *Chain[D, Out]) Start(ctx context.Context, t tick.Tick, data D) *Instance[Out] {
	now := time.Now().UTC()
	r := &runner[D, Out]{
		chain: c,
		ctx:   ctx,
		data:  data,
		began: now,
		inst: &Instance[Out]{
			done: make(chan struct{}),
			run: Run{
				Entity:    cadence.NewEntity(),
				ID:        id.NewRunID(),
				Workflow:  c.name,
				State:     RunStateRunning,
				TickAt:    t.Timestamp.UTC(),
				StartedAt: now,
			},
		},
	}

	if s := c.cfg.store; s != nil {
		snap := r.snapshot()
		if err := s.CreateRun(ctx, &snap); err != nil {
			c.cfg.logger.Error("workflow: create run",
				slog.String("workflow", c.name),
				slog.String("run_id", snap.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	if e := c.cfg.emitter; e != nil {
		snap := r.snapshot()
		e.EmitWorkflowStarted(ctx, &snap)
	}
	c.cfg.logger.Debug("workflow started",
		slog.String("workflow", c.name),
		slog.String("run_id", r.inst.run.ID.String()),
	)

	r.advance(0, t)
	return r.inst
}

func (r *runner[D, Out]) snapshot() Run {
	r.inst.mu.Lock()
	defer r.inst.mu.Unlock()
	return r.inst.run
}

// update mutates the run record and persists it.
func (r *runner[D, Out]) update(fn func(*Run)) Run {
	r.inst.mu.Lock()
	fn(&r.inst.run)
	r.inst.run.Touch()
	snap := r.inst.run
	r.inst.mu.Unlock()

	if s := r.chain.cfg.store; s != nil {
		// The run's own context may be done by now; the record still has
		// to reach the store.
		ctx := context.WithoutCancel(r.ctx)
		if err := s.UpdateRun(ctx, &snap); err != nil {
			r.chain.cfg.logger.Error("workflow: update run",
				slog.String("workflow", r.chain.name),
				slog.String("run_id", snap.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	return snap
}

// advance runs steps from index i with val as input until the chain ends,
// fails or parks on a delay.
func (r *runner[D, Out]) advance(i int, val any) {
	steps := r.chain.steps
	for ; i < len(steps); i++ {
		if err := r.ctx.Err(); err != nil {
			r.finish(nil, err)
			return
		}
		s := steps[i]
		if s.delay > 0 {
			r.suspend(i, val, s.delay)
			return
		}

		snap := r.update(func(run *Run) {
			run.State = RunStateRunning
			run.Step = i
			run.StepName = s.name
			run.ResumeAt = nil
		})
		began := time.Now()
		out, err := call(r.ctx, s, val, r.data)
		if err != nil {
			stepErr := &StepError{Step: s.name, Index: i, Err: err}
			if e := r.chain.cfg.emitter; e != nil {
				e.EmitWorkflowStepFailed(r.ctx, &snap, s.name, err)
			}
			r.finish(nil, stepErr)
			return
		}
		if e := r.chain.cfg.emitter; e != nil {
			e.EmitWorkflowStepCompleted(r.ctx, &snap, s.name, time.Since(began))
		}
		val = out
	}
	r.finish(val, nil)
}

func call[D any](ctx context.Context, s step[D], in any, data D) (out any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return s.fn(ctx, in, data)
}

// suspend parks the instance for d. Exactly one of the timer and the
// context watcher claims the instance: the timer resumes it, the watcher
// stops the timer and cancels the instance.
func (r *runner[D, Out]) suspend(i int, val any, d time.Duration) {
	resumeAt := time.Now().Add(d).UTC()
	r.update(func(run *Run) {
		run.State = RunStateWaiting
		run.Step = i
		run.StepName = r.chain.steps[i].name
		run.ResumeAt = &resumeAt
	})

	var (
		claimed atomic.Bool
		mu      sync.Mutex
		timer   *time.Timer
	)
	stopWatch := context.AfterFunc(r.ctx, func() {
		if !claimed.CompareAndSwap(false, true) {
			return
		}
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		r.finish(nil, r.ctx.Err())
	})

	mu.Lock()
	timer = time.AfterFunc(d, func() {
		if !claimed.CompareAndSwap(false, true) {
			return
		}
		stopWatch()
		r.chain.cfg.resume(func() { r.advance(i+1, val) })
	})
	if claimed.Load() {
		timer.Stop()
	}
	mu.Unlock()
}

func (r *runner[D, Out]) finish(val any, err error) {
	elapsed := time.Since(r.began)
	now := time.Now().UTC()
	snap := r.update(func(run *Run) {
		run.CompletedAt = &now
		run.ResumeAt = nil
		switch {
		case err == nil:
			run.State = RunStateCompleted
		case r.ctx.Err() != nil && err == r.ctx.Err():
			run.State = RunStateCancelled
			run.Error = err.Error()
		default:
			run.State = RunStateFailed
			run.Error = err.Error()
		}
	})

	log := r.chain.cfg.logger
	if err == nil {
		r.inst.out, _ = val.(Out)
		log.Debug("workflow completed",
			slog.String("workflow", r.chain.name),
			slog.String("run_id", snap.ID.String()),
			slog.Duration("elapsed", elapsed),
		)
		if e := r.chain.cfg.emitter; e != nil {
			e.EmitWorkflowCompleted(r.ctx, &snap, elapsed)
		}
	} else {
		r.inst.err = err
		log.Warn("workflow failed",
			slog.String("workflow", r.chain.name),
			slog.String("run_id", snap.ID.String()),
			slog.String("state", string(snap.State)),
			slog.String("error", err.Error()),
		)
		if e := r.chain.cfg.emitter; e != nil {
			e.EmitWorkflowFailed(r.ctx, &snap, err)
		}
	}
	close(r.inst.done)
}
