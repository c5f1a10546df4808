package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/cadence/tick"
)

// Emitter receives workflow lifecycle events. ext.Registry satisfies it.
type Emitter interface {
	EmitWorkflowStarted(ctx context.Context, run *Run)
	EmitWorkflowStepCompleted(ctx context.Context, run *Run, stepName string, elapsed time.Duration)
	EmitWorkflowStepFailed(ctx context.Context, run *Run, stepName string, err error)
	EmitWorkflowCompleted(ctx context.Context, run *Run, elapsed time.Duration)
	EmitWorkflowFailed(ctx context.Context, run *Run, err error)
}

// Resumer runs the continuation of an instance after a delay. The default
// runs it on the timer's goroutine; workers substitute one that runs it in
// their pool.
type Resumer func(fn func())

// StepError reports the step that aborted an instance.
type StepError struct {
	Step  string
	Index int
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("workflow: step %d (%s) failed: %v", e.Index, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

type config struct {
	store   Store
	emitter Emitter
	logger  *slog.Logger
	resume  Resumer
}

// Option configures a Chain.
type Option func(*config)

// WithStore records every run in s.
func WithStore(s Store) Option {
	return func(c *config) { c.store = s }
}

// WithEmitter sets the lifecycle event emitter.
func WithEmitter(e Emitter) Option {
	return func(c *config) { c.emitter = e }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithResumer sets how continuations after a delay are run.
func WithResumer(r Resumer) Option {
	return func(c *config) { c.resume = r }
}

type step[D any] struct {
	name  string
	delay time.Duration
	fn    func(ctx context.Context, in any, data D) (any, error)
}

// Chain is an immutable, typed list of steps. D is the shared data type
// handed to every step and Out is the output type of the last step.
type Chain[D, Out any] struct {
	name  string
	steps []step[D]
	cfg   config
}

// New starts a chain whose first step consumes the tick.
func New[D, Out any](name string, fn func(ctx context.Context, t tick.Tick, data D) (Out, error), opts ...Option) *Chain[D, Out] {
	c := &Chain[D, Out]{
		name: name,
		cfg:  config{logger: slog.Default(), resume: func(fn func()) { fn() }},
	}
	for _, opt := range opts {
		opt(&c.cfg)
	}
	c.steps = []step[D]{{
		name: name,
		fn: func(ctx context.Context, in any, data D) (any, error) {
			return fn(ctx, in.(tick.Tick), data)
		},
	}}
	return c
}

// Then appends a step consuming the previous step's output.
func Then[D, In, Out any](c *Chain[D, In], name string, fn func(ctx context.Context, in In, data D) (Out, error)) *Chain[D, Out] {
	return &Chain[D, Out]{
		name: c.name,
		cfg:  c.cfg,
		steps: append(cloneSteps(c.steps), step[D]{
			name: name,
			fn: func(ctx context.Context, in any, data D) (any, error) {
				return fn(ctx, in.(In), data)
			},
		}),
	}
}

// Delay appends a pause of d before the next step. The value flowing
// through the chain is passed on unchanged.
func Delay[D, T any](c *Chain[D, T], d time.Duration) *Chain[D, T] {
	if d <= 0 {
		return c
	}
	return &Chain[D, T]{
		name:  c.name,
		cfg:   c.cfg,
		steps: append(cloneSteps(c.steps), step[D]{name: "delay " + d.String(), delay: d}),
	}
}

func cloneSteps[D any](steps []step[D]) []step[D] {
	out := make([]step[D], len(steps), len(steps)+1)
	copy(out, steps)
	return out
}

// With returns a copy of c with opts applied.
func (c *Chain[D, Out]) With(opts ...Option) *Chain[D, Out] {
	cp := *c
	for _, opt := range opts {
		opt(&cp.cfg)
	}
	return &cp
}

// Name returns the chain name, taken from New.
func (c *Chain[D, Out]) Name() string { return c.name }

// Len returns the number of steps, delays included.
func (c *Chain[D, Out]) Len() int { return len(c.steps) }

// Run executes one instance for t and waits for it to finish.
func (c *Chain[D, Out]) Run(ctx context.Context, t tick.Tick, data D) (Out, error) {
	return c.Start(ctx, t, data).Wait()
}

// Handler adapts the chain to a handler signature that discards the
// output.
func (c *Chain[D, Out]) Handler() func(ctx context.Context, t tick.Tick, data D) error {
	return func(ctx context.Context, t tick.Tick, data D) error {
		_, err := c.Run(ctx, t, data)
		return err
	}
}
