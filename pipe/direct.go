package pipe

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/xraph/cadence/task"
	"github.com/xraph/cadence/tick"
)

// DirectBackend feeds a worker straight from a stream.
type DirectBackend struct {
	src  Source
	opts options

	// buffered mode only
	ch       chan *task.Task
	mu       sync.Mutex
	err      error
	closed   chan struct{}
	closeOne sync.Once
}

// Direct creates a direct backend over src.
func Direct(src Source, opts ...Option) *DirectBackend {
	d := &DirectBackend{
		src:    src,
		opts:   newOptions(opts),
		closed: make(chan struct{}),
	}
	if d.opts.buffer > 0 {
		d.ch = make(chan *task.Task, d.opts.buffer)
	}
	return d
}

// Buffer returns the configured bound. Zero means pure pull.
func (d *DirectBackend) Buffer() int { return d.opts.buffer }

// Run fills the buffer from the stream until the stream is exhausted or
// ctx ends. In pure-pull mode it returns immediately.
func (d *DirectBackend) Run(ctx context.Context) error {
	if d.ch == nil {
		return nil
	}
	defer close(d.ch)

	for {
		t, err := d.pull(ctx)
		if err != nil {
			if !errors.Is(err, tick.ErrExhausted) && ctx.Err() == nil {
				d.setErr(err)
				return err
			}
			return nil
		}
		select {
		case d.ch <- t:
		case <-ctx.Done():
			return nil
		case <-d.closed:
			return nil
		}
	}
}

func (d *DirectBackend) setErr(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

func (d *DirectBackend) pull(ctx context.Context) (*task.Task, error) {
	tk, err := d.src.Next(ctx)
	if err != nil {
		return nil, err
	}
	t, err := task.FromTick(tk, d.opts.codec, d.opts.tickTaskOptions()...)
	if err != nil {
		return nil, err
	}
	t.State = task.StateRunning
	t.WorkerID = d.opts.workerID
	return t, nil
}

// Next returns the next tick as a task. It returns tick.ErrExhausted when
// the stream is done and ErrClosed after Close.
func (d *DirectBackend) Next(ctx context.Context) (*task.Task, error) {
	select {
	case <-d.closed:
		return nil, ErrClosed
	default:
	}

	if d.ch == nil {
		return d.pull(ctx)
	}

	select {
	case t, ok := <-d.ch:
		if !ok {
			d.mu.Lock()
			err := d.err
			d.mu.Unlock()
			if err != nil {
				return nil, err
			}
			return nil, tick.ErrExhausted
		}
		return t, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-d.closed:
		return nil, ErrClosed
	}
}

// Complete logs the outcome. Direct ticks are not persisted.
func (d *DirectBackend) Complete(_ context.Context, t *task.Task) error {
	d.opts.logger.Debug("direct tick completed",
		slog.String("stream", t.Name),
		slog.String("task_id", t.ID.String()),
	)
	return nil
}

// Fail logs the outcome. Direct ticks are not persisted.
func (d *DirectBackend) Fail(_ context.Context, t *task.Task, err error) error {
	d.opts.logger.Warn("direct tick failed",
		slog.String("stream", t.Name),
		slog.String("task_id", t.ID.String()),
		slog.Int("attempts", t.Attempts),
		slog.String("error", err.Error()),
	)
	return nil
}

// Close stops the backend. Buffered ticks are dropped.
func (d *DirectBackend) Close() error {
	d.closeOne.Do(func() { close(d.closed) })
	return nil
}
