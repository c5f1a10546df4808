package pipe

import (
	"context"
	"errors"
	"log/slog"

	"github.com/xraph/cadence/backoff"
	"github.com/xraph/cadence/task"
	"github.com/xraph/cadence/tick"
)

// Pipe writes every tick of a stream to a store.
type Pipe struct {
	src   Source
	store task.Store
	opts  options
}

// New creates a pipe from src into store.
func New(src Source, store task.Store, opts ...Option) *Pipe {
	p := &Pipe{src: src, store: store, opts: newOptions(opts)}
	if p.opts.queue == "" {
		p.opts.queue = src.Name()
	}
	return p
}

// Queue returns the queue tasks are written to.
func (p *Pipe) Queue() string { return p.opts.queue }

// Run reads the stream and writes each tick until the stream is exhausted
// (nil), ctx ends (nil) or a write fails for good (*WriteError). After a
// write failure the stream is not read again.
func (p *Pipe) Run(ctx context.Context) error {
	log := p.opts.logger.With(slog.String("stream", p.src.Name()))
	log.Info("pipe started", slog.String("queue", p.opts.queue))

	for {
		tk, err := p.src.Next(ctx)
		if err != nil {
			if errors.Is(err, tick.ErrExhausted) {
				log.Info("pipe finished, stream exhausted")
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		if err := p.write(ctx, tk); err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return nil
			}
			log.Error("pipe halted",
				slog.Uint64("seq", tk.Seq),
				slog.String("error", err.Error()),
			)
			if p.opts.emitter != nil {
				p.opts.emitter.EmitPipeFailed(ctx, p.src.Name(), err)
			}
			return err
		}
	}
}

func (p *Pipe) write(ctx context.Context, tk tick.Tick) error {
	t, err := task.FromTick(tk, p.opts.codec, p.opts.tickTaskOptions()...)
	if err != nil {
		return &WriteError{Tick: tk, Attempts: 0, Err: err}
	}

	var lastErr error
	for attempt := 1; attempt <= p.opts.maxAttempts; attempt++ {
		lastErr = p.store.EnqueueTask(ctx, t)
		if lastErr == nil {
			if p.opts.emitter != nil {
				p.opts.emitter.EmitTaskEnqueued(ctx, t)
			}
			return nil
		}
		if attempt == p.opts.maxAttempts {
			break
		}
		p.opts.logger.Warn("pipe write failed, retrying",
			slog.String("stream", tk.Stream),
			slog.Int("attempt", attempt),
			slog.String("error", lastErr.Error()),
		)
		if err := backoff.Wait(ctx, p.opts.strategy, attempt); err != nil {
			return err
		}
	}
	return &WriteError{Tick: tk, Attempts: p.opts.maxAttempts, Err: lastErr}
}
