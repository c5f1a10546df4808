package pipe

import (
	"context"
	"sync/atomic"

	"github.com/xraph/cadence/task"
)

// Piped is a worker backend that persists a stream's ticks and consumes
// them back from the store.
type Piped struct {
	*Poller
	pipe     *Pipe
	finished atomic.Bool
}

// To pipes src into store and returns a backend reading from it. The
// worker runs the writing half through Run.
func To(src Source, store task.Store, opts ...Option) *Piped {
	p := New(src, store, opts...)
	popts := append(append([]Option(nil), opts...), WithQueues(p.Queue()))
	poller := NewPoller(store, popts...)
	pd := &Piped{Poller: poller, pipe: p}
	poller.done = pd.finished.Load
	return pd
}

// Pipe returns the writing half.
func (p *Piped) Pipe() *Pipe { return p.pipe }

// Run writes ticks until the stream is exhausted or a write fails. Once
// the stream is exhausted, Next reports exhaustion after the queue drains.
func (p *Piped) Run(ctx context.Context) error {
	err := p.pipe.Run(ctx)
	if err == nil && ctx.Err() == nil {
		p.finished.Store(true)
	}
	return err
}
