package pipe

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/task"
	"github.com/xraph/cadence/tick"
)

// Poller is a worker backend that consumes tasks from a store.
type Poller struct {
	store task.Store
	opts  options

	// done reports that no more tasks will arrive. Nil means never.
	done func() bool
}

// NewPoller creates a backend fetching from store. Without WithQueues it
// reads the queue given by WithQueue, or "default".
func NewPoller(store task.Store, opts ...Option) *Poller {
	p := &Poller{store: store, opts: newOptions(opts)}
	if len(p.opts.queues) == 0 {
		q := p.opts.queue
		if q == "" {
			q = task.DefaultOptions().Queue
		}
		p.opts.queues = []string{q}
	}
	return p
}

// Queues returns the queues the poller reads.
func (p *Poller) Queues() []string { return p.opts.queues }

// WorkerID returns the identity recorded on claimed tasks.
func (p *Poller) WorkerID() id.WorkerID { return p.opts.workerID }

// Next claims the next pending task, waiting the poll interval between
// empty fetches. Fetch errors are logged and retried.
func (p *Poller) Next(ctx context.Context) (*task.Task, error) {
	for {
		tasks, err := p.store.FetchTasks(ctx, p.opts.queues, 1, p.opts.workerID)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.opts.logger.Error("fetch tasks",
				slog.Any("queues", p.opts.queues),
				slog.String("error", err.Error()),
			)
		case len(tasks) > 0:
			return tasks[0], nil
		case p.done != nil && p.done():
			if err := p.drained(ctx); err != nil {
				return nil, err
			}
			continue
		}

		if err := sleep(ctx, p.opts.pollInterval); err != nil {
			return nil, err
		}
	}
}

// drained returns tick.ErrExhausted once the producer is done and nothing
// is pending in the poller's queues.
func (p *Poller) drained(ctx context.Context) error {
	for _, q := range p.opts.queues {
		n, err := p.store.CountTasks(ctx, task.CountOpts{Queue: q, State: task.StatePending})
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
	}
	return tick.ErrExhausted
}

// Complete marks the task completed.
func (p *Poller) Complete(ctx context.Context, t *task.Task) error {
	return p.store.CompleteTask(ctx, t.ID, t.Attempts)
}

// Fail marks the task failed with err.
func (p *Poller) Fail(ctx context.Context, t *task.Task, err error) error {
	return p.store.FailTask(ctx, t.ID, t.Attempts, err.Error())
}

// Release returns a claimed task to pending.
func (p *Poller) Release(ctx context.Context, t *task.Task) error {
	return p.store.ReleaseTask(ctx, t.ID)
}

// Heartbeat records that the task is still being worked on.
func (p *Poller) Heartbeat(ctx context.Context, t *task.Task) error {
	return p.store.HeartbeatTask(ctx, t.ID, p.opts.workerID)
}

// Reap returns running tasks with a heartbeat older than threshold to
// pending.
func (p *Poller) Reap(ctx context.Context, threshold time.Duration) (int, error) {
	return p.store.ReapStaleTasks(ctx, threshold)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
