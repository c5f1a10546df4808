package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Worker consumes one backend with a bounded pool.
type Worker struct {
	name            string
	backend         Backend
	pool            *Pool
	logger          *slog.Logger
	shutdownTimeout time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Name returns the worker name.
func (w *Worker) Name() string { return w.name }

// Pool returns the worker's pool.
func (w *Worker) Pool() *Pool { return w.pool }

// Run processes tasks until the backend is exhausted or ctx is
// cancelled, then waits for in-flight work. If the backend is a Runner
// its producer runs alongside the pool, and a producer error stops the
// worker and is returned once in-flight work has drained.
//
// A worker runs once; later calls return ErrAlreadyStarted.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.done != nil {
		w.mu.Unlock()
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	done := w.done
	w.mu.Unlock()

	defer close(done)
	defer cancel()

	w.logger.Info("worker started", slog.Int("concurrency", w.pool.Concurrency()))

	g, gctx := errgroup.WithContext(ctx)
	if r, ok := w.backend.(Runner); ok {
		g.Go(func() error { return r.Run(gctx) })
	}
	g.Go(func() error {
		if err := w.pool.Start(gctx); err != nil {
			return err
		}
		select {
		case <-gctx.Done():
		case <-w.pool.Done():
		}

		stopCtx := context.Background()
		if w.shutdownTimeout > 0 {
			var stopCancel context.CancelFunc
			stopCtx, stopCancel = context.WithTimeout(stopCtx, w.shutdownTimeout)
			defer stopCancel()
		}
		return w.pool.Stop(stopCtx)
	})

	err := g.Wait()

	if c, ok := w.backend.(Closer); ok {
		if cerr := c.Close(); cerr != nil {
			w.logger.Warn("backend close error", slog.String("error", cerr.Error()))
		}
	}

	if err != nil {
		w.logger.Error("worker stopped", slog.String("error", err.Error()))
		return err
	}
	w.logger.Info("worker stopped")
	return nil
}

// Stop ends a running worker. It waits for in-flight tasks until ctx is
// done, then cancels them and waits for them to unwind. Stop on a worker
// that never ran is a no-op.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.mu.Unlock()
	if done == nil {
		return nil
	}

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		w.logger.Warn("worker shutdown deadline reached, aborting in-flight tasks")
		w.pool.Abort()
		<-done
		return ctx.Err()
	}
}
