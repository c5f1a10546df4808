package middleware_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/cadence/middleware"
	"github.com/xraph/cadence/task"
	"github.com/xraph/cadence/tick"
	"github.com/xraph/cadence/worker"
)

// firedAt is the instant the scheduled tick fired.
var firedAt = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

// scheduledTask wraps one tick of the nightly-report schedule.
func scheduledTask(t *testing.T) *task.Task {
	t.Helper()
	tk, err := task.FromTick(tick.Tick{
		Stream:    "nightly-report",
		Seq:       1,
		Timestamp: firedAt,
		Planned:   firedAt,
		Timezone:  "UTC",
	}, task.JSONCodec{}, task.WithQueue("reports"))
	if err != nil {
		t.Fatalf("FromTick: %v", err)
	}
	return tk
}

// outcomeBackend records how the executor settled each task.
type outcomeBackend struct {
	mu        sync.Mutex
	completed int
	failed    []error
}

func (b *outcomeBackend) Next(context.Context) (*task.Task, error) {
	return nil, tick.ErrExhausted
}

func (b *outcomeBackend) Complete(context.Context, *task.Task) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.completed++
	return nil
}

func (b *outcomeBackend) Fail(_ context.Context, _ *task.Task, err error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failed = append(b.failed, err)
	return nil
}

var errFlaky = errors.New("upstream unavailable")

// executeFlaky runs tk under policy with mws around each attempt. The
// handler fails its first failures calls and succeeds afterwards.
func executeFlaky(t *testing.T, tk *task.Task, policy worker.Policy, failures int32, mws ...middleware.Middleware) (*outcomeBackend, error) {
	t.Helper()
	var calls atomic.Int32
	h := func(context.Context, tick.Tick, struct{}) error {
		if calls.Add(1) <= failures {
			return errFlaky
		}
		return nil
	}
	b := &outcomeBackend{}
	e := worker.NewExecutor(b, h, struct{}{}, silentLogger(),
		worker.WithRetryPolicy(policy),
		worker.WithMiddleware(mws...),
	)
	return b, e.Execute(context.Background(), tk)
}
