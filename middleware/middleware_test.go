package middleware_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/middleware"
	"github.com/xraph/cadence/task"
)

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestChain_ExecutionOrder(t *testing.T) {
	var order []string

	mw1 := func(ctx context.Context, _ *task.Task, next middleware.Handler) error {
		order = append(order, "mw1-before")
		err := next(ctx)
		order = append(order, "mw1-after")
		return err
	}

	mw2 := func(ctx context.Context, _ *task.Task, next middleware.Handler) error {
		order = append(order, "mw2-before")
		err := next(ctx)
		order = append(order, "mw2-after")
		return err
	}

	chain := middleware.Chain(mw1, mw2)
	j := &task.Task{Name: "test", ID: id.NewTaskID()}
	handler := func(_ context.Context) error {
		order = append(order, "handler")
		return nil
	}

	err := chain(context.Background(), j, handler)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := []string{"mw1-before", "mw2-before", "handler", "mw2-after", "mw1-after"}
	if len(order) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(order), order)
	}
	for i, want := range expected {
		if order[i] != want {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want)
		}
	}
}

func TestChain_Empty(t *testing.T) {
	chain := middleware.Chain()
	called := false
	handler := func(_ context.Context) error {
		called = true
		return nil
	}

	err := chain(context.Background(), &task.Task{ID: id.NewTaskID()}, handler)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called with empty chain")
	}
}

func TestChain_PropagatesError(t *testing.T) {
	mw := func(ctx context.Context, _ *task.Task, next middleware.Handler) error {
		return next(ctx)
	}
	chain := middleware.Chain(mw)
	want := errors.New("handler error")

	err := chain(context.Background(), &task.Task{ID: id.NewTaskID()}, func(_ context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestRecover_CatchesPanic(t *testing.T) {
	logger := silentLogger()
	mw := middleware.Recover(logger)
	j := &task.Task{Name: "panicky", ID: id.NewTaskID()}

	err := mw(context.Background(), j, func(_ context.Context) error {
		panic("test panic")
	})
	if err == nil {
		t.Fatal("expected error from panic recovery")
	}
	if got := err.Error(); got != "panic in schedule panicky: test panic" {
		t.Errorf("unexpected error message: %q", got)
	}
}

func TestRecover_PassesThrough(t *testing.T) {
	logger := silentLogger()
	mw := middleware.Recover(logger)
	j := &task.Task{Name: "normal", ID: id.NewTaskID()}

	called := false
	err := mw(context.Background(), j, func(_ context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called")
	}
}

func TestLogging_Success(t *testing.T) {
	logger := silentLogger()
	mw := middleware.Logging(logger)
	j := &task.Task{Name: "log-test", ID: id.NewTaskID(), Queue: "default"}

	called := false
	err := mw(context.Background(), j, func(_ context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called")
	}
}

func TestLogging_Error(t *testing.T) {
	logger := silentLogger()
	mw := middleware.Logging(logger)
	j := &task.Task{Name: "log-test", ID: id.NewTaskID(), Queue: "default"}
	want := errors.New("fail")

	err := mw(context.Background(), j, func(_ context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestTimeout_AppliesTaskTimeout(t *testing.T) {
	mw := middleware.Timeout(silentLogger())
	tk := &task.Task{Name: "bounded", ID: id.NewTaskID(), Timeout: 10 * time.Millisecond}

	err := mw(context.Background(), tk, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestTimeout_ZeroLeavesContext(t *testing.T) {
	mw := middleware.Timeout(silentLogger())
	tk := &task.Task{Name: "unbounded", ID: id.NewTaskID()}

	err := mw(context.Background(), tk, func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); ok {
			t.Fatal("unexpected deadline")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSkipStale(t *testing.T) {
	mw := middleware.SkipStale(time.Minute, silentLogger())

	tests := []struct {
		name   string
		runAt  time.Time
		called bool
	}{
		{name: "fresh", runAt: time.Now().Add(-time.Second), called: true},
		{name: "stale", runAt: time.Now().Add(-time.Hour), called: false},
		{name: "unset", called: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			tk := &task.Task{Name: "s", ID: id.NewTaskID(), RunAt: tt.runAt}
			err := mw(context.Background(), tk, func(context.Context) error {
				called = true
				return errors.New("ran")
			})
			if called != tt.called {
				t.Fatalf("called = %v, want %v", called, tt.called)
			}
			if !tt.called && err != nil {
				t.Fatalf("skipped task should succeed, got %v", err)
			}
		})
	}
}
