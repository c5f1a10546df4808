package sqlite_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/store"
	"github.com/xraph/cadence/store/sqlite"
	"github.com/xraph/cadence/store/storetest"
	"github.com/xraph/cadence/task"
)

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func open(t *testing.T, path string) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(context.Background(), path, sqlite.WithLogger(silentLogger()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s := open(t, filepath.Join(t.TempDir(), "cadence.db"))
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestMigrateIdempotent(t *testing.T) {
	s := open(t, filepath.Join(t.TempDir(), "cadence.db"))
	defer s.Close()

	for range 2 {
		if err := s.Migrate(context.Background()); err != nil {
			t.Fatalf("Migrate: %v", err)
		}
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

// Piped ticks must survive a restart and come back in firing order.
func TestRestartKeepsOrder(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "cadence.db")

	s := open(t, path)
	third := storetest.NewTask(t, "report", "report", 3*time.Minute, 0)
	first := storetest.NewTask(t, "report", "report", time.Minute, 0)
	second := storetest.NewTask(t, "report", "report", 2*time.Minute, 0)
	for _, tk := range []*task.Task{third, first, second} {
		if err := s.EnqueueTask(ctx, tk); err != nil {
			t.Fatalf("EnqueueTask: %v", err)
		}
	}

	claimed, err := s.FetchTasks(ctx, []string{"report"}, 1, id.NewWorkerID())
	if err != nil || len(claimed) != 1 {
		t.Fatalf("FetchTasks = %d, %v", len(claimed), err)
	}
	if claimed[0].ID.String() != first.ID.String() {
		t.Fatalf("claimed %s, want first", claimed[0].ID)
	}
	if err := s.CompleteTask(ctx, claimed[0].ID, 1); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s = open(t, path)
	defer s.Close()

	got, err := s.GetTask(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.State != task.StateCompleted {
		t.Fatalf("completed task state after restart = %q", got.State)
	}

	for _, want := range []*task.Task{second, third} {
		tasks, err := s.FetchTasks(ctx, []string{"report"}, 1, id.NewWorkerID())
		if err != nil || len(tasks) != 1 {
			t.Fatalf("FetchTasks = %d, %v", len(tasks), err)
		}
		if tasks[0].ID.String() != want.ID.String() {
			t.Fatalf("fetched %s, want %s", tasks[0].ID, want.ID)
		}
		if !tasks[0].RunAt.Equal(want.RunAt) {
			t.Fatalf("run_at = %v, want %v", tasks[0].RunAt, want.RunAt)
		}
		decoded, err := tasks[0].Tick()
		if err != nil {
			t.Fatalf("Tick: %v", err)
		}
		if !decoded.Timestamp.Equal(want.RunAt) {
			t.Fatalf("tick timestamp = %v, want %v", decoded.Timestamp, want.RunAt)
		}
	}
}
