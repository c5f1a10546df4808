//go:build integration

package postgres_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/store"
	"github.com/xraph/cadence/store/postgres"
	"github.com/xraph/cadence/store/storetest"
	"github.com/xraph/cadence/task"
)

// setupContainer starts one Postgres container and returns its connection
// string. Each test gets its own database inside it.
func setupContainer(t *testing.T) string {
	t.Helper()

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("cadence_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}
	return connStr
}

func newStore(t *testing.T, connStr string) *postgres.Store {
	t.Helper()
	ctx := context.Background()

	s, err := postgres.New(ctx, connStr,
		postgres.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	// Every subtest starts from empty tables.
	if _, err := s.Pool().Exec(ctx, `TRUNCATE cadence_tasks, cadence_workflow_runs`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return s
}

func TestContract(t *testing.T) {
	connStr := setupContainer(t)
	storetest.Run(t, func(t *testing.T) store.Store {
		return newStore(t, connStr)
	})
}

func TestMigrateIdempotent(t *testing.T) {
	s := newStore(t, setupContainer(t))
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestConcurrentFetchSkipsLocked(t *testing.T) {
	s := newStore(t, setupContainer(t))
	ctx := context.Background()

	const n = 20
	for i := range n {
		tk := storetest.NewTask(t, "report", "default", time.Duration(i)*time.Minute, 0)
		if err := s.EnqueueTask(ctx, tk); err != nil {
			t.Fatalf("EnqueueTask: %v", err)
		}
	}

	var (
		mu      sync.Mutex
		claimed = make(map[string]int)
		wg      sync.WaitGroup
	)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker := id.NewWorkerID()
			for {
				tasks, err := s.FetchTasks(ctx, []string{"default"}, 3, worker)
				if err != nil {
					t.Errorf("FetchTasks: %v", err)
					return
				}
				if len(tasks) == 0 {
					return
				}
				mu.Lock()
				for _, tk := range tasks {
					claimed[tk.ID.String()]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(claimed) != n {
		t.Fatalf("claimed %d distinct tasks, want %d", len(claimed), n)
	}
	for taskID, count := range claimed {
		if count != 1 {
			t.Errorf("task %s claimed %d times", taskID, count)
		}
	}

	running, err := s.CountTasks(ctx, task.CountOpts{State: task.StateRunning})
	if err != nil {
		t.Fatalf("CountTasks: %v", err)
	}
	if running != n {
		t.Errorf("running = %d, want %d", running, n)
	}
}
