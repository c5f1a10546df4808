package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/store"
	"github.com/xraph/cadence/store/memory"
	"github.com/xraph/cadence/store/storetest"
)

var _ store.Store = (*memory.Store)(nil)

func TestContract(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return memory.New() })
}

func TestLifecycle(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Ping(ctx); !errors.Is(err, cadence.ErrStoreClosed) {
		t.Fatalf("Ping after Close: got %v, want ErrStoreClosed", err)
	}
	tk := storetest.NewTask(t, "late", "default", 0, 0)
	if err := s.EnqueueTask(ctx, tk); !errors.Is(err, cadence.ErrStoreClosed) {
		t.Fatalf("EnqueueTask after Close: got %v, want ErrStoreClosed", err)
	}
}

func TestFetchReturnsCopies(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	tk := storetest.NewTask(t, "copy", "default", 0, 0)
	if err := s.EnqueueTask(ctx, tk); err != nil {
		t.Fatal(err)
	}
	got, err := s.FetchTasks(ctx, []string{"default"}, 1, tk.WorkerID)
	if err != nil || len(got) != 1 {
		t.Fatalf("FetchTasks = %v, %v", got, err)
	}
	got[0].Name = "mutated"

	stored, err := s.GetTask(ctx, tk.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Name != "copy" {
		t.Fatal("mutating a fetched task changed the store")
	}
}
