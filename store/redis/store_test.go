package redis_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/store"
	redisstore "github.com/xraph/cadence/store/redis"
	"github.com/xraph/cadence/store/storetest"
)

// client connects to REDIS_URL, or skips the test when it is unset.
func client(t *testing.T) *goredis.Client {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	opts, err := goredis.ParseURL(url)
	if err != nil {
		t.Fatalf("ParseURL: %v", err)
	}
	c := goredis.NewClient(opts)
	t.Cleanup(func() { _ = c.Close() })
	if err := c.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	return c
}

// newStore returns a store under a fresh key prefix and removes its keys
// when the test ends.
func newStore(t *testing.T, c *goredis.Client) *redisstore.Store {
	t.Helper()
	prefix := "cadence-test:" + id.NewRunID().String() + ":"
	t.Cleanup(func() {
		ctx := context.Background()
		iter := c.Scan(ctx, 0, prefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			c.Del(ctx, iter.Val())
		}
	})
	return redisstore.New(c,
		redisstore.WithPrefix(prefix),
		redisstore.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func TestContract(t *testing.T) {
	c := client(t)
	storetest.Run(t, func(t *testing.T) store.Store {
		return newStore(t, c)
	})
}

func TestPrefixesAreIsolated(t *testing.T) {
	c := client(t)
	ctx := context.Background()
	a, b := newStore(t, c), newStore(t, c)

	tk := storetest.NewTask(t, "report", "default", 0, 0)
	if err := a.EnqueueTask(ctx, tk); err != nil {
		t.Fatalf("EnqueueTask: %v", err)
	}

	got, err := b.FetchTasks(ctx, nil, 10, id.NewWorkerID())
	if err != nil {
		t.Fatalf("FetchTasks: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("store b fetched %d tasks from store a", len(got))
	}
	got, err = a.FetchTasks(ctx, nil, 10, id.NewWorkerID())
	if err != nil {
		t.Fatalf("FetchTasks: %v", err)
	}
	if len(got) != 1 || got[0].ID.String() != tk.ID.String() {
		t.Fatalf("store a fetched %v", got)
	}
}
