// Package storetest holds the contract tests shared by every store
// backend. A backend's own test calls Run with a constructor that returns
// a fresh, migrated store.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/store"
	"github.com/xraph/cadence/task"
	"github.com/xraph/cadence/tick"
	"github.com/xraph/cadence/workflow"
)

// Factory returns an empty, migrated store. It should register its own
// cleanup with t.Cleanup.
type Factory func(t *testing.T) store.Store

// Run runs the full contract suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"EnqueueAndGet", testEnqueueAndGet},
		{"FetchOrder", testFetchOrder},
		{"FetchQueues", testFetchQueues},
		{"FetchClaimsOnce", testFetchClaimsOnce},
		{"Transitions", testTransitions},
		{"Release", testRelease},
		{"HeartbeatAndReap", testHeartbeatAndReap},
		{"ListAndCount", testListAndCount},
		{"Delete", testDelete},
		{"CodecRoundTrip", testCodecRoundTrip},
		{"Runs", testRuns},
		{"ListRuns", testListRuns},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

var base = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

// NewTask builds a pending task from a tick fired at base+offset.
func NewTask(t *testing.T, stream, queue string, offset time.Duration, priority int) *task.Task {
	t.Helper()
	tk := tick.Tick{
		Stream:    stream,
		Seq:       1,
		Timestamp: base.Add(offset),
		Planned:   base.Add(offset),
		Timezone:  "UTC",
	}
	out, err := task.FromTick(tk, task.JSONCodec{}, task.WithQueue(queue), task.WithPriority(priority))
	if err != nil {
		t.Fatalf("FromTick: %v", err)
	}
	return out
}

func enqueue(t *testing.T, s store.Store, tasks ...*task.Task) {
	t.Helper()
	for _, tk := range tasks {
		if err := s.EnqueueTask(context.Background(), tk); err != nil {
			t.Fatalf("EnqueueTask(%s): %v", tk.Name, err)
		}
	}
}

func fetchOne(t *testing.T, s store.Store, queue string) *task.Task {
	t.Helper()
	got, err := s.FetchTasks(context.Background(), []string{queue}, 1, id.NewWorkerID())
	if err != nil {
		t.Fatalf("FetchTasks: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("FetchTasks returned %d tasks, want 1", len(got))
	}
	return got[0]
}

func testEnqueueAndGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	tk := NewTask(t, "report", "default", 0, 0)
	enqueue(t, s, tk)

	if err := s.EnqueueTask(ctx, tk); !errors.Is(err, cadence.ErrTaskAlreadyExists) {
		t.Fatalf("duplicate enqueue: got %v, want ErrTaskAlreadyExists", err)
	}

	got, err := s.GetTask(ctx, tk.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.Name != "report" || got.Queue != "default" || got.State != task.StatePending {
		t.Fatalf("got %+v", got)
	}
	if got.Codec != tk.Codec || string(got.Payload) != string(tk.Payload) {
		t.Fatal("payload or codec changed in storage")
	}

	if _, err := s.GetTask(ctx, id.NewTaskID()); !errors.Is(err, cadence.ErrTaskNotFound) {
		t.Fatalf("missing task: got %v, want ErrTaskNotFound", err)
	}
}

func testFetchOrder(t *testing.T, s store.Store) {
	ctx := context.Background()
	late := NewTask(t, "late", "default", 2*time.Minute, 0)
	early := NewTask(t, "early", "default", time.Minute, 0)
	urgent := NewTask(t, "urgent", "default", 3*time.Minute, 5)
	// Same RunAt as early, created later: ID breaks the tie.
	twin := NewTask(t, "twin", "default", time.Minute, 0)
	enqueue(t, s, late, twin, early, urgent)

	want := []string{"urgent", "early", "twin", "late"}
	workerID := id.NewWorkerID()
	for i, name := range want {
		got, err := s.FetchTasks(ctx, []string{"default"}, 1, workerID)
		if err != nil {
			t.Fatalf("FetchTasks: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("fetch %d: got %d tasks", i, len(got))
		}
		if got[0].Name != name {
			t.Fatalf("fetch %d = %q, want %q", i, got[0].Name, name)
		}
		if got[0].State != task.StateRunning {
			t.Fatalf("fetched state = %q", got[0].State)
		}
		if got[0].WorkerID.String() != workerID.String() {
			t.Fatalf("worker id = %q, want %q", got[0].WorkerID, workerID)
		}
	}

	empty, err := s.FetchTasks(ctx, []string{"default"}, 1, workerID)
	if err != nil {
		t.Fatalf("FetchTasks: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty fetch, got %d", len(empty))
	}
}

func testFetchQueues(t *testing.T, s store.Store) {
	ctx := context.Background()
	enqueue(t, s,
		NewTask(t, "a", "alpha", 0, 0),
		NewTask(t, "b", "beta", time.Second, 0),
		NewTask(t, "c", "gamma", 2*time.Second, 0),
	)

	got, err := s.FetchTasks(ctx, []string{"alpha", "beta"}, 10, id.NewWorkerID())
	if err != nil {
		t.Fatalf("FetchTasks: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d tasks, want 2", len(got))
	}
	for _, tk := range got {
		if tk.Queue == "gamma" {
			t.Fatal("fetched from a queue that was not asked for")
		}
	}
}

func testFetchClaimsOnce(t *testing.T, s store.Store) {
	ctx := context.Background()
	const n = 20
	for i := range n {
		enqueue(t, s, NewTask(t, fmt.Sprintf("t%02d", i), "default", time.Duration(i)*time.Second, 0))
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
			workerID := id.NewWorkerID()
			for {
				got, err := s.FetchTasks(ctx, []string{"default"}, 1, workerID)
				if err != nil {
					t.Errorf("FetchTasks: %v", err)
					return
				}
				if len(got) == 0 {
					return
				}
				mu.Lock()
				claimed[got[0].ID.String()]++
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
			t.Fatalf("task %s claimed %d times", taskID, count)
		}
	}
}

func testTransitions(t *testing.T, s store.Store) {
	ctx := context.Background()
	ok := NewTask(t, "ok", "default", 0, 0)
	bad := NewTask(t, "bad", "default", time.Second, 0)
	enqueue(t, s, ok, bad)

	// Pending tasks cannot be completed.
	if err := s.CompleteTask(ctx, ok.ID, 1); !errors.Is(err, cadence.ErrInvalidState) {
		t.Fatalf("complete pending: got %v, want ErrInvalidState", err)
	}
	if err := s.CompleteTask(ctx, id.NewTaskID(), 1); !errors.Is(err, cadence.ErrTaskNotFound) {
		t.Fatalf("complete missing: got %v, want ErrTaskNotFound", err)
	}

	fetchOne(t, s, "default")
	if err := s.CompleteTask(ctx, ok.ID, 2); err != nil {
		t.Fatalf("CompleteTask: %v", err)
	}
	got, err := s.GetTask(ctx, ok.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.State != task.StateCompleted || got.Attempts != 2 || got.CompletedAt == nil {
		t.Fatalf("completed task = %+v", got)
	}
	if err := s.FailTask(ctx, ok.ID, 3, "late"); !errors.Is(err, cadence.ErrInvalidState) {
		t.Fatalf("fail completed: got %v, want ErrInvalidState", err)
	}

	fetchOne(t, s, "default")
	if err := s.FailTask(ctx, bad.ID, 3, "boom"); err != nil {
		t.Fatalf("FailTask: %v", err)
	}
	got, err = s.GetTask(ctx, bad.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.State != task.StateFailed || got.Attempts != 3 || got.LastError != "boom" {
		t.Fatalf("failed task = %+v", got)
	}
}

func testRelease(t *testing.T, s store.Store) {
	ctx := context.Background()
	tk := NewTask(t, "again", "default", 0, 0)
	enqueue(t, s, tk)

	fetchOne(t, s, "default")
	if err := s.ReleaseTask(ctx, tk.ID); err != nil {
		t.Fatalf("ReleaseTask: %v", err)
	}
	got, err := s.GetTask(ctx, tk.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.State != task.StatePending {
		t.Fatalf("state after release = %q", got.State)
	}
	if again := fetchOne(t, s, "default"); again.ID.String() != tk.ID.String() {
		t.Fatal("released task was not fetchable again")
	}
	if err := s.ReleaseTask(ctx, id.NewTaskID()); !errors.Is(err, cadence.ErrTaskNotFound) {
		t.Fatalf("release missing: got %v", err)
	}
}

func testHeartbeatAndReap(t *testing.T, s store.Store) {
	ctx := context.Background()
	tk := NewTask(t, "hb", "default", 0, 0)
	enqueue(t, s, tk)
	claimed := fetchOne(t, s, "default")

	time.Sleep(50 * time.Millisecond)
	if err := s.HeartbeatTask(ctx, claimed.ID, claimed.WorkerID); err != nil {
		t.Fatalf("HeartbeatTask: %v", err)
	}
	n, err := s.ReapStaleTasks(ctx, time.Hour)
	if err != nil {
		t.Fatalf("ReapStaleTasks: %v", err)
	}
	if n != 0 {
		t.Fatalf("reaped %d fresh tasks", n)
	}

	time.Sleep(50 * time.Millisecond)
	n, err = s.ReapStaleTasks(ctx, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("ReapStaleTasks: %v", err)
	}
	if n != 1 {
		t.Fatalf("reaped %d tasks, want 1", n)
	}
	got, err := s.GetTask(ctx, tk.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.State != task.StatePending {
		t.Fatalf("state after reap = %q", got.State)
	}
}

func testListAndCount(t *testing.T, s store.Store) {
	ctx := context.Background()
	enqueue(t, s,
		NewTask(t, "d1", "default", 0, 0),
		NewTask(t, "d2", "default", time.Second, 0),
		NewTask(t, "c1", "critical", 2*time.Second, 0),
	)
	fetchOne(t, s, "critical")

	listTests := []struct {
		name string
		opts task.ListOpts
		want []string
	}{
		{"all", task.ListOpts{}, []string{"d1", "d2", "c1"}},
		{"default queue", task.ListOpts{Queue: "default"}, []string{"d1", "d2"}},
		{"running", task.ListOpts{State: task.StateRunning}, []string{"c1"}},
		{"limit", task.ListOpts{Limit: 1}, []string{"d1"}},
		{"offset", task.ListOpts{Offset: 1, Limit: 1}, []string{"d2"}},
		{"offset past end", task.ListOpts{Offset: 10}, nil},
	}
	for _, tt := range listTests {
		t.Run("List/"+tt.name, func(t *testing.T) {
			got, err := s.ListTasks(ctx, tt.opts)
			if err != nil {
				t.Fatalf("ListTasks: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d tasks, want %d", len(got), len(tt.want))
			}
			for i, name := range tt.want {
				if got[i].Name != name {
					t.Fatalf("task[%d] = %q, want %q", i, got[i].Name, name)
				}
			}
		})
	}

	countTests := []struct {
		name string
		opts task.CountOpts
		want int64
	}{
		{"all", task.CountOpts{}, 3},
		{"default queue", task.CountOpts{Queue: "default"}, 2},
		{"pending", task.CountOpts{State: task.StatePending}, 2},
		{"critical+pending", task.CountOpts{Queue: "critical", State: task.StatePending}, 0},
	}
	for _, tt := range countTests {
		t.Run("Count/"+tt.name, func(t *testing.T) {
			got, err := s.CountTasks(ctx, tt.opts)
			if err != nil {
				t.Fatalf("CountTasks: %v", err)
			}
			if got != tt.want {
				t.Fatalf("count = %d, want %d", got, tt.want)
			}
		})
	}
}

func testDelete(t *testing.T, s store.Store) {
	ctx := context.Background()
	tk := NewTask(t, "gone", "default", 0, 0)
	enqueue(t, s, tk)

	if err := s.DeleteTask(ctx, tk.ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if _, err := s.GetTask(ctx, tk.ID); !errors.Is(err, cadence.ErrTaskNotFound) {
		t.Fatalf("get after delete: got %v", err)
	}
	if err := s.DeleteTask(ctx, tk.ID); !errors.Is(err, cadence.ErrTaskNotFound) {
		t.Fatalf("delete twice: got %v", err)
	}
}

func testCodecRoundTrip(t *testing.T, s store.Store) {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatalf("LoadLocation: %v", err)
	}
	want := tick.Tick{
		Stream:    "berlin",
		Seq:       42,
		Timestamp: time.Date(2026, 3, 29, 3, 0, 0, 123456789, loc),
		Planned:   time.Date(2026, 3, 29, 3, 0, 0, 0, loc),
		Timezone:  loc.String(),
		Anomaly:   true,
	}

	for _, codec := range []task.Codec{task.JSONCodec{}, task.MsgpackCodec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			tk, err := task.FromTick(want, codec, task.WithQueue(codec.Name()))
			if err != nil {
				t.Fatalf("FromTick: %v", err)
			}
			enqueue(t, s, tk)

			got := fetchOne(t, s, codec.Name())
			decoded, err := got.Tick()
			if err != nil {
				t.Fatalf("Tick: %v", err)
			}
			if decoded.Stream != want.Stream || decoded.Seq != want.Seq ||
				decoded.Timezone != want.Timezone || decoded.Anomaly != want.Anomaly {
				t.Fatalf("decoded %+v, want %+v", decoded, want)
			}
			if !decoded.Timestamp.Equal(want.Timestamp) || !decoded.Planned.Equal(want.Planned) {
				t.Fatalf("instants changed: got %v/%v", decoded.Timestamp, decoded.Planned)
			}
			if decoded.In().Location().String() != "Europe/Berlin" {
				t.Fatalf("In() zone = %s", decoded.In().Location())
			}
		})
	}
}

func newRun(name string, state workflow.RunState, started time.Time) *workflow.Run {
	return &workflow.Run{
		Entity:    cadence.NewEntity(),
		ID:        id.NewRunID(),
		Workflow:  name,
		State:     state,
		TickAt:    started,
		StartedAt: started,
	}
}

func testRuns(t *testing.T, s store.Store) {
	ctx := context.Background()
	r := newRun("nightly", workflow.RunStateRunning, base)
	if err := s.CreateRun(ctx, r); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if err := s.CreateRun(ctx, r); !errors.Is(err, cadence.ErrRunAlreadyExists) {
		t.Fatalf("duplicate run: got %v", err)
	}

	resume := base.Add(time.Hour)
	r.State = workflow.RunStateWaiting
	r.Step = 1
	r.StepName = "delay 1h0m0s"
	r.ResumeAt = &resume
	if err := s.UpdateRun(ctx, r); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}

	got, err := s.GetRun(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.State != workflow.RunStateWaiting || got.Step != 1 || got.StepName != r.StepName {
		t.Fatalf("run = %+v", got)
	}
	if got.ResumeAt == nil || !got.ResumeAt.Equal(resume) {
		t.Fatalf("resume at = %v, want %v", got.ResumeAt, resume)
	}

	done := base.Add(2 * time.Hour)
	r.State = workflow.RunStateFailed
	r.Error = "step 2 (load) failed: boom"
	r.ResumeAt = nil
	r.CompletedAt = &done
	if err := s.UpdateRun(ctx, r); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}
	got, err = s.GetRun(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.State != workflow.RunStateFailed || got.Error != r.Error || got.ResumeAt != nil {
		t.Fatalf("run = %+v", got)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(done) {
		t.Fatalf("completed at = %v", got.CompletedAt)
	}

	if _, err := s.GetRun(ctx, id.NewRunID()); !errors.Is(err, cadence.ErrRunNotFound) {
		t.Fatalf("missing run: got %v", err)
	}
	missing := newRun("ghost", workflow.RunStateRunning, base)
	if err := s.UpdateRun(ctx, missing); !errors.Is(err, cadence.ErrRunNotFound) {
		t.Fatalf("update missing run: got %v", err)
	}
}

func testListRuns(t *testing.T, s store.Store) {
	ctx := context.Background()
	runs := []*workflow.Run{
		newRun("a", workflow.RunStateCompleted, base),
		newRun("b", workflow.RunStateFailed, base.Add(time.Minute)),
		newRun("a", workflow.RunStateRunning, base.Add(2*time.Minute)),
	}
	for _, r := range runs {
		if err := s.CreateRun(ctx, r); err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
	}

	tests := []struct {
		name string
		opts workflow.ListOpts
		want []*workflow.Run
	}{
		{"all", workflow.ListOpts{}, runs},
		{"by workflow", workflow.ListOpts{Workflow: "a"}, []*workflow.Run{runs[0], runs[2]}},
		{"by state", workflow.ListOpts{State: workflow.RunStateFailed}, []*workflow.Run{runs[1]}},
		{"paged", workflow.ListOpts{Offset: 1, Limit: 1}, []*workflow.Run{runs[1]}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListRuns(ctx, tt.opts)
			if err != nil {
				t.Fatalf("ListRuns: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d runs, want %d", len(got), len(tt.want))
			}
			for i := range tt.want {
				if got[i].ID.String() != tt.want[i].ID.String() {
					t.Fatalf("run[%d] = %s, want %s", i, got[i].ID, tt.want[i].ID)
				}
			}
		})
	}
}
