package ext_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/cadence/ext"
	"github.com/xraph/cadence/task"
	"github.com/xraph/cadence/tick"
	"github.com/xraph/cadence/workflow"
)

// ──────────────────────────────────────────────────
// Test extensions
// ──────────────────────────────────────────────────

// allHooksExt implements every lifecycle hook.
type allHooksExt struct {
	calls []string
}

func (e *allHooksExt) Name() string { return "all-hooks" }

func (e *allHooksExt) record(s string) error {
	e.calls = append(e.calls, s)
	return nil
}

func (e *allHooksExt) OnTickFired(context.Context, tick.Tick) error {
	return e.record("OnTickFired")
}

func (e *allHooksExt) OnTaskEnqueued(context.Context, *task.Task) error {
	return e.record("OnTaskEnqueued")
}

func (e *allHooksExt) OnPipeFailed(context.Context, string, error) error {
	return e.record("OnPipeFailed")
}

func (e *allHooksExt) OnTaskStarted(context.Context, *task.Task) error {
	return e.record("OnTaskStarted")
}

func (e *allHooksExt) OnTaskCompleted(context.Context, *task.Task, time.Duration) error {
	return e.record("OnTaskCompleted")
}

func (e *allHooksExt) OnTaskRetrying(context.Context, *task.Task, int, error) error {
	return e.record("OnTaskRetrying")
}

func (e *allHooksExt) OnTaskFailed(context.Context, *task.Task, error) error {
	return e.record("OnTaskFailed")
}

func (e *allHooksExt) OnWorkflowStarted(context.Context, *workflow.Run) error {
	return e.record("OnWorkflowStarted")
}

func (e *allHooksExt) OnWorkflowStepCompleted(context.Context, *workflow.Run, string, time.Duration) error {
	return e.record("OnWorkflowStepCompleted")
}

func (e *allHooksExt) OnWorkflowStepFailed(context.Context, *workflow.Run, string, error) error {
	return e.record("OnWorkflowStepFailed")
}

func (e *allHooksExt) OnWorkflowCompleted(context.Context, *workflow.Run, time.Duration) error {
	return e.record("OnWorkflowCompleted")
}

func (e *allHooksExt) OnWorkflowFailed(context.Context, *workflow.Run, error) error {
	return e.record("OnWorkflowFailed")
}

func (e *allHooksExt) OnShutdown(context.Context) error {
	return e.record("OnShutdown")
}

// taskOnlyExt only implements task hooks.
type taskOnlyExt struct {
	calls []string
}

func (e *taskOnlyExt) Name() string { return "task-only" }

func (e *taskOnlyExt) OnTaskEnqueued(context.Context, *task.Task) error {
	e.calls = append(e.calls, "OnTaskEnqueued")
	return nil
}

func (e *taskOnlyExt) OnTaskCompleted(context.Context, *task.Task, time.Duration) error {
	e.calls = append(e.calls, "OnTaskCompleted")
	return nil
}

// failingExt returns errors from hooks.
type failingExt struct{}

func (e *failingExt) Name() string { return "failing" }

func (e *failingExt) OnTaskEnqueued(context.Context, *task.Task) error {
	return errors.New("boom")
}

func (e *failingExt) OnShutdown(context.Context) error {
	return errors.New("shutdown boom")
}

func newRegistry() *ext.Registry {
	return ext.NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func assertCalls(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d calls, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

// ──────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────

func TestRegistry_RegisterDiscoversInterfaces(t *testing.T) {
	r := newRegistry()
	r.Register(&allHooksExt{})

	if got := len(r.Extensions()); got != 1 {
		t.Fatalf("expected 1 extension, got %d", got)
	}
	if got := r.Extensions()[0].Name(); got != "all-hooks" {
		t.Fatalf("expected name 'all-hooks', got %q", got)
	}
}

func TestRegistry_EmitFiresOnlyImplementors(t *testing.T) {
	r := newRegistry()
	all := &allHooksExt{}
	to := &taskOnlyExt{}
	r.Register(all)
	r.Register(to)

	ctx := context.Background()
	tk := &task.Task{Name: "report"}

	r.EmitTaskEnqueued(ctx, tk)
	assertCalls(t, all.calls, []string{"OnTaskEnqueued"})
	assertCalls(t, to.calls, []string{"OnTaskEnqueued"})

	r.EmitTaskStarted(ctx, tk)
	assertCalls(t, all.calls, []string{"OnTaskEnqueued", "OnTaskStarted"})
	assertCalls(t, to.calls, []string{"OnTaskEnqueued"})
}

func TestRegistry_StreamAndTaskHooksFire(t *testing.T) {
	r := newRegistry()
	all := &allHooksExt{}
	r.Register(all)

	ctx := context.Background()
	tk := &task.Task{Name: "report"}

	r.EmitTickFired(ctx, tick.Tick{Seq: 1})
	r.EmitTaskEnqueued(ctx, tk)
	r.EmitPipeFailed(ctx, "report", errors.New("disk full"))
	r.EmitTaskStarted(ctx, tk)
	r.EmitTaskRetrying(ctx, tk, 1, errors.New("flaky"))
	r.EmitTaskCompleted(ctx, tk, time.Second)
	r.EmitTaskFailed(ctx, tk, errors.New("fail"))

	assertCalls(t, all.calls, []string{
		"OnTickFired", "OnTaskEnqueued", "OnPipeFailed",
		"OnTaskStarted", "OnTaskRetrying", "OnTaskCompleted", "OnTaskFailed",
	})
}

func TestRegistry_AllWorkflowHooksFire(t *testing.T) {
	r := newRegistry()
	all := &allHooksExt{}
	r.Register(all)

	ctx := context.Background()
	run := &workflow.Run{Workflow: "nightly"}

	r.EmitWorkflowStarted(ctx, run)
	r.EmitWorkflowStepCompleted(ctx, run, "extract", time.Second)
	r.EmitWorkflowStepFailed(ctx, run, "load", errors.New("step fail"))
	r.EmitWorkflowCompleted(ctx, run, 2*time.Second)
	r.EmitWorkflowFailed(ctx, run, errors.New("wf fail"))

	assertCalls(t, all.calls, []string{
		"OnWorkflowStarted", "OnWorkflowStepCompleted",
		"OnWorkflowStepFailed", "OnWorkflowCompleted", "OnWorkflowFailed",
	})
}

func TestRegistry_HookErrorsLoggedNotPropagated(t *testing.T) {
	r := newRegistry()
	all := &allHooksExt{}
	r.Register(&failingExt{})
	r.Register(all)

	ctx := context.Background()
	r.EmitTaskEnqueued(ctx, &task.Task{})
	r.EmitShutdown(ctx)

	assertCalls(t, all.calls, []string{"OnTaskEnqueued", "OnShutdown"})
}

func TestRegistry_EmptyRegistryNoOp(_ *testing.T) {
	r := ext.NewRegistry(nil)
	ctx := context.Background()

	r.EmitTickFired(ctx, tick.Tick{})
	r.EmitTaskEnqueued(ctx, &task.Task{})
	r.EmitPipeFailed(ctx, "s", errors.New("x"))
	r.EmitTaskStarted(ctx, &task.Task{})
	r.EmitTaskCompleted(ctx, &task.Task{}, time.Second)
	r.EmitTaskRetrying(ctx, &task.Task{}, 1, errors.New("x"))
	r.EmitTaskFailed(ctx, &task.Task{}, errors.New("x"))
	r.EmitWorkflowStarted(ctx, &workflow.Run{})
	r.EmitWorkflowStepCompleted(ctx, &workflow.Run{}, "s", time.Second)
	r.EmitWorkflowStepFailed(ctx, &workflow.Run{}, "s", errors.New("x"))
	r.EmitWorkflowCompleted(ctx, &workflow.Run{}, time.Second)
	r.EmitWorkflowFailed(ctx, &workflow.Run{}, errors.New("x"))
	r.EmitShutdown(ctx)
}

func TestRegistry_SatisfiesEmitters(_ *testing.T) {
	var (
		_ tick.Emitter     = newRegistry()
		_ workflow.Emitter = newRegistry()
	)
}
