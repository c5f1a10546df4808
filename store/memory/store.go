// Package memory provides a fully in-memory store. Safe for concurrent use.
// Intended for unit tests, development and direct-mode deployments that
// still want workflow run records.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/task"
	"github.com/xraph/cadence/workflow"
)

// Ensure Store implements the subsystem stores at compile time.
// We can't import store here (import cycle in tests), so we verify each.
var (
	_ task.Store     = (*Store)(nil)
	_ workflow.Store = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	tasks map[string]*task.Task
	runs  map[string]*workflow.Run

	closed bool
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		tasks: make(map[string]*task.Task),
		runs:  make(map[string]*workflow.Run),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping fails once the store is closed.
func (m *Store) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return cadence.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. Later calls return cadence.ErrStoreClosed.
func (m *Store) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// ──────────────────────────────────────────────────
// Task Store
// ──────────────────────────────────────────────────

// EnqueueTask persists a new task in pending state.
func (m *Store) EnqueueTask(_ context.Context, t *task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return cadence.ErrStoreClosed
	}

	key := t.ID.String()
	if _, exists := m.tasks[key]; exists {
		return cadence.ErrTaskAlreadyExists
	}
	cp := *t
	cp.State = task.StatePending
	m.tasks[key] = &cp
	return nil
}

// fetchLess orders tasks by priority desc, RunAt asc, ID asc.
func fetchLess(a, b *task.Task) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.RunAt.Equal(b.RunAt) {
		return a.RunAt.Before(b.RunAt)
	}
	return a.ID.String() < b.ID.String()
}

// FetchTasks atomically claims up to limit pending tasks from the given
// queues, sets them to running, and returns copies.
func (m *Store) FetchTasks(_ context.Context, queues []string, limit int, workerID id.WorkerID) ([]*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, cadence.ErrStoreClosed
	}

	queueSet := make(map[string]struct{}, len(queues))
	for _, q := range queues {
		queueSet[q] = struct{}{}
	}

	candidates := make([]*task.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		if t.State != task.StatePending {
			continue
		}
		if len(queueSet) > 0 {
			if _, ok := queueSet[t.Queue]; !ok {
				continue
			}
		}
		candidates = append(candidates, t)
	}
	sort.Slice(candidates, func(i, k int) bool { return fetchLess(candidates[i], candidates[k]) })

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	now := time.Now().UTC()
	result := make([]*task.Task, len(candidates))
	for i, t := range candidates {
		started := now
		heartbeat := now
		t.State = task.StateRunning
		t.WorkerID = workerID
		t.StartedAt = &started
		t.HeartbeatAt = &heartbeat
		t.UpdatedAt = now
		// Return a copy so callers can mutate without racing with the store.
		cp := *t
		result[i] = &cp
	}
	return result, nil
}

// GetTask retrieves a task by ID.
func (m *Store) GetTask(_ context.Context, taskID id.TaskID) (*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tasks[taskID.String()]
	if !ok {
		return nil, cadence.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

// running looks up a task that must be in running state. Caller holds mu.
func (m *Store) running(taskID id.TaskID) (*task.Task, error) {
	if m.closed {
		return nil, cadence.ErrStoreClosed
	}
	t, ok := m.tasks[taskID.String()]
	if !ok {
		return nil, cadence.ErrTaskNotFound
	}
	if t.State != task.StateRunning {
		return nil, cadence.ErrInvalidState
	}
	return t, nil
}

// CompleteTask moves a running task to completed.
func (m *Store) CompleteTask(_ context.Context, taskID id.TaskID, attempts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.running(taskID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	t.State = task.StateCompleted
	t.Attempts = attempts
	t.CompletedAt = &now
	t.UpdatedAt = now
	return nil
}

// FailTask moves a running task to failed.
func (m *Store) FailTask(_ context.Context, taskID id.TaskID, attempts int, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.running(taskID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	t.State = task.StateFailed
	t.Attempts = attempts
	t.LastError = errMsg
	t.CompletedAt = &now
	t.UpdatedAt = now
	return nil
}

// ReleaseTask returns a running task to pending.
func (m *Store) ReleaseTask(_ context.Context, taskID id.TaskID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.running(taskID)
	if err != nil {
		return err
	}
	reset(t)
	return nil
}

func reset(t *task.Task) {
	t.State = task.StatePending
	t.WorkerID = id.WorkerID{}
	t.StartedAt = nil
	t.HeartbeatAt = nil
	t.UpdatedAt = time.Now().UTC()
}

// HeartbeatTask updates the heartbeat timestamp of a running task.
func (m *Store) HeartbeatTask(_ context.Context, taskID id.TaskID, _ id.WorkerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, err := m.running(taskID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	t.HeartbeatAt = &now
	return nil
}

// ReapStaleTasks returns running tasks whose last heartbeat is older than
// threshold to pending.
func (m *Store) ReapStaleTasks(_ context.Context, threshold time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().UTC().Add(-threshold)
	n := 0
	for _, t := range m.tasks {
		if t.State != task.StateRunning {
			continue
		}
		if t.HeartbeatAt != nil && t.HeartbeatAt.Before(cutoff) {
			reset(t)
			n++
		}
	}
	return n, nil
}

// ListTasks returns tasks matching opts in fetch order.
func (m *Store) ListTasks(_ context.Context, opts task.ListOpts) ([]*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*task.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		if opts.State != "" && t.State != opts.State {
			continue
		}
		if opts.Queue != "" && t.Queue != opts.Queue {
			continue
		}
		cp := *t
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool { return fetchLess(result[i], result[k]) })

	return page(result, opts.Offset, opts.Limit), nil
}

// CountTasks returns the number of tasks matching opts.
func (m *Store) CountTasks(_ context.Context, opts task.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, t := range m.tasks {
		if opts.Queue != "" && t.Queue != opts.Queue {
			continue
		}
		if opts.State != "" && t.State != opts.State {
			continue
		}
		count++
	}
	return count, nil
}

// DeleteTask removes a task by ID.
func (m *Store) DeleteTask(_ context.Context, taskID id.TaskID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := taskID.String()
	if _, ok := m.tasks[key]; !ok {
		return cadence.ErrTaskNotFound
	}
	delete(m.tasks, key)
	return nil
}

// ──────────────────────────────────────────────────
// Workflow Store
// ──────────────────────────────────────────────────

// CreateRun persists a new workflow run.
func (m *Store) CreateRun(_ context.Context, run *workflow.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return cadence.ErrStoreClosed
	}

	key := run.ID.String()
	if _, exists := m.runs[key]; exists {
		return cadence.ErrRunAlreadyExists
	}
	cp := *run
	m.runs[key] = &cp
	return nil
}

// GetRun retrieves a workflow run by ID.
func (m *Store) GetRun(_ context.Context, runID id.RunID) (*workflow.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.runs[runID.String()]
	if !ok {
		return nil, cadence.ErrRunNotFound
	}
	cp := *r
	return &cp, nil
}

// UpdateRun persists changes to an existing workflow run.
func (m *Store) UpdateRun(_ context.Context, run *workflow.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return cadence.ErrStoreClosed
	}

	key := run.ID.String()
	if _, ok := m.runs[key]; !ok {
		return cadence.ErrRunNotFound
	}
	cp := *run
	m.runs[key] = &cp
	return nil
}

// ListRuns returns workflow runs matching opts, oldest first.
func (m *Store) ListRuns(_ context.Context, opts workflow.ListOpts) ([]*workflow.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*workflow.Run, 0, len(m.runs))
	for _, r := range m.runs {
		if opts.State != "" && r.State != opts.State {
			continue
		}
		if opts.Workflow != "" && r.Workflow != opts.Workflow {
			continue
		}
		cp := *r
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool {
		if !result[i].StartedAt.Equal(result[k].StartedAt) {
			return result[i].StartedAt.Before(result[k].StartedAt)
		}
		return result[i].ID.String() < result[k].ID.String()
	})

	return page(result, opts.Offset, opts.Limit), nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
