package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/task"
)

// EnqueueTask stores the task as a Hash and adds it to its queue.
func (s *Store) EnqueueTask(ctx context.Context, t *task.Task) error {
	tID := t.ID.String()
	now := time.Now().UTC()
	created := t.CreatedAt
	if created.IsZero() {
		created = now
	}
	member := taskMember(t.RunAt, tID)

	args := []any{tID, t.Queue, float64(-t.Priority), member}
	args = append(args,
		"id", tID,
		"name", t.Name,
		"queue", t.Queue,
		"payload", t.Payload,
		"codec", t.Codec,
		"state", string(task.StatePending),
		"priority", strconv.Itoa(t.Priority),
		"attempts", strconv.Itoa(t.Attempts),
		"last_error", t.LastError,
		"run_at", nanos(t.RunAt),
		"timeout", strconv.FormatInt(int64(t.Timeout), 10),
		"member", member,
		"created_at", nanos(created),
		"updated_at", nanos(now),
	)

	keys := []string{s.taskKey(tID), s.taskIDsKey(), s.queuesKey(), s.queueKey(t.Queue)}
	added, err := enqueueScript.Run(ctx, s.client, keys, args...).Int()
	if err != nil {
		return fmt.Errorf("cadence/redis: enqueue task: %w", err)
	}
	if added == 0 {
		return cadence.ErrTaskAlreadyExists
	}
	return nil
}

// FetchTasks atomically claims up to limit pending tasks from the given
// queues. An empty queues slice matches every queue seen so far.
func (s *Store) FetchTasks(ctx context.Context, queues []string, limit int, workerID id.WorkerID) ([]*task.Task, error) {
	if len(queues) == 0 {
		all, err := s.client.SMembers(ctx, s.queuesKey()).Result()
		if err != nil {
			return nil, fmt.Errorf("cadence/redis: fetch tasks: %w", err)
		}
		queues = all
	}
	if len(queues) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(queues)+1)
	keys = append(keys, s.runningKey())
	for _, q := range queues {
		keys = append(keys, s.queueKey(q))
	}
	now := time.Now().UTC()
	ids, err := fetchScript.Run(ctx, s.client, keys,
		limit, workerID.String(), nanos(now), now.UnixMilli(), s.taskKey(""),
	).StringSlice()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("cadence/redis: fetch tasks: %w", err)
	}

	tasks := make([]*task.Task, 0, len(ids))
	for _, tID := range ids {
		t, err := s.getTask(ctx, tID)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, taskID id.TaskID) (*task.Task, error) {
	return s.getTask(ctx, taskID.String())
}

// CompleteTask moves a running task to completed.
func (s *Store) CompleteTask(ctx context.Context, taskID id.TaskID, attempts int) error {
	now := nanos(time.Now())
	return s.transition(ctx, "complete task", taskID, "finish",
		"state", string(task.StateCompleted),
		"attempts", strconv.Itoa(attempts),
		"completed_at", now,
		"updated_at", now,
	)
}

// FailTask moves a running task to failed.
func (s *Store) FailTask(ctx context.Context, taskID id.TaskID, attempts int, errMsg string) error {
	now := nanos(time.Now())
	return s.transition(ctx, "fail task", taskID, "finish",
		"state", string(task.StateFailed),
		"attempts", strconv.Itoa(attempts),
		"last_error", errMsg,
		"completed_at", now,
		"updated_at", now,
	)
}

// HeartbeatTask updates the heartbeat timestamp of a running task.
func (s *Store) HeartbeatTask(ctx context.Context, taskID id.TaskID, _ id.WorkerID) error {
	return s.transition(ctx, "heartbeat task", taskID, "heartbeat",
		"heartbeat_at", nanos(time.Now()),
	)
}

func (s *Store) transition(ctx context.Context, op string, taskID id.TaskID, mode string, fields ...any) error {
	tID := taskID.String()
	args := append([]any{mode, tID, time.Now().UnixMilli()}, fields...)
	res, err := transitionScript.Run(ctx, s.client, []string{s.taskKey(tID), s.runningKey()}, args...).Int()
	if err != nil {
		return fmt.Errorf("cadence/redis: %s: %w", op, err)
	}
	return transitionResult(res)
}

// ReleaseTask returns a running task to pending.
func (s *Store) ReleaseTask(ctx context.Context, taskID id.TaskID) error {
	tID := taskID.String()
	res, err := releaseScript.Run(ctx, s.client, []string{s.taskKey(tID), s.runningKey()},
		tID, nanos(time.Now()), s.queueKey(""),
	).Int()
	if err != nil {
		return fmt.Errorf("cadence/redis: release task: %w", err)
	}
	return transitionResult(res)
}

func transitionResult(res int) error {
	switch res {
	case 0:
		return cadence.ErrTaskNotFound
	case -1:
		return cadence.ErrInvalidState
	default:
		return nil
	}
}

// ReapStaleTasks returns running tasks whose last heartbeat is older than
// threshold to pending.
func (s *Store) ReapStaleTasks(ctx context.Context, threshold time.Duration) (int, error) {
	now := time.Now()
	n, err := reapScript.Run(ctx, s.client, []string{s.runningKey()},
		now.Add(-threshold).UnixMilli(), nanos(now), s.taskKey(""), s.queueKey(""),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("cadence/redis: reap stale tasks: %w", err)
	}
	return n, nil
}

// ListTasks returns tasks matching opts in fetch order.
func (s *Store) ListTasks(ctx context.Context, opts task.ListOpts) ([]*task.Task, error) {
	tasks, err := s.scanTasks(ctx, opts.Queue, opts.State)
	if err != nil {
		return nil, fmt.Errorf("cadence/redis: list tasks: %w", err)
	}
	sort.Slice(tasks, func(i, k int) bool { return fetchLess(tasks[i], tasks[k]) })
	return page(tasks, opts.Offset, opts.Limit), nil
}

// CountTasks returns the number of tasks matching opts.
func (s *Store) CountTasks(ctx context.Context, opts task.CountOpts) (int64, error) {
	tasks, err := s.scanTasks(ctx, opts.Queue, opts.State)
	if err != nil {
		return 0, fmt.Errorf("cadence/redis: count tasks: %w", err)
	}
	return int64(len(tasks)), nil
}

// DeleteTask removes a task by ID.
func (s *Store) DeleteTask(ctx context.Context, taskID id.TaskID) error {
	tID := taskID.String()
	key := s.taskKey(tID)

	vals, err := s.client.HMGet(ctx, key, "queue", "member").Result()
	if err != nil {
		return fmt.Errorf("cadence/redis: delete task: %w", err)
	}
	q, ok := vals[0].(string)
	if !ok {
		return cadence.ErrTaskNotFound
	}
	member, _ := vals[1].(string) //nolint:errcheck // type assertion, not an error

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, s.taskIDsKey(), tID)
	pipe.ZRem(ctx, s.queueKey(q), member)
	pipe.ZRem(ctx, s.runningKey(), tID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cadence/redis: delete task: %w", err)
	}
	return nil
}

// ── helpers ──

// scanTasks loads every task and keeps the ones matching queue and state.
func (s *Store) scanTasks(ctx context.Context, queue string, state task.State) ([]*task.Task, error) {
	ids, err := s.client.SMembers(ctx, s.taskIDsKey()).Result()
	if err != nil {
		return nil, err
	}

	pipe := s.client.Pipeline()
	cmds := make([]*goredis.MapStringStringCmd, len(ids))
	for i, tID := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.taskKey(tID))
	}
	if len(ids) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, err
		}
	}

	var out []*task.Task
	for _, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) == 0 {
			continue
		}
		t, err := mapToTask(vals)
		if err != nil {
			return nil, err
		}
		if queue != "" && t.Queue != queue {
			continue
		}
		if state != "" && t.State != state {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) getTask(ctx context.Context, tID string) (*task.Task, error) {
	vals, err := s.client.HGetAll(ctx, s.taskKey(tID)).Result()
	if err != nil {
		return nil, fmt.Errorf("cadence/redis: get task: %w", err)
	}
	if len(vals) == 0 {
		return nil, cadence.ErrTaskNotFound
	}
	return mapToTask(vals)
}

// taskMember is the Sorted Set member for a pending task. Equal scores
// sort by member text, which gives run time order and then ID order.
func taskMember(runAt time.Time, tID string) string {
	return fmt.Sprintf("%020d|%s", runAt.UnixNano(), tID)
}

func fetchLess(a, b *task.Task) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.RunAt.Equal(b.RunAt) {
		return a.RunAt.Before(b.RunAt)
	}
	return a.ID.String() < b.ID.String()
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func mapToTask(m map[string]string) (*task.Task, error) {
	tID, err := id.ParseTaskID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("cadence/redis: parse task id: %w", err)
	}

	priority, _ := strconv.Atoi(m["priority"])           //nolint:errcheck // best-effort parse from trusted Redis data
	attempts, _ := strconv.Atoi(m["attempts"])           //nolint:errcheck // best-effort parse from trusted Redis data
	timeout, _ := strconv.ParseInt(m["timeout"], 10, 64) //nolint:errcheck // best-effort parse from trusted Redis data

	t := &task.Task{
		Entity: cadence.Entity{
			CreatedAt: parseNanos(m["created_at"]),
			UpdatedAt: parseNanos(m["updated_at"]),
		},
		ID:          tID,
		Name:        m["name"],
		Queue:       m["queue"],
		Payload:     []byte(m["payload"]),
		Codec:       m["codec"],
		State:       task.State(m["state"]),
		Priority:    priority,
		Attempts:    attempts,
		LastError:   m["last_error"],
		RunAt:       parseNanos(m["run_at"]),
		StartedAt:   parseNanosPtr(m["started_at"]),
		CompletedAt: parseNanosPtr(m["completed_at"]),
		HeartbeatAt: parseNanosPtr(m["heartbeat_at"]),
		Timeout:     time.Duration(timeout),
	}
	if wid := m["worker_id"]; wid != "" {
		t.WorkerID, _ = id.ParseWorkerID(wid) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	return t, nil
}

func nanos(t time.Time) string {
	return strconv.FormatInt(t.UTC().UnixNano(), 10)
}

func parseNanos(v string) time.Time {
	n, _ := strconv.ParseInt(v, 10, 64) //nolint:errcheck // best-effort parse from trusted Redis data
	return time.Unix(0, n).UTC()
}

func parseNanosPtr(v string) *time.Time {
	if v == "" {
		return nil
	}
	t := parseNanos(v)
	return &t
}
