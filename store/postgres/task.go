package postgres

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/task"
)

// EnqueueTask persists a new task in pending state.
func (s *Store) EnqueueTask(ctx context.Context, t *task.Task) error {
	now := time.Now().UTC()
	created := t.CreatedAt
	if created.IsZero() {
		created = now
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cadence_tasks (`+taskColumns+`)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6, $7, $8, NULL, $9, NULL, NULL, NULL, $10, $11, $12)`,
		t.ID.String(), t.Name, t.Queue, t.Payload, t.Codec, t.Priority, t.Attempts, nullString(t.LastError),
		t.RunAt.UTC(), int64(t.Timeout), created, now,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return cadence.ErrTaskAlreadyExists
		}
		return fmt.Errorf("cadence/postgres: enqueue task: %w", err)
	}
	return nil
}

// FetchTasks atomically claims up to limit pending tasks using
// FOR UPDATE SKIP LOCKED, so concurrent workers never claim the same row.
// An empty queues slice matches every queue.
func (s *Store) FetchTasks(ctx context.Context, queues []string, limit int, workerID id.WorkerID) ([]*task.Task, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	if len(queues) == 0 {
		queues = nil
	}
	now := time.Now().UTC()

	rows, err := s.pool.Query(ctx, `
		WITH claimable AS (
			SELECT id FROM cadence_tasks
			WHERE state = 'pending'
			  AND ($1::text[] IS NULL OR queue = ANY($1))
			ORDER BY priority DESC, run_at ASC, id ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE cadence_tasks t
		SET state = 'running', worker_id = $3, started_at = $4, heartbeat_at = $4, updated_at = $4
		FROM claimable c
		WHERE t.id = c.id
		RETURNING `+prefixed("t.", taskColumns),
		queues, lim, nullID(workerID), now,
	)
	if err != nil {
		return nil, fmt.Errorf("cadence/postgres: fetch tasks: %w", err)
	}
	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, fmt.Errorf("cadence/postgres: fetch tasks: %w", err)
	}
	// RETURNING does not preserve the CTE order.
	sort.Slice(tasks, func(i, k int) bool { return fetchLess(tasks[i], tasks[k]) })
	return tasks, nil
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

// prefixed qualifies each column in a comma-separated list.
func prefixed(prefix, columns string) string {
	cols := strings.Split(columns, ",")
	for i, c := range cols {
		cols[i] = prefix + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, taskID id.TaskID) (*task.Task, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM cadence_tasks WHERE id = $1`, taskID.String())
	t, err := scanTask(row)
	if err != nil {
		if isNoRows(err) {
			return nil, cadence.ErrTaskNotFound
		}
		return nil, fmt.Errorf("cadence/postgres: get task: %w", err)
	}
	return t, nil
}

// CompleteTask moves a running task to completed.
func (s *Store) CompleteTask(ctx context.Context, taskID id.TaskID, attempts int) error {
	return s.transition(ctx, "complete task", taskID, `
		UPDATE cadence_tasks
		SET state = 'completed', attempts = $2, completed_at = $3, updated_at = $3
		WHERE id = $1 AND state = 'running'`,
		attempts, time.Now().UTC(),
	)
}

// FailTask moves a running task to failed.
func (s *Store) FailTask(ctx context.Context, taskID id.TaskID, attempts int, errMsg string) error {
	return s.transition(ctx, "fail task", taskID, `
		UPDATE cadence_tasks
		SET state = 'failed', attempts = $2, last_error = $3, completed_at = $4, updated_at = $4
		WHERE id = $1 AND state = 'running'`,
		attempts, nullString(errMsg), time.Now().UTC(),
	)
}

// ReleaseTask returns a running task to pending.
func (s *Store) ReleaseTask(ctx context.Context, taskID id.TaskID) error {
	return s.transition(ctx, "release task", taskID, `
		UPDATE cadence_tasks
		SET state = 'pending', worker_id = NULL, started_at = NULL, heartbeat_at = NULL, updated_at = $2
		WHERE id = $1 AND state = 'running'`,
		time.Now().UTC(),
	)
}

// HeartbeatTask updates the heartbeat timestamp of a running task.
func (s *Store) HeartbeatTask(ctx context.Context, taskID id.TaskID, _ id.WorkerID) error {
	return s.transition(ctx, "heartbeat task", taskID, `
		UPDATE cadence_tasks SET heartbeat_at = $2
		WHERE id = $1 AND state = 'running'`,
		time.Now().UTC(),
	)
}

// transition runs an UPDATE guarded by state = 'running' with the task ID
// bound to $1. When nothing matched it tells a missing task from one in the
// wrong state.
func (s *Store) transition(ctx context.Context, op string, taskID id.TaskID, query string, args ...any) error {
	args = append([]any{taskID.String()}, args...)
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("cadence/postgres: %s: %w", op, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var state string
	err = s.pool.QueryRow(ctx, `SELECT state FROM cadence_tasks WHERE id = $1`, taskID.String()).Scan(&state)
	if err != nil {
		if isNoRows(err) {
			return cadence.ErrTaskNotFound
		}
		return fmt.Errorf("cadence/postgres: %s: %w", op, err)
	}
	return cadence.ErrInvalidState
}

// ReapStaleTasks returns running tasks whose last heartbeat is older than
// threshold to pending.
func (s *Store) ReapStaleTasks(ctx context.Context, threshold time.Duration) (int, error) {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE cadence_tasks
		SET state = 'pending', worker_id = NULL, started_at = NULL, heartbeat_at = NULL, updated_at = $1
		WHERE state = 'running' AND heartbeat_at < $2`,
		now, now.Add(-threshold),
	)
	if err != nil {
		return 0, fmt.Errorf("cadence/postgres: reap stale tasks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ListTasks returns tasks matching opts in fetch order.
func (s *Store) ListTasks(ctx context.Context, opts task.ListOpts) ([]*task.Task, error) {
	where, args := taskFilter(opts.Queue, opts.State)
	var lim *int
	if opts.Limit > 0 {
		lim = &opts.Limit
	}
	n := len(args)
	args = append(args, lim, opts.Offset)

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM cadence_tasks%s
		ORDER BY priority DESC, run_at ASC, id ASC
		LIMIT $%d OFFSET $%d`, taskColumns, where, n+1, n+2), args...)
	if err != nil {
		return nil, fmt.Errorf("cadence/postgres: list tasks: %w", err)
	}
	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, fmt.Errorf("cadence/postgres: list tasks: %w", err)
	}
	return tasks, nil
}

// CountTasks returns the number of tasks matching opts.
func (s *Store) CountTasks(ctx context.Context, opts task.CountOpts) (int64, error) {
	where, args := taskFilter(opts.Queue, opts.State)
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM cadence_tasks`+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("cadence/postgres: count tasks: %w", err)
	}
	return n, nil
}

func taskFilter(queue string, state task.State) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if queue != "" {
		args = append(args, queue)
		conds = append(conds, fmt.Sprintf("queue = $%d", len(args)))
	}
	if state != "" {
		args = append(args, string(state))
		conds = append(conds, fmt.Sprintf("state = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// DeleteTask removes a task by ID.
func (s *Store) DeleteTask(ctx context.Context, taskID id.TaskID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM cadence_tasks WHERE id = $1`, taskID.String())
	if err != nil {
		return fmt.Errorf("cadence/postgres: delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return cadence.ErrTaskNotFound
	}
	return nil
}
