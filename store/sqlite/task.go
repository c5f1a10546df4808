package sqlite

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
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cadence_tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, 'pending', ?, ?, ?, NULL, ?, NULL, NULL, NULL, ?, ?, ?)`,
		t.ID, t.Name, t.Queue, t.Payload, t.Codec, t.Priority, t.Attempts, nullString(t.LastError),
		nanos(t.RunAt), int64(t.Timeout), nanos(created), nanos(now),
	)
	if err != nil {
		if isDuplicateKey(err) {
			return cadence.ErrTaskAlreadyExists
		}
		return fmt.Errorf("cadence/sqlite: enqueue task: %w", err)
	}
	return nil
}

// FetchTasks atomically claims up to limit pending tasks from the given
// queues. SQLite has no FOR UPDATE SKIP LOCKED; a single UPDATE over a
// subquery is atomic under SQLite's database-level write lock.
func (s *Store) FetchTasks(ctx context.Context, queues []string, limit int, workerID id.WorkerID) ([]*task.Task, error) {
	now := nanos(time.Now())
	if limit <= 0 {
		limit = -1
	}

	args := []any{workerID, now, now, now}
	queueFilter := ""
	if len(queues) > 0 {
		placeholders := make([]string, len(queues))
		for i, q := range queues {
			placeholders[i] = "?"
			args = append(args, q)
		}
		queueFilter = fmt.Sprintf("AND queue IN (%s)", strings.Join(placeholders, ","))
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		UPDATE cadence_tasks
		SET state = 'running', worker_id = ?, started_at = ?, heartbeat_at = ?, updated_at = ?
		WHERE id IN (
			SELECT id FROM cadence_tasks
			WHERE state = 'pending' %s
			ORDER BY priority DESC, run_at ASC, id ASC
			LIMIT ?
		)
		RETURNING %s`,
		queueFilter, taskColumns,
	)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("cadence/sqlite: fetch tasks: %w", err)
	}
	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, fmt.Errorf("cadence/sqlite: fetch tasks: %w", err)
	}
	// RETURNING does not preserve the subquery order.
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

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, taskID id.TaskID) (*task.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM cadence_tasks WHERE id = ?`, taskID)
	t, err := scanTask(row)
	if err != nil {
		if isNoRows(err) {
			return nil, cadence.ErrTaskNotFound
		}
		return nil, fmt.Errorf("cadence/sqlite: get task: %w", err)
	}
	return t, nil
}

// CompleteTask moves a running task to completed.
func (s *Store) CompleteTask(ctx context.Context, taskID id.TaskID, attempts int) error {
	now := nanos(time.Now())
	return s.transition(ctx, "complete task", taskID, `
		UPDATE cadence_tasks
		SET state = 'completed', attempts = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND state = 'running'`,
		attempts, now, now, taskID,
	)
}

// FailTask moves a running task to failed.
func (s *Store) FailTask(ctx context.Context, taskID id.TaskID, attempts int, errMsg string) error {
	now := nanos(time.Now())
	return s.transition(ctx, "fail task", taskID, `
		UPDATE cadence_tasks
		SET state = 'failed', attempts = ?, last_error = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND state = 'running'`,
		attempts, nullString(errMsg), now, now, taskID,
	)
}

// ReleaseTask returns a running task to pending.
func (s *Store) ReleaseTask(ctx context.Context, taskID id.TaskID) error {
	return s.transition(ctx, "release task", taskID, `
		UPDATE cadence_tasks
		SET state = 'pending', worker_id = NULL, started_at = NULL, heartbeat_at = NULL, updated_at = ?
		WHERE id = ? AND state = 'running'`,
		nanos(time.Now()), taskID,
	)
}

// HeartbeatTask updates the heartbeat timestamp of a running task.
func (s *Store) HeartbeatTask(ctx context.Context, taskID id.TaskID, _ id.WorkerID) error {
	return s.transition(ctx, "heartbeat task", taskID, `
		UPDATE cadence_tasks SET heartbeat_at = ?
		WHERE id = ? AND state = 'running'`,
		nanos(time.Now()), taskID,
	)
}

// transition runs an UPDATE guarded by state = 'running'. When nothing
// matched it tells a missing task from one in the wrong state.
func (s *Store) transition(ctx context.Context, op string, taskID id.TaskID, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("cadence/sqlite: %s: %w", op, err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows > 0 {
		return nil
	}

	var state string
	err = s.db.QueryRowContext(ctx, `SELECT state FROM cadence_tasks WHERE id = ?`, taskID).Scan(&state)
	if err != nil {
		if isNoRows(err) {
			return cadence.ErrTaskNotFound
		}
		return fmt.Errorf("cadence/sqlite: %s: %w", op, err)
	}
	return cadence.ErrInvalidState
}

// ReapStaleTasks returns running tasks whose last heartbeat is older than
// threshold to pending.
func (s *Store) ReapStaleTasks(ctx context.Context, threshold time.Duration) (int, error) {
	now := time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE cadence_tasks
		SET state = 'pending', worker_id = NULL, started_at = NULL, heartbeat_at = NULL, updated_at = ?
		WHERE state = 'running' AND heartbeat_at < ?`,
		nanos(now), nanos(now.Add(-threshold)),
	)
	if err != nil {
		return 0, fmt.Errorf("cadence/sqlite: reap stale tasks: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	return int(rows), nil
}

// ListTasks returns tasks matching opts in fetch order.
func (s *Store) ListTasks(ctx context.Context, opts task.ListOpts) ([]*task.Task, error) {
	where, args := taskFilter(opts.Queue, opts.State)
	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM cadence_tasks`+where+`
		ORDER BY priority DESC, run_at ASC, id ASC
		LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("cadence/sqlite: list tasks: %w", err)
	}
	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, fmt.Errorf("cadence/sqlite: list tasks: %w", err)
	}
	return tasks, nil
}

// CountTasks returns the number of tasks matching opts.
func (s *Store) CountTasks(ctx context.Context, opts task.CountOpts) (int64, error) {
	where, args := taskFilter(opts.Queue, opts.State)
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cadence_tasks`+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("cadence/sqlite: count tasks: %w", err)
	}
	return n, nil
}

func taskFilter(queue string, state task.State) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if queue != "" {
		conds = append(conds, "queue = ?")
		args = append(args, queue)
	}
	if state != "" {
		conds = append(conds, "state = ?")
		args = append(args, string(state))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// DeleteTask removes a task by ID.
func (s *Store) DeleteTask(ctx context.Context, taskID id.TaskID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cadence_tasks WHERE id = ?`, taskID)
	if err != nil {
		return fmt.Errorf("cadence/sqlite: delete task: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return cadence.ErrTaskNotFound
	}
	return nil
}
