package postgres

import (
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/task"
	"github.com/xraph/cadence/workflow"
)

const taskColumns = `id, name, queue, payload, codec, state, priority, attempts, last_error,
	worker_id, run_at, started_at, completed_at, heartbeat_at, timeout, created_at, updated_at`

const runColumns = `id, workflow, state, step, step_name, tick_at, error,
	started_at, resume_at, completed_at, created_at, updated_at`

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// isDuplicateKey checks if a PostgreSQL error is a unique_violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func scanTask(row pgx.Row) (*task.Task, error) {
	var (
		t                task.Task
		taskID           string
		workerID         *string
		state            string
		lastError        *string
		timeout          int64
		created, updated time.Time
	)
	err := row.Scan(
		&taskID, &t.Name, &t.Queue, &t.Payload, &t.Codec, &state, &t.Priority, &t.Attempts, &lastError,
		&workerID, &t.RunAt, &t.StartedAt, &t.CompletedAt, &t.HeartbeatAt, &timeout, &created, &updated,
	)
	if err != nil {
		return nil, err
	}
	if t.ID, err = id.ParseTaskID(taskID); err != nil {
		return nil, err
	}
	if workerID != nil {
		if t.WorkerID, err = id.ParseWorkerID(*workerID); err != nil {
			return nil, err
		}
	}
	t.State = task.State(state)
	t.LastError = deref(lastError)
	t.Timeout = time.Duration(timeout)
	t.RunAt = t.RunAt.UTC()
	t.StartedAt = utcPtr(t.StartedAt)
	t.CompletedAt = utcPtr(t.CompletedAt)
	t.HeartbeatAt = utcPtr(t.HeartbeatAt)
	t.CreatedAt = created.UTC()
	t.UpdatedAt = updated.UTC()
	return &t, nil
}

func scanTasks(rows pgx.Rows) ([]*task.Task, error) {
	defer rows.Close()
	var out []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanRun(row pgx.Row) (*workflow.Run, error) {
	var (
		r                workflow.Run
		runID            string
		state            string
		stepName, runErr *string
		created, updated time.Time
	)
	err := row.Scan(
		&runID, &r.Workflow, &state, &r.Step, &stepName, &r.TickAt, &runErr,
		&r.StartedAt, &r.ResumeAt, &r.CompletedAt, &created, &updated,
	)
	if err != nil {
		return nil, err
	}
	if r.ID, err = id.ParseRunID(runID); err != nil {
		return nil, err
	}
	r.State = workflow.RunState(state)
	r.StepName = deref(stepName)
	r.Error = deref(runErr)
	r.TickAt = r.TickAt.UTC()
	r.StartedAt = r.StartedAt.UTC()
	r.ResumeAt = utcPtr(r.ResumeAt)
	r.CompletedAt = utcPtr(r.CompletedAt)
	r.CreatedAt = created.UTC()
	r.UpdatedAt = updated.UTC()
	return &r, nil
}

// ── null helpers ─────────────────────────────────────────────────

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullID(i id.ID) *string {
	if i.IsNil() {
		return nil
	}
	s := i.String()
	return &s
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
