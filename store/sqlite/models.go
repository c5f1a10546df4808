package sqlite

import (
	"database/sql"
	"time"

	"github.com/xraph/cadence/task"
	"github.com/xraph/cadence/workflow"
)

const taskColumns = `id, name, queue, payload, codec, state, priority, attempts, last_error,
	worker_id, run_at, started_at, completed_at, heartbeat_at, timeout, created_at, updated_at`

const runColumns = `id, workflow, state, step, step_name, tick_at, error,
	started_at, resume_at, completed_at, created_at, updated_at`

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*task.Task, error) {
	var (
		t                                   task.Task
		state                               string
		lastError                           sql.NullString
		runAt, timeout, created, updated    int64
		startedAt, completedAt, heartbeatAt sql.NullInt64
	)
	err := row.Scan(
		&t.ID, &t.Name, &t.Queue, &t.Payload, &t.Codec, &state, &t.Priority, &t.Attempts, &lastError,
		&t.WorkerID, &runAt, &startedAt, &completedAt, &heartbeatAt, &timeout, &created, &updated,
	)
	if err != nil {
		return nil, err
	}
	t.State = task.State(state)
	t.LastError = lastError.String
	t.RunAt = fromNanos(runAt)
	t.StartedAt = ptrNanos(startedAt)
	t.CompletedAt = ptrNanos(completedAt)
	t.HeartbeatAt = ptrNanos(heartbeatAt)
	t.Timeout = time.Duration(timeout)
	t.CreatedAt = fromNanos(created)
	t.UpdatedAt = fromNanos(updated)
	return &t, nil
}

func scanTasks(rows *sql.Rows) ([]*task.Task, error) {
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

func scanRun(row scanner) (*workflow.Run, error) {
	var (
		r                             workflow.Run
		state                         string
		stepName, runErr              sql.NullString
		tickAt, started, created, upd int64
		resumeAt, completedAt         sql.NullInt64
	)
	err := row.Scan(
		&r.ID, &r.Workflow, &state, &r.Step, &stepName, &tickAt, &runErr,
		&started, &resumeAt, &completedAt, &created, &upd,
	)
	if err != nil {
		return nil, err
	}
	r.State = workflow.RunState(state)
	r.StepName = stepName.String
	r.Error = runErr.String
	r.TickAt = fromNanos(tickAt)
	r.StartedAt = fromNanos(started)
	r.ResumeAt = ptrNanos(resumeAt)
	r.CompletedAt = ptrNanos(completedAt)
	r.CreatedAt = fromNanos(created)
	r.UpdatedAt = fromNanos(upd)
	return &r, nil
}

// ── time and null helpers ───────────────────────────────────────

func nanos(t time.Time) int64 { return t.UTC().UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func nullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: nanos(*t), Valid: true}
}

func ptrNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
