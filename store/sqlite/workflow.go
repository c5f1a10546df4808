package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/workflow"
)

// CreateRun persists a new workflow run.
func (s *Store) CreateRun(ctx context.Context, r *workflow.Run) error {
	now := time.Now().UTC()
	created := r.CreatedAt
	if created.IsZero() {
		created = now
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cadence_workflow_runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Workflow, string(r.State), r.Step, nullString(r.StepName), nanos(r.TickAt), nullString(r.Error),
		nanos(r.StartedAt), nullNanos(r.ResumeAt), nullNanos(r.CompletedAt), nanos(created), nanos(now),
	)
	if err != nil {
		if isDuplicateKey(err) {
			return cadence.ErrRunAlreadyExists
		}
		return fmt.Errorf("cadence/sqlite: create run: %w", err)
	}
	return nil
}

// GetRun retrieves a workflow run by ID.
func (s *Store) GetRun(ctx context.Context, runID id.RunID) (*workflow.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM cadence_workflow_runs WHERE id = ?`, runID)
	r, err := scanRun(row)
	if err != nil {
		if isNoRows(err) {
			return nil, cadence.ErrRunNotFound
		}
		return nil, fmt.Errorf("cadence/sqlite: get run: %w", err)
	}
	return r, nil
}

// UpdateRun persists changes to an existing workflow run.
func (s *Store) UpdateRun(ctx context.Context, r *workflow.Run) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE cadence_workflow_runs
		SET state = ?, step = ?, step_name = ?, error = ?, resume_at = ?, completed_at = ?, updated_at = ?
		WHERE id = ?`,
		string(r.State), r.Step, nullString(r.StepName), nullString(r.Error),
		nullNanos(r.ResumeAt), nullNanos(r.CompletedAt), nanos(time.Now()), r.ID,
	)
	if err != nil {
		return fmt.Errorf("cadence/sqlite: update run: %w", err)
	}
	rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
	if rows == 0 {
		return cadence.ErrRunNotFound
	}
	return nil
}

// ListRuns returns workflow runs matching opts, oldest first.
func (s *Store) ListRuns(ctx context.Context, opts workflow.ListOpts) ([]*workflow.Run, error) {
	var (
		conds []string
		args  []any
	)
	if opts.Workflow != "" {
		conds = append(conds, "workflow = ?")
		args = append(args, opts.Workflow)
	}
	if opts.State != "" {
		conds = append(conds, "state = ?")
		args = append(args, string(opts.State))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM cadence_workflow_runs`+where+`
		ORDER BY started_at ASC, id ASC
		LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("cadence/sqlite: list runs: %w", err)
	}
	defer rows.Close()

	var runs []*workflow.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("cadence/sqlite: list runs: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cadence/sqlite: list runs: %w", err)
	}
	return runs, nil
}
