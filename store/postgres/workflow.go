package postgres

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
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cadence_workflow_runs (`+runColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		r.ID.String(), r.Workflow, string(r.State), r.Step, nullString(r.StepName), r.TickAt.UTC(), nullString(r.Error),
		r.StartedAt.UTC(), r.ResumeAt, r.CompletedAt, created, now,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return cadence.ErrRunAlreadyExists
		}
		return fmt.Errorf("cadence/postgres: create run: %w", err)
	}
	return nil
}

// GetRun retrieves a workflow run by ID.
func (s *Store) GetRun(ctx context.Context, runID id.RunID) (*workflow.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM cadence_workflow_runs WHERE id = $1`, runID.String())
	r, err := scanRun(row)
	if err != nil {
		if isNoRows(err) {
			return nil, cadence.ErrRunNotFound
		}
		return nil, fmt.Errorf("cadence/postgres: get run: %w", err)
	}
	return r, nil
}

// UpdateRun persists changes to an existing workflow run.
func (s *Store) UpdateRun(ctx context.Context, r *workflow.Run) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE cadence_workflow_runs
		SET state = $2, step = $3, step_name = $4, error = $5, resume_at = $6, completed_at = $7, updated_at = $8
		WHERE id = $1`,
		r.ID.String(), string(r.State), r.Step, nullString(r.StepName), nullString(r.Error),
		r.ResumeAt, r.CompletedAt, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("cadence/postgres: update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
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
		args = append(args, opts.Workflow)
		conds = append(conds, fmt.Sprintf("workflow = $%d", len(args)))
	}
	if opts.State != "" {
		args = append(args, string(opts.State))
		conds = append(conds, fmt.Sprintf("state = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	var lim *int
	if opts.Limit > 0 {
		lim = &opts.Limit
	}
	n := len(args)
	args = append(args, lim, opts.Offset)

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM cadence_workflow_runs%s
		ORDER BY started_at ASC, id ASC
		LIMIT $%d OFFSET $%d`, runColumns, where, n+1, n+2), args...)
	if err != nil {
		return nil, fmt.Errorf("cadence/postgres: list runs: %w", err)
	}
	defer rows.Close()

	var runs []*workflow.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("cadence/postgres: list runs: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cadence/postgres: list runs: %w", err)
	}
	return runs, nil
}
