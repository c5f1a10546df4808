package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/cadence"
)

// migration is one forward-only schema change.
type migration struct {
	Version string
	Name    string
	Up      []string
}

// migrations is applied in order; versions are never reused.
var migrations = []migration{
	{
		Version: "20260301080000",
		Name:    "create_tasks_table",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS cadence_tasks (
				id              TEXT PRIMARY KEY,
				name            TEXT NOT NULL,
				queue           TEXT NOT NULL DEFAULT 'default',
				payload         BLOB NOT NULL,
				codec           TEXT NOT NULL DEFAULT 'json',
				state           TEXT NOT NULL DEFAULT 'pending',
				priority        INTEGER NOT NULL DEFAULT 0,
				attempts        INTEGER NOT NULL DEFAULT 0,
				last_error      TEXT,
				worker_id       TEXT,
				run_at          INTEGER NOT NULL,
				started_at      INTEGER,
				completed_at    INTEGER,
				heartbeat_at    INTEGER,
				timeout         INTEGER NOT NULL DEFAULT 0,
				created_at      INTEGER NOT NULL,
				updated_at      INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_cadence_tasks_fetch
				ON cadence_tasks (queue, priority DESC, run_at ASC, id ASC)
				WHERE state = 'pending'`,
			`CREATE INDEX IF NOT EXISTS idx_cadence_tasks_state
				ON cadence_tasks (state)`,
			`CREATE INDEX IF NOT EXISTS idx_cadence_tasks_heartbeat
				ON cadence_tasks (heartbeat_at)
				WHERE state = 'running'`,
		},
	},
	{
		Version: "20260301080001",
		Name:    "create_workflow_runs_table",
		Up: []string{
			`CREATE TABLE IF NOT EXISTS cadence_workflow_runs (
				id              TEXT PRIMARY KEY,
				workflow        TEXT NOT NULL,
				state           TEXT NOT NULL DEFAULT 'running',
				step            INTEGER NOT NULL DEFAULT 0,
				step_name       TEXT,
				tick_at         INTEGER NOT NULL,
				error           TEXT,
				started_at      INTEGER NOT NULL,
				resume_at       INTEGER,
				completed_at    INTEGER,
				created_at      INTEGER NOT NULL,
				updated_at      INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_cadence_workflow_runs_list
				ON cadence_workflow_runs (workflow, state, started_at)`,
		},
	},
}

// Migrate applies pending migrations. Each migration runs in its own
// transaction and is recorded in cadence_migrations.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS cadence_migrations (
			version     TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			applied_at  INTEGER NOT NULL
		)`); err != nil {
		return fmt.Errorf("cadence/sqlite: %w: %w", cadence.ErrMigrationFailed, err)
	}

	for _, m := range migrations {
		if err := s.apply(ctx, m); err != nil {
			return fmt.Errorf("cadence/sqlite: %w: %s: %w", cadence.ErrMigrationFailed, m.Name, err)
		}
	}
	return nil
}

func (s *Store) apply(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var n int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cadence_migrations WHERE version = ?`, m.Version,
	).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	for _, stmt := range m.Up {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO cadence_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
		m.Version, m.Name, time.Now().UTC().UnixNano(),
	); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.logger.Info("sqlite migration applied",
		slog.String("version", m.Version),
		slog.String("name", m.Name),
	)
	return nil
}
