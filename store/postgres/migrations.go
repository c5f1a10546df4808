package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/xraph/cadence"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate runs all embedded SQL migration files in filename order. Each
// file runs in its own transaction together with its tracking row, so a
// failed file leaves no partial schema behind.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS cadence_migrations (
			filename   TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("cadence/postgres: %w: create migrations table: %w", cadence.ErrMigrationFailed, err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("cadence/postgres: %w: read migrations: %w", cadence.ErrMigrationFailed, err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		if err := s.apply(ctx, entry.Name()); err != nil {
			return fmt.Errorf("cadence/postgres: %w: %s: %w", cadence.ErrMigrationFailed, entry.Name(), err)
		}
	}
	return nil
}

func (s *Store) apply(ctx context.Context, name string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var applied bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM cadence_migrations WHERE filename = $1)`,
		name,
	).Scan(&applied)
	if err != nil {
		return err
	}
	if applied {
		return nil
	}

	data, err := fs.ReadFile(migrationsFS, "migrations/"+name)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, string(data)); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO cadence_migrations (filename) VALUES ($1)`, name,
	); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	s.logger.Info("postgres migration applied", slog.String("file", name))
	return nil
}
