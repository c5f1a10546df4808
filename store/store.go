package store

import (
	"context"

	"github.com/xraph/cadence/task"
	"github.com/xraph/cadence/workflow"
)

// Store is the aggregate persistence interface. Each subsystem store is a
// composable interface and a single backend implements all of them.
type Store interface {
	task.Store
	workflow.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
