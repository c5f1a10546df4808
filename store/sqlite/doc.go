// Package sqlite implements store.Store on SQLite through database/sql and
// the pure-Go modernc.org/sqlite driver. Suitable for single-node
// deployments, CLI tools and edge devices that need piped ticks to survive
// a restart.
//
// Open creates or opens a database file, applies pragmas and runs the
// migrations:
//
//	import "github.com/xraph/cadence/store/sqlite"
//
//	s, err := sqlite.Open(ctx, "/var/lib/app/cadence.db")
//	if err != nil { ... }
//	defer s.Close()
//
// New wraps a *sql.DB the caller already owns; Close then leaves it open.
//
// Timestamps are stored as UTC Unix nanoseconds so that fetch order by
// run_at is exact.
package sqlite
