// Package store defines the aggregate persistence interface.
//
// The task and workflow subsystems each define their own store interface.
// The composite [Store] composes them, so a single backend satisfies every
// persistence contract a piped worker or a recorded workflow needs.
//
// # Available Backends
//
//   - store/memory: in-memory store for development and testing
//   - store/sqlite: embedded SQLite file (modernc.org/sqlite)
//   - store/postgres: PostgreSQL using pgx/v5
//   - store/redis: Redis hashes and sorted sets (go-redis/v9)
//
// # Usage
//
//	s, err := sqlite.Open(ctx, "cadence.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	if err := s.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	eng, err := engine.New(engine.WithStore(s))
//
// The [storetest] package holds the contract tests every backend runs.
package store
