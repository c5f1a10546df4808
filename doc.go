// Package cadence turns calendar rules into background work. A schedule
// (cron expression, fluent builder, English phrase or custom rule) is bound
// to a timezone and walked lazily as a stream of ticks. Ticks are handed to a
// bounded worker pool either directly or through a durable task store, and a
// tick can drive a typed, sequential workflow.
//
// Cadence is a library, not a service. Import it, pick a store, and register
// schedules with ordinary Go handler functions.
//
// # Quick Start
//
//	s, _ := schedule.Each().Day().At("9:30").Build()
//	eng, _ := engine.New(engine.WithStore(sqliteStore))
//	_ = engine.Schedule(eng, "reminder", s, sendReminder, deps, engine.Piped())
//	err := eng.Run(ctx)
//
// # Architecture
//
//	schedule ──> tick.Stream ──> pipe (direct | piped via task.Store) ──> worker ──> handler / workflow
//
// Each subsystem (task, workflow) defines its own store interface and a
// single backend (memory, sqlite, postgres, redis) implements all of them.
//
// All entity IDs are prefix-qualified, K-sortable, UUIDv7-based identifiers.
package cadence
