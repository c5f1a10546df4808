// Package postgres implements the store using pgx/v5 with raw SQL.
// Features: SKIP LOCKED fetch so several workers can share one queue,
// embedded SQL migrations tracked in cadence_migrations.
package postgres
