// Package observability provides an OpenTelemetry metrics extension for
// Cadence. The MetricsExtension implements lifecycle hooks to record
// system-wide counters for ticks, enqueues, pipe faults, task outcomes
// and workflow runs.
//
// For per-attempt tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
