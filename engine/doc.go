// Package engine wires schedules, tick streams, pipes, workers, the store,
// middleware and extensions together and runs them as one unit.
//
// The engine package sits above every subsystem package. The root cadence
// package defines Config, Entity and the sentinel errors that those
// subsystems import, so it cannot import them back.
//
// # Building an Engine
//
//	s, err := sqlite.Open(ctx, "cadence.db")
//	if err != nil { ... }
//
//	eng, err := engine.New(
//	    engine.WithStore(s),
//	    engine.WithConfig(cfg),
//	    engine.WithExtension(myExtension),
//	    engine.WithQueueConfig(queue.Config{Name: "reports", RateLimit: 2}),
//	)
//
// # Scheduling Work
//
//	// Direct: ticks go straight to the worker.
//	engine.Schedule(eng, "heartbeat", schedule.MustCron("*/5 * * * *"), ping, client)
//
//	// Piped: ticks are written to the store first and survive restarts.
//	engine.Schedule(eng, "nightly", schedule.MustEnglish("every day at 2am"), export, deps,
//	    engine.Piped(),
//	    engine.WithRetry(worker.Retries(3)),
//	    engine.WithTimezone(berlin),
//	)
//
//	// Workflows: typed steps with delays; retries do not apply.
//	engine.ScheduleWorkflow(eng, "etl", schedule.MustCron("0 * * * *"), chain, deps)
//
// # Running
//
// [Engine.Run] runs every worker under one errgroup. Cancelling its context
// drains in-flight work within Config.ShutdownTimeout. A pipe write fault
// stops all workers and is returned, after which the process may exit.
//
// # Options
//
//   - [WithStore]: store for piped schedules and workflow runs
//   - [WithConfig]: concurrency, queues, timezone, codec, pipe retry
//   - [WithLogger]: logger for every component
//   - [WithClock]: time source for tick streams
//   - [WithExtension]: register a lifecycle extension
//   - [WithMiddleware]: add a middleware to the execution chain
//   - [WithQueueConfig], [WithScheduleConfig]: rate limits and concurrency
//   - [WithTracerProvider], [WithMeterProvider]: OpenTelemetry providers
package engine
