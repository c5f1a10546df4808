// Package pipe connects tick streams to workers.
//
// There are two ways to feed a worker:
//
//   - Direct mode ([Direct]) hands ticks straight from the stream to the
//     worker. With the default buffer of zero the stream only advances
//     when a worker asks for the next tick. A positive buffer lets the
//     stream run ahead by at most that many ticks. Nothing is persisted,
//     so ticks in the buffer are lost when the process stops.
//   - Piped mode ([To]) writes every tick to a durable [task.Store] and
//     lets the worker consume the store. Ticks outlive restarts and are
//     consumed in firing order.
//
// A [Pipe] is the writing half of piped mode. By default a failed write is
// fatal: Run returns a [*WriteError] and the stream is not read again.
// [WithRetry] retries with backoff before giving up.
//
// Piped tasks go to a queue named after the stream unless [WithQueue]
// overrides it, so several schedules can share one store without picking
// up each other's tasks.
package pipe
