package task

import "time"

// Options configures tasks created from ticks.
type Options struct {
	// Queue is the queue the task is enqueued to.
	Queue string

	// Priority orders fetches. Higher values are fetched first.
	Priority int

	// Timeout bounds a single handler attempt. Zero means no bound.
	Timeout time.Duration
}

// DefaultOptions returns Options with the default queue.
func DefaultOptions() Options {
	return Options{Queue: "default"}
}

// Option is a functional option for task creation.
type Option func(*Options)

// WithQueue sets the queue name.
func WithQueue(q string) Option {
	return func(o *Options) { o.Queue = q }
}

// WithPriority sets the fetch priority.
func WithPriority(p int) Option {
	return func(o *Options) { o.Priority = p }
}

// WithTimeout bounds each handler attempt.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}
