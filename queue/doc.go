// Package queue enforces per-queue and per-schedule rate limits and
// concurrency caps at execution time.
//
// Tasks carry a Queue field naming the queue they belong to and a Name
// field naming the schedule that produced them. A worker with a [Manager]
// asks for a slot before running each task and gives it back afterwards.
//
// # Per-Queue Configuration
//
//	queue.Config{
//	    Name:           "reports",
//	    MaxConcurrency: 2,  // at most 2 report tasks at once
//	    RateLimit:      5,  // at most 5 tasks/s started from this queue
//	    RateBurst:      10,
//	}
//
// # Per-Schedule Configuration
//
// Several schedules can share a queue. [ScheduleConfig] narrows the limits
// for one of them without touching its neighbours:
//
//	m := queue.NewManager(queue.Config{Name: "default"})
//	m.SetScheduleConfig(queue.ScheduleConfig{
//	    Queue:          "default",
//	    Schedule:       "nightly-export",
//	    MaxConcurrency: 1,
//	})
//
// Rate limiting uses a token bucket from golang.org/x/time/rate.
// Queues and schedules without a config have no limits beyond the worker's
// own concurrency.
package queue
