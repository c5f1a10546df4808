package queue

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config defines per-queue rate limiting and concurrency.
type Config struct {
	// Name is the queue identifier (must match the task.Queue field).
	Name string

	// MaxConcurrency limits how many tasks from this queue may run at
	// once. Zero means no queue-specific limit.
	MaxConcurrency int

	// RateLimit is the maximum sustained tasks per second started from
	// this queue. Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size for the token bucket. Defaults to 1 if
	// RateLimit is set but RateBurst is zero.
	RateBurst int
}

// limit is the runtime state shared by queue and schedule limits.
type limit struct {
	limiter        *rate.Limiter
	maxConcurrency int
	active         int
}

func newLimit(maxConcurrency int, ratePerSec float64, burst int) *limit {
	l := &limit{maxConcurrency: maxConcurrency}
	if ratePerSec > 0 {
		if burst <= 0 {
			burst = 1
		}
		l.limiter = rate.NewLimiter(rate.Limit(ratePerSec), burst)
	}
	return l
}

// full reports whether another task would exceed the concurrency cap.
func (l *limit) full() bool {
	return l != nil && l.maxConcurrency > 0 && l.active >= l.maxConcurrency
}

// allow consumes a rate token.
func (l *limit) allow(now time.Time) bool {
	return l == nil || l.limiter == nil || l.limiter.AllowN(now, 1)
}

func (l *limit) inc() {
	if l != nil {
		l.active++
	}
}

func (l *limit) dec() {
	if l != nil && l.active > 0 {
		l.active--
	}
}

// Manager controls per-queue and per-schedule rate limiting and
// concurrency. It is safe for concurrent use.
type Manager struct {
	mu        sync.Mutex
	queues    map[string]*limit
	schedules map[string]*limit
}

// NewManager creates a Manager with the given queue configurations.
// Queues not listed here have no limits.
func NewManager(configs ...Config) *Manager {
	m := &Manager{
		queues:    make(map[string]*limit, len(configs)),
		schedules: make(map[string]*limit),
	}
	for _, cfg := range configs {
		m.queues[cfg.Name] = newLimit(cfg.MaxConcurrency, cfg.RateLimit, cfg.RateBurst)
	}
	return m
}

// Acquire checks rate limits and concurrency for a task of the given
// schedule on the given queue. If the task may proceed it takes a slot and
// returns true. The caller MUST call Release when the task finishes.
//
// Concurrency is checked before any rate token is spent, so a refused
// Acquire never consumes tokens for a slot it did not get.
func (m *Manager) Acquire(queue, schedule string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	ql := m.queues[queue]
	sl := m.schedules[scheduleKey(queue, schedule)]
	if ql.full() || sl.full() {
		return false
	}

	now := time.Now()
	if !ql.allow(now) {
		return false
	}
	if !sl.allow(now) {
		return false
	}

	ql.inc()
	sl.inc()
	return true
}

// Wait blocks until Acquire succeeds, polling every interval, or until ctx
// is done.
func (m *Manager) Wait(ctx context.Context, queue, schedule string, interval time.Duration) error {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	for !m.Acquire(queue, schedule) {
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

// Release gives back the slot taken by Acquire.
func (m *Manager) Release(queue, schedule string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queues[queue].dec()
	m.schedules[scheduleKey(queue, schedule)].dec()
}

// SetQueueConfig dynamically updates (or creates) a queue configuration.
func (m *Manager) SetQueueConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l := newLimit(cfg.MaxConcurrency, cfg.RateLimit, cfg.RateBurst)
	if existing := m.queues[cfg.Name]; existing != nil {
		l.active = existing.active
	}
	m.queues[cfg.Name] = l
}

// ActiveCount returns the number of running tasks for a queue.
func (m *Manager) ActiveCount(queue string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l := m.queues[queue]; l != nil {
		return l.active
	}
	return 0
}
