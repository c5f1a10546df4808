package queue

// ScheduleConfig defines rate limits and concurrency for the tasks of one
// schedule on one queue.
type ScheduleConfig struct {
	// Queue is the queue this config applies to.
	Queue string

	// Schedule is the schedule name (task.Name).
	Schedule string

	// RateLimit is the sustained tasks per second for this schedule.
	RateLimit float64

	// RateBurst is the burst size for the schedule's rate limiter.
	RateBurst int

	// MaxConcurrency limits simultaneous tasks for this schedule on this
	// queue. Zero means no schedule-specific limit.
	MaxConcurrency int
}

func scheduleKey(queue, schedule string) string {
	return queue + "\x00" + schedule
}

// SetScheduleConfig configures limits for one schedule on one queue.
// Calling it again for the same pair replaces the previous configuration
// and keeps the running count.
func (m *Manager) SetScheduleConfig(cfg ScheduleConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := scheduleKey(cfg.Queue, cfg.Schedule)
	l := newLimit(cfg.MaxConcurrency, cfg.RateLimit, cfg.RateBurst)
	if existing := m.schedules[key]; existing != nil {
		l.active = existing.active
	}
	m.schedules[key] = l
}

// ScheduleActiveCount returns the number of running tasks for a schedule
// on a queue.
func (m *Manager) ScheduleActiveCount(queue, schedule string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l := m.schedules[scheduleKey(queue, schedule)]; l != nil {
		return l.active
	}
	return 0
}
