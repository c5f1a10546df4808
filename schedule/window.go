package schedule

import "time"

type window struct {
	s          Schedule
	start, end time.Time
}

// Between restricts s to instants in [start, end]. A zero start or end
// leaves that side open. Once an instant would fall after end the schedule
// reports exhaustion.
func Between(s Schedule, start, end time.Time) Schedule {
	return &window{s: s, start: start, end: end}
}

// Until is Between with an open start.
func Until(s Schedule, end time.Time) Schedule {
	return Between(s, time.Time{}, end)
}

func (w *window) Next(ref time.Time) (time.Time, bool) {
	if !w.start.IsZero() && ref.Before(w.start) {
		// The first instant may land exactly on start.
		ref = w.start.Add(-time.Nanosecond).In(ref.Location())
	}
	next, ok := w.s.Next(ref)
	if !ok {
		return time.Time{}, false
	}
	if !w.end.IsZero() && next.After(w.end) {
		return time.Time{}, false
	}
	return next, true
}
