package schedule

import "time"

// Binding ties a Schedule to the timezone its wall-clock rules are read in.
// A Binding is itself a Schedule and is immutable.
type Binding struct {
	schedule Schedule
	loc      *time.Location
}

var _ Schedule = Binding{}

// Bind binds s to loc. A nil loc binds to the system local zone.
func Bind(s Schedule, loc *time.Location) Binding {
	if loc == nil {
		loc = time.Local
	}
	return Binding{schedule: s, loc: loc}
}

// Next evaluates the schedule with ref viewed in the bound zone and returns
// the result in that zone.
func (b Binding) Next(ref time.Time) (time.Time, bool) {
	next, ok := b.schedule.Next(ref.In(b.loc))
	if !ok {
		return time.Time{}, false
	}
	return next.In(b.loc), true
}

// Location returns the bound zone.
func (b Binding) Location() *time.Location { return b.loc }

// Schedule returns the unbound schedule.
func (b Binding) Schedule() Schedule { return b.schedule }
