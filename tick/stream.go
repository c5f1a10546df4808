package tick

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/schedule"
)

// Emitter receives every tick a stream fires.
type Emitter interface {
	EmitTickFired(ctx context.Context, t Tick)
}

// Option configures a Stream.
type Option func(*Stream)

// WithName sets the stream name carried on each tick.
func WithName(name string) Option {
	return func(s *Stream) { s.name = name }
}

// WithLocation binds the schedule to loc. The default is the system local
// zone.
func WithLocation(loc *time.Location) Option {
	return func(s *Stream) { s.loc = loc }
}

// WithClock sets the time source.
func WithClock(c Clock) Option {
	return func(s *Stream) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Stream) { s.logger = l }
}

// WithEmitter registers an emitter notified on each tick.
func WithEmitter(e Emitter) Option {
	return func(s *Stream) { s.emitter = e }
}

// Stream turns a schedule into successive ticks.
//
// States: Idle (cursor set, nothing pending), Waiting (a timer is armed for
// the next instant), Firing (the tick is being returned) and Exhausted
// (terminal). Next serializes callers, so a stream has at most one pending
// wait.
type Stream struct {
	id      id.StreamID
	name    string
	sched   schedule.Schedule
	loc     *time.Location
	binding schedule.Binding
	clock   Clock
	logger  *slog.Logger
	emitter Emitter

	waitMu sync.Mutex // held for the whole of Next

	mu        sync.Mutex
	cursor    time.Time
	seq       uint64
	exhausted bool
}

// NewStream creates a stream over s.
func NewStream(s schedule.Schedule, opts ...Option) *Stream {
	st := &Stream{
		id:     id.NewStreamID(),
		sched:  s,
		clock:  SystemClock,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(st)
	}
	if st.name == "" {
		st.name = st.id.String()
	}
	st.binding = schedule.Bind(s, st.loc)
	st.loc = st.binding.Location()
	return st
}

// ID returns the stream instance ID.
func (s *Stream) ID() id.StreamID { return s.id }

// Name returns the stream name.
func (s *Stream) Name() string { return s.name }

// Location returns the bound zone.
func (s *Stream) Location() *time.Location { return s.loc }

// Peek returns the instant the next tick is planned for without waiting or
// advancing the cursor.
func (s *Stream) Peek() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exhausted {
		return time.Time{}, false
	}
	return s.binding.Next(s.referenceLocked())
}

func (s *Stream) referenceLocked() time.Time {
	if s.cursor.IsZero() {
		return s.clock.Now()
	}
	return s.cursor
}

// Next blocks until the next instant and returns its tick. It returns
// ErrExhausted once the schedule is done (and on every later call), or
// ctx.Err() if ctx ends first; a cancelled wait emits nothing and leaves
// the cursor where it was.
func (s *Stream) Next(ctx context.Context) (Tick, error) {
	s.waitMu.Lock()
	defer s.waitMu.Unlock()

	if err := ctx.Err(); err != nil {
		return Tick{}, err
	}

	s.mu.Lock()
	if s.exhausted {
		s.mu.Unlock()
		return Tick{}, ErrExhausted
	}
	ref := s.referenceLocked()
	last := s.cursor
	planned, ok := s.binding.Next(ref)
	if !ok {
		s.exhausted = true
		s.mu.Unlock()
		s.logger.Info("tick stream exhausted", slog.String("stream", s.name))
		return Tick{}, ErrExhausted
	}
	s.mu.Unlock()

	now := s.clock.Now()
	fire := planned
	anomaly := false

	switch {
	case !planned.After(ref):
		// The schedule went backwards or stood still. Fire now instead of
		// spinning on the same instant.
		anomaly = true
		fire = now.In(s.loc)
		if !last.IsZero() && !fire.After(last) {
			fire = last.Add(time.Nanosecond)
		}
		s.logger.Warn("schedule produced a non-future instant, firing immediately",
			slog.String("stream", s.name),
			slog.Time("reference", ref),
			slog.Time("planned", planned),
		)
	case planned.After(now):
		timer := s.clock.NewTimer(planned.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return Tick{}, ctx.Err()
		case <-timer.C():
		}
	default:
		// A valid instant the consumer is late for: deliver it as planned.
		s.logger.Debug("consumer behind schedule, firing late tick",
			slog.String("stream", s.name),
			slog.Time("planned", planned),
			slog.Duration("lag", now.Sub(planned)),
		)
	}

	s.mu.Lock()
	s.cursor = fire
	s.seq++
	t := Tick{
		Stream:    s.name,
		Seq:       s.seq,
		Timestamp: fire,
		Planned:   planned,
		Timezone:  s.loc.String(),
		Anomaly:   anomaly,
	}
	s.mu.Unlock()

	s.logger.Debug("tick fired",
		slog.String("stream", s.name),
		slog.Uint64("seq", t.Seq),
		slog.Time("at", t.Timestamp),
	)
	if s.emitter != nil {
		s.emitter.EmitTickFired(ctx, t)
	}
	return t, nil
}
