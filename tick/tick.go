// Package tick walks a bound schedule lazily and emits one Tick per firing.
//
// A Stream owns a single cursor (the last fired instant) and at most one
// pending wait. The first reference is the clock's current time when the
// stream is first polled: a restarted process fires the next occurrence
// only and never backfills instants missed while it was down.
package tick

import (
	"errors"
	"time"
)

// ErrExhausted is returned by Stream.Next once the schedule has no further
// instants. It is a terminal signal, not a fault.
var ErrExhausted = errors.New("tick: schedule exhausted")

// Tick is a firing event.
type Tick struct {
	// Stream is the name of the stream that fired.
	Stream string `json:"stream" msgpack:"stream"`

	// Seq numbers ticks of one stream instance from 1.
	Seq uint64 `json:"seq" msgpack:"seq"`

	// Timestamp is the firing instant, in the bound zone. Timestamps of one
	// stream strictly increase.
	Timestamp time.Time `json:"timestamp" msgpack:"timestamp"`

	// Planned is the instant the schedule asked for. It differs from
	// Timestamp only for anomalous ticks.
	Planned time.Time `json:"planned" msgpack:"planned"`

	// Timezone is the IANA name of the bound zone.
	Timezone string `json:"timezone,omitempty" msgpack:"timezone,omitempty"`

	// Anomaly is set when the schedule returned an instant that was not
	// strictly after the reference it was asked about, a fault in the rule.
	// The tick fires immediately instead. Ticks that are merely late because
	// the consumer fell behind are not anomalous.
	Anomaly bool `json:"anomaly,omitempty" msgpack:"anomaly,omitempty"`
}

// In returns Timestamp in the tick's zone. Decoded ticks carry a fixed
// offset; In restores the named zone when it can be loaded.
func (t Tick) In() time.Time {
	if t.Timezone == "" {
		return t.Timestamp
	}
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return t.Timestamp
	}
	return t.Timestamp.In(loc)
}
