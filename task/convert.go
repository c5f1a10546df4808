package task

import (
	"fmt"

	"github.com/xraph/cadence"
	"github.com/xraph/cadence/id"
	"github.com/xraph/cadence/tick"
)

// FromTick builds a pending task carrying t. The task's RunAt is the tick
// timestamp in UTC, which preserves firing order across stores.
func FromTick(t tick.Tick, c Codec, opts ...Option) (*Task, error) {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	payload, err := c.Encode(t)
	if err != nil {
		return nil, fmt.Errorf("task: encode tick: %w", err)
	}
	return &Task{
		Entity:   cadence.NewEntity(),
		ID:       id.NewTaskID(),
		Name:     t.Stream,
		Queue:    o.Queue,
		Payload:  payload,
		Codec:    c.Name(),
		State:    StatePending,
		Priority: o.Priority,
		RunAt:    t.Timestamp.UTC(),
		Timeout:  o.Timeout,
	}, nil
}

// Tick decodes the tick carried by the task.
func (t *Task) Tick() (tick.Tick, error) {
	c, err := CodecFor(t.Codec)
	if err != nil {
		return tick.Tick{}, err
	}
	decoded, err := c.Decode(t.Payload)
	if err != nil {
		return tick.Tick{}, fmt.Errorf("task: decode tick %s: %w", t.ID, err)
	}
	return decoded, nil
}
