package task

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/xraph/cadence/tick"
)

// Codec serializes the tick carried in a task payload.
type Codec interface {
	// Encode serializes a tick to bytes.
	Encode(t tick.Tick) ([]byte, error)

	// Decode deserializes bytes into a tick.
	Decode(data []byte) (tick.Tick, error)

	// Name returns the codec identifier stored on the task.
	Name() string
}

// Codec names.
const (
	CodecNameJSON    = "json"
	CodecNameMsgpack = "msgpack"
)

// CodecFor returns the codec registered under name. An empty name selects
// JSON.
func CodecFor(name string) (Codec, error) {
	switch name {
	case CodecNameJSON, "":
		return JSONCodec{}, nil
	case CodecNameMsgpack:
		return MsgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("task: unknown codec %q", name)
	}
}

// JSONCodec encodes ticks as JSON.
type JSONCodec struct{}

func (JSONCodec) Encode(t tick.Tick) ([]byte, error) { return json.Marshal(t) }

func (JSONCodec) Decode(data []byte) (tick.Tick, error) {
	var t tick.Tick
	if err := json.Unmarshal(data, &t); err != nil {
		return tick.Tick{}, err
	}
	return t, nil
}

func (JSONCodec) Name() string { return CodecNameJSON }

// MsgpackCodec encodes ticks as MessagePack.
type MsgpackCodec struct{}

func (MsgpackCodec) Encode(t tick.Tick) ([]byte, error) { return msgpack.Marshal(t) }

func (MsgpackCodec) Decode(data []byte) (tick.Tick, error) {
	var t tick.Tick
	if err := msgpack.Unmarshal(data, &t); err != nil {
		return tick.Tick{}, err
	}
	return t, nil
}

func (MsgpackCodec) Name() string { return CodecNameMsgpack }
