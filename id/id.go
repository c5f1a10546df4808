// Package id defines prefix-qualified identity types for all Cadence entities.
//
// Every entity uses a single ID struct with a prefix that identifies the
// entity type. IDs are K-sortable (UUIDv7-based), globally unique and
// URL-safe in the format "prefix_suffix", where suffix is the 32-character
// lowercase hex form of the UUID. Within one process, IDs generated later
// compare greater as strings.
package id

import (
	"database/sql/driver"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Prefix identifies the entity type encoded in an ID.
type Prefix string

// Prefix constants for all Cadence entity types.
const (
	PrefixTask   Prefix = "task"
	PrefixRun    Prefix = "wfrun"
	PrefixStream Prefix = "strm"
	PrefixWorker Prefix = "wkr"
)

// ID is the primary identifier type for all Cadence entities.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receivers for UnmarshalText/Scan.
type ID struct {
	prefix Prefix
	uuid   uuid.UUID
	valid  bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new globally unique ID with the given prefix.
// It panics if prefix is not a valid prefix (programming error).
func New(prefix Prefix) ID {
	if !validPrefix(prefix) {
		panic(fmt.Sprintf("id: invalid prefix %q", prefix))
	}
	u, err := uuid.NewV7()
	if err != nil {
		panic(fmt.Sprintf("id: generate uuid: %v", err))
	}
	return ID{prefix: prefix, uuid: u, valid: true}
}

// Parse parses an ID string (e.g. "task_0190b2c7a8f27c3e9a1b2c3d4e5f6071").
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}
	sep := strings.LastIndexByte(s, '_')
	if sep <= 0 {
		return Nil, fmt.Errorf("id: parse %q: missing prefix", s)
	}
	prefix, suffix := Prefix(s[:sep]), s[sep+1:]
	if !validPrefix(prefix) {
		return Nil, fmt.Errorf("id: parse %q: invalid prefix", s)
	}
	if len(suffix) != 32 {
		return Nil, fmt.Errorf("id: parse %q: suffix must be 32 hex characters", s)
	}
	raw, err := hex.DecodeString(suffix)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	u, err := uuid.FromBytes(raw)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}
	return ID{prefix: prefix, uuid: u, valid: true}, nil
}

// ParseWithPrefix parses an ID string and validates that its prefix
// matches the expected value.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}
	if parsed.prefix != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.prefix)
	}
	return parsed, nil
}

// MustParse is like Parse but panics on error. Use for hardcoded ID values.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}
	return parsed
}

func validPrefix(p Prefix) bool {
	if p == "" || len(p) > 63 {
		return false
	}
	for _, r := range p {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

// ──────────────────────────────────────────────────
// Type aliases
// ──────────────────────────────────────────────────

// TaskID identifies a persisted task (prefix: "task").
type TaskID = ID

// RunID identifies a workflow run (prefix: "wfrun").
type RunID = ID

// StreamID identifies a tick stream instance (prefix: "strm").
type StreamID = ID

// WorkerID identifies a worker (prefix: "wkr").
type WorkerID = ID

// NewTaskID generates a new unique task ID.
func NewTaskID() ID { return New(PrefixTask) }

// NewRunID generates a new unique run ID.
func NewRunID() ID { return New(PrefixRun) }

// NewStreamID generates a new unique stream ID.
func NewStreamID() ID { return New(PrefixStream) }

// NewWorkerID generates a new unique worker ID.
func NewWorkerID() ID { return New(PrefixWorker) }

// ParseTaskID parses a string and validates the "task" prefix.
func ParseTaskID(s string) (ID, error) { return ParseWithPrefix(s, PrefixTask) }

// ParseRunID parses a string and validates the "wfrun" prefix.
func ParseRunID(s string) (ID, error) { return ParseWithPrefix(s, PrefixRun) }

// ParseWorkerID parses a string and validates the "wkr" prefix.
func ParseWorkerID(s string) (ID, error) { return ParseWithPrefix(s, PrefixWorker) }

// ──────────────────────────────────────────────────
// ID methods
// ──────────────────────────────────────────────────

// String returns the "prefix_suffix" form, or "" for the Nil ID.
func (i ID) String() string {
	if !i.valid {
		return ""
	}
	return string(i.prefix) + "_" + hex.EncodeToString(i.uuid[:])
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}
	return i.prefix
}

// UUID returns the underlying UUID.
func (i ID) UUID() uuid.UUID { return i.uuid }

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool {
	return !i.valid
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil
		return nil
	}
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// Value implements driver.Valuer. The Nil ID is stored as NULL.
func (i ID) Value() (driver.Value, error) {
	if !i.valid {
		return nil, nil //nolint:nilnil // nil is the canonical NULL for driver.Valuer
	}
	return i.String(), nil
}

// Scan implements sql.Scanner.
func (i *ID) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*i = Nil
		return nil
	case string:
		return i.UnmarshalText([]byte(v))
	case []byte:
		return i.UnmarshalText(v)
	default:
		return fmt.Errorf("id: cannot scan %T into ID", src)
	}
}
