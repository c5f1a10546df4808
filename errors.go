package cadence

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("cadence: no store configured")
	ErrStoreClosed     = errors.New("cadence: store closed")
	ErrMigrationFailed = errors.New("cadence: migration failed")

	// Not found errors.
	ErrTaskNotFound = errors.New("cadence: task not found")
	ErrRunNotFound  = errors.New("cadence: run not found")

	// Conflict errors.
	ErrTaskAlreadyExists = errors.New("cadence: task already exists")
	ErrRunAlreadyExists  = errors.New("cadence: run already exists")
	ErrDuplicateSchedule = errors.New("cadence: duplicate schedule name")

	// State errors.
	ErrInvalidState = errors.New("cadence: invalid state transition")

	// Config errors.
	ErrInvalidConfig = errors.New("cadence: invalid config")
)
