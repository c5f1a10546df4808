package worker

import (
	"errors"
	"fmt"

	"github.com/xraph/cadence/id"
)

var (
	// ErrNoBackend is returned by Build when no backend was configured.
	ErrNoBackend = errors.New("cadence: worker has no backend")

	// ErrNilHandler is returned by Build when the handler is nil.
	ErrNilHandler = errors.New("cadence: nil handler")

	// ErrRetryNotComposable is returned by BuildWorkflow when the retry
	// policy allows more than one attempt. A workflow run cannot be
	// restarted from a failed step.
	ErrRetryNotComposable = errors.New("cadence: retry policy cannot wrap a workflow")

	// ErrAlreadyStarted is returned by Run on a worker that has run before.
	ErrAlreadyStarted = errors.New("cadence: worker already started")
)

// HandlerError is the final failure of a task after all attempts.
type HandlerError struct {
	TaskID   id.TaskID
	Attempts int
	Err      error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("cadence: task %s failed after %d attempt(s): %v", e.TaskID, e.Attempts, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }
