package pipe

import (
	"errors"
	"fmt"

	"github.com/xraph/cadence/tick"
)

// ErrClosed is returned by a direct backend after Close.
var ErrClosed = errors.New("cadence: pipe closed")

// WriteError reports a tick that could not be written to the store. It is
// fatal to the pipe that returned it.
type WriteError struct {
	Tick     tick.Tick
	Attempts int
	Err      error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("pipe: write tick %d of %s failed after %d attempt(s): %v",
		e.Tick.Seq, e.Tick.Stream, e.Attempts, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
