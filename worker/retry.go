package worker

import "github.com/xraph/cadence/backoff"

// Policy controls how many times a handler is called for one tick.
// The zero value makes a single attempt.
type Policy struct {
	// MaxAttempts is the total number of handler calls, including the
	// first. Values below 1 mean 1.
	MaxAttempts int

	// Backoff is the delay between attempts. Nil retries immediately.
	Backoff backoff.Strategy
}

// Attempts returns a policy making at most n handler calls.
func Attempts(n int) Policy {
	if n < 1 {
		n = 1
	}
	return Policy{MaxAttempts: n}
}

// Retries returns a policy allowing n retries after the first failure,
// that is n+1 attempts.
func Retries(n int) Policy {
	if n < 0 {
		n = 0
	}
	return Attempts(n + 1)
}

// WithBackoff returns a copy of p waiting s between attempts.
func (p Policy) WithBackoff(s backoff.Strategy) Policy {
	p.Backoff = s
	return p
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}
