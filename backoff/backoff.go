// Package backoff provides delay strategies used between handler attempts
// and between pipe write attempts. Strategies are stateless and safe for
// concurrent use.
package backoff

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (1-indexed).
	// Attempt 1 is the first retry after the initial failure.
	Delay(attempt int) time.Duration
}

// Func adapts a plain function to Strategy.
type Func func(attempt int) time.Duration

// Delay calls f.
func (f Func) Delay(attempt int) time.Duration { return f(attempt) }

// None retries immediately.
var None Strategy = Func(func(int) time.Duration { return 0 })

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same delay.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// ──────────────────────────────────────────────────
// Linear
// ──────────────────────────────────────────────────

// Linear grows as min(Initial*attempt, Max).
type Linear struct {
	Initial time.Duration
	Max     time.Duration
}

// NewLinear creates a linear backoff strategy.
func NewLinear(initial, maxDelay time.Duration) *Linear {
	return &Linear{Initial: initial, Max: maxDelay}
}

// Delay returns Initial*attempt capped at Max.
func (l *Linear) Delay(attempt int) time.Duration {
	return capped(l.Initial*time.Duration(attempt), l.Max)
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential grows as min(Initial*2^(attempt-1), Max).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial*2^(attempt-1) capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	return capped(exp(e.Initial, attempt), e.Max)
}

// ExponentialWithJitter picks uniformly in [0, min(Initial*2^(attempt-1), Max)].
type ExponentialWithJitter struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponentialWithJitter creates an exponential backoff with full jitter.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: maxDelay}
}

// Delay returns a random duration bounded by the exponential ceiling.
func (e *ExponentialWithJitter) Delay(attempt int) time.Duration {
	ceiling := capped(exp(e.Initial, attempt), e.Max)
	return time.Duration(rand.Float64() * float64(ceiling)) //nolint:gosec // jitter does not need crypto rand
}

func exp(initial time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	f := float64(initial) * math.Pow(2, float64(attempt-1))
	if f > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(f)
}

func capped(d, maxDelay time.Duration) time.Duration {
	if maxDelay > 0 && d > maxDelay {
		return maxDelay
	}
	return d
}

// ──────────────────────────────────────────────────
// Defaults and helpers
// ──────────────────────────────────────────────────

// DefaultStrategy is ExponentialWithJitter from 100ms up to 30s.
func DefaultStrategy() Strategy {
	return NewExponentialWithJitter(100*time.Millisecond, 30*time.Second)
}

// Wait sleeps for s.Delay(attempt) or until ctx is done, whichever comes
// first. A nil strategy or a non-positive delay returns immediately.
func Wait(ctx context.Context, s Strategy, attempt int) error {
	if s == nil {
		return ctx.Err()
	}
	d := s.Delay(attempt)
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
