package backoff_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/cadence/backoff"
)

func TestConstant(t *testing.T) {
	c := backoff.NewConstant(5 * time.Second)
	for attempt := 1; attempt <= 5; attempt++ {
		if got := c.Delay(attempt); got != 5*time.Second {
			t.Errorf("Delay(%d) = %v", attempt, got)
		}
	}
}

func TestLinear(t *testing.T) {
	l := backoff.NewLinear(time.Second, 5*time.Second)
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{3, 3 * time.Second},
		{10, 5 * time.Second},
	}
	for _, tt := range tests {
		if got := l.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponential(t *testing.T) {
	e := backoff.NewExponential(time.Second, 10*time.Second)
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{200, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := e.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponentialWithJitterBounded(t *testing.T) {
	e := backoff.NewExponentialWithJitter(time.Second, 4*time.Second)
	for attempt := 1; attempt <= 10; attempt++ {
		for range 50 {
			d := e.Delay(attempt)
			if d < 0 || d > 4*time.Second {
				t.Fatalf("Delay(%d) = %v out of bounds", attempt, d)
			}
		}
	}
}

func TestWaitCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := backoff.Wait(ctx, backoff.NewConstant(time.Hour), 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait = %v, want context.Canceled", err)
	}
}

func TestWaitElapses(t *testing.T) {
	start := time.Now()
	if err := backoff.Wait(context.Background(), backoff.NewConstant(20*time.Millisecond), 1); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Error("Wait returned early")
	}
	if err := backoff.Wait(context.Background(), backoff.None, 1); err != nil {
		t.Fatal(err)
	}
}
