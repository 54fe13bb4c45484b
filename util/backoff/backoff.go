// Package backoff provides context-aware exponential backoff for
// reconnect loops.
package backoff

import (
	"context"
	"time"
)

// Backoff tracks an exponentially growing retry delay. Not safe for
// concurrent use; each retry loop owns its own instance.
type Backoff struct {
	initial    time.Duration
	max        time.Duration
	multiplier float64
	current    time.Duration
}

// New creates a backoff starting at initial and growing by multiplier
// per failed attempt, capped at max.
func New(initial, max time.Duration, multiplier float64) *Backoff {
	return &Backoff{
		initial:    initial,
		max:        max,
		multiplier: multiplier,
		current:    initial,
	}
}

// Wait sleeps for the current delay and then grows it. Returns
// ctx.Err() if the context is cancelled first.
func (b *Backoff) Wait(ctx context.Context) error {
	select {
	case <-time.After(b.current):
		b.current = time.Duration(float64(b.current) * b.multiplier)
		if b.current > b.max {
			b.current = b.max
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset returns the delay to its initial value after a success.
func (b *Backoff) Reset() {
	b.current = b.initial
}

// CurrentDelay returns the delay the next Wait will use.
func (b *Backoff) CurrentDelay() time.Duration {
	return b.current
}
