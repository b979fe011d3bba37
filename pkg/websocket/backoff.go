package websocket

import (
	"context"
	"math/rand"
	"time"
)

// DefaultBackoff provides conservative reconnect defaults.
func DefaultBackoff() Backoff {
	return Backoff{
		Min:    250 * time.Millisecond,
		Max:    5 * time.Second,
		Factor: 2.0,
		Jitter: 0.2,
	}
}

// Next returns the next backoff duration for the given attempt (1-based).
func (b Backoff) Next(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	low := b.Min
	if low <= 0 {
		low = 100 * time.Millisecond
	}
	high := b.Max
	if high <= 0 {
		high = 5 * time.Second
	}
	if high < low {
		high = low
	}
	factor := b.Factor
	if factor <= 1 {
		factor = 2.0
	}

	wait := low
	for i := 1; i < attempt; i++ {
		next := time.Duration(float64(wait) * factor)
		if next >= high {
			wait = high
			break
		}
		wait = next
	}

	if b.Jitter <= 0 {
		return wait
	}
	jitter := min(b.Jitter, 1)
	delta := float64(wait) * jitter
	return wait - time.Duration(delta) + time.Duration(rand.Float64()*2*delta)
}

// Wait sleeps for Next(attempt) and returns false if ctx ended first.
func (b Backoff) Wait(ctx context.Context, attempt int) bool {
	wait := b.Next(attempt)
	if wait <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
