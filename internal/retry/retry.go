package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Policy is an explicit retry policy: how many attempts, and how long to
// wait between them. It is applied as a plain wrapping call, never as
// hidden decoration.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the wait before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the exponential growth of the wait.
	MaxDelay time.Duration

	// Jitter in [0,1] randomizes each wait by +/- that fraction.
	Jitter float64
}

// DefaultPolicy returns a conservative policy: three attempts with
// exponential backoff from 100ms, capped at 10s, 10% jitter.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Jitter:      0.1,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 100 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 10 * time.Second
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		p.Jitter = 0.1
	}
	return p
}

// Do runs fn until it succeeds, the attempts are exhausted, or the context
// is cancelled. The last error is returned. A nil shouldRetry retries every
// error.
func (p Policy) Do(ctx context.Context, fn func() error, shouldRetry func(error) bool) error {
	p = p.normalized()

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if shouldRetry != nil && !shouldRetry(lastErr) {
			return lastErr
		}

		if attempt == p.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.delay(attempt)):
		}
	}

	return lastErr
}

// delay computes the backoff for a given zero-based attempt:
// base * 2^attempt, capped, with +/- jitter applied.
func (p Policy) delay(attempt int) time.Duration {
	backoff := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if backoff > float64(p.MaxDelay) {
		backoff = float64(p.MaxDelay)
	}

	if p.Jitter > 0 {
		span := backoff * p.Jitter
		backoff += (rand.Float64() * 2 * span) - span
	}

	if backoff < 0 {
		backoff = 0
	}

	return time.Duration(backoff)
}
