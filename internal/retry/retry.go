// Package retry computes backoff delays for retryable vendor API failures.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Default policy parameters for the SwitchBot cloud API.
const (
	DefaultBase = 60 * time.Second
	DefaultMax  = 24 * time.Hour
)

// Attempt ceilings. Exceeding a ceiling converts a retryable failure
// into a terminal one for that operation.
const (
	ReadAttempts = 3 // per read call, rate-limit failures only
	InitAttempts = 5 // per device initialization, independent per device
)

// jitterFraction is the uniform jitter applied around the computed delay.
const jitterFraction = 0.25

// Policy computes exponential backoff delays. The zero value is not
// usable; use Default or construct with explicit Base/Max.
type Policy struct {
	Base time.Duration
	Max  time.Duration
}

// Default returns the policy used for all vendor API retries.
func Default() Policy {
	return Policy{Base: DefaultBase, Max: DefaultMax}
}

// Delay returns the backoff delay for the given attempt count:
// Base*2^attempt clamped to Max, with ±25% uniform jitter. The result
// never exceeds Max. Classification of whether a failure is retryable
// is the caller's responsibility.
func (p Policy) Delay(attempt int) time.Duration {
	if p.Base <= 0 || attempt < 0 {
		return 0
	}

	d := p.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.Max || d < 0 {
			// Overflow or past the ceiling, no point doubling further.
			d = p.Max
			break
		}
	}
	if d > p.Max {
		d = p.Max
	}

	// ±25% uniform jitter, clamped back under Max.
	jitter := 1 - jitterFraction + rand.Float64()*2*jitterFraction
	d = time.Duration(float64(d) * jitter)
	if d > p.Max {
		d = p.Max
	}
	return d
}

// Sleep blocks for d or until ctx is cancelled, whichever comes first.
// Returns ctx.Err() when interrupted so callers can abandon the retry.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
