package queue

import (
	"math"
	"time"
)

// RetryPolicy spaces out attempts of an intent that failed to apply.
// A zero InitialDelay disables backoff: a retried intent is due on the next pass.
type RetryPolicy struct {
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// Enabled reports whether retried intents are delayed at all.
func (r RetryPolicy) Enabled() bool {
	return r.InitialDelay > 0
}

// NextDelay returns delay for a given attempt (1-based) with clamping.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	if !r.Enabled() {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	if r.BackoffFactor <= 0 {
		r.BackoffFactor = 2
	}

	delay := float64(r.InitialDelay) * math.Pow(r.BackoffFactor, float64(attempt-1))
	if r.MaxDelay > 0 && delay > float64(r.MaxDelay) {
		return r.MaxDelay
	}
	// float overflow on absurd attempt counts
	if delay > float64(math.MaxInt64) || delay <= 0 {
		if r.MaxDelay > 0 {
			return r.MaxDelay
		}
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}
