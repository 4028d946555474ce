// Package retry retries short local operations, such as history archive
// writes that race with another mvt-report process holding the database.
package retry

import (
	"math"
	"math/rand"
	"time"
)

// BackoffStrategy defines how to calculate the wait before the next attempt.
type BackoffStrategy int

const (
	// BackoffExponential uses exponential backoff: base * 2^(attempt-1)
	BackoffExponential BackoffStrategy = iota

	// BackoffLinear uses linear backoff: base * attempt
	BackoffLinear

	// BackoffConstant uses constant backoff: base (no increase)
	BackoffConstant
)

// BackoffConfig configures the backoff behavior.
type BackoffConfig struct {
	// Strategy is the backoff strategy to use.
	// Default is BackoffExponential.
	Strategy BackoffStrategy

	// BaseInterval is the wait after the first failed attempt.
	// Default is 100ms.
	BaseInterval time.Duration

	// MaxInterval caps the wait between attempts.
	// Default is 2s.
	MaxInterval time.Duration

	// Jitter adds randomness so concurrent processes do not retry in step.
	// Value between 0.0 (no jitter) and 1.0 (full jitter).
	// Default is 0.1 (10% jitter).
	Jitter float64
}

// DefaultBackoffConfig returns a BackoffConfig with default values.
func DefaultBackoffConfig() *BackoffConfig {
	return &BackoffConfig{
		Strategy:     BackoffExponential,
		BaseInterval: 100 * time.Millisecond,
		MaxInterval:  2 * time.Second,
		Jitter:       0.1,
	}
}

// Interval returns the wait after the given number of failed attempts.
func (c *BackoffConfig) Interval(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}

	var interval time.Duration
	switch c.Strategy {
	case BackoffLinear:
		interval = c.BaseInterval * time.Duration(attempts)
	case BackoffConstant:
		interval = c.BaseInterval
	default:
		multiplier := math.Pow(2, float64(attempts-1))
		interval = time.Duration(float64(c.BaseInterval) * multiplier)
	}

	if c.MaxInterval > 0 && interval > c.MaxInterval {
		interval = c.MaxInterval
	}
	if c.Jitter > 0 {
		interval = c.applyJitter(interval)
	}
	return interval
}

// applyJitter spreads interval over [1-jitter, 1+jitter].
func (c *BackoffConfig) applyJitter(interval time.Duration) time.Duration {
	jitter := c.Jitter
	if jitter > 1 {
		jitter = 1
	}
	jitterRange := float64(interval) * jitter
	jitterValue := (rand.Float64()*2 - 1) * jitterRange
	return time.Duration(float64(interval) + jitterValue)
}

// Schedule returns the waits of maxAttempts failed attempts without jitter.
func (c *BackoffConfig) Schedule(maxAttempts int) []time.Duration {
	if maxAttempts <= 0 {
		return nil
	}
	plain := *c
	plain.Jitter = 0
	schedule := make([]time.Duration, maxAttempts)
	for i := 0; i < maxAttempts; i++ {
		schedule[i] = plain.Interval(i + 1)
	}
	return schedule
}
