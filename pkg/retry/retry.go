package retry

import (
	"context"
	"time"

	"github.com/exploopio/mvtreport/pkg/core"
	"github.com/exploopio/mvtreport/pkg/errors"
)

// DefaultMaxAttempts is the number of attempts made by Do.
const DefaultMaxAttempts = 4

// Config configures Do.
type Config struct {
	// MaxAttempts includes the first attempt.
	// Default: DefaultMaxAttempts
	MaxAttempts int

	// Backoff computes the wait between attempts.
	Backoff *BackoffConfig

	// Retryable decides whether an error is worth another attempt.
	// Default: errors.IsRetryable
	Retryable func(error) bool

	// Sleep waits between attempts. Default: a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error

	Logger core.Logger
}

// Option configures Do.
type Option func(*Config)

// WithMaxAttempts sets the attempt limit.
func WithMaxAttempts(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxAttempts = n
		}
	}
}

// WithBackoff sets the backoff configuration.
func WithBackoff(b *BackoffConfig) Option {
	return func(c *Config) {
		if b != nil {
			c.Backoff = b
		}
	}
}

// WithRetryable sets the retry predicate.
func WithRetryable(fn func(error) bool) Option {
	return func(c *Config) {
		if fn != nil {
			c.Retryable = fn
		}
	}
}

// WithSleep replaces the wait function.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Config) {
		if fn != nil {
			c.Sleep = fn
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l core.Logger) Option {
	return func(c *Config) { c.Logger = core.OrNop(l) }
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do calls fn until it succeeds, returns a non-retryable error, the
// attempts are exhausted or ctx is done. It returns the last error of fn.
func Do(ctx context.Context, op string, fn func(ctx context.Context) error, opts ...Option) error {
	cfg := &Config{
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     DefaultBackoffConfig(),
		Retryable:   errors.IsRetryable,
		Sleep:       sleepContext,
		Logger:      &core.NopLogger{},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt >= cfg.MaxAttempts || !cfg.Retryable(err) {
			return err
		}
		wait := cfg.Backoff.Interval(attempt)
		cfg.Logger.Debug("%s failed (attempt %d/%d), retrying in %s: %v", op, attempt, cfg.MaxAttempts, wait, err)
		if serr := cfg.Sleep(ctx, wait); serr != nil {
			return err
		}
	}
}
