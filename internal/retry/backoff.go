// Package retry provides exponential backoff with jitter for retry logic.
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Config configures the retry behavior.
type Config struct {
	// InitialDelay is the delay before the first retry.
	// Default: 100ms
	InitialDelay time.Duration

	// MaxDelay is the maximum delay between retries.
	// Default: 10s
	MaxDelay time.Duration

	// Multiplier is the factor by which delay increases after each retry.
	// Default: 2.0
	Multiplier float64

	// MaxAttempts is the maximum number of attempts (including the first).
	// 0 means infinite retries.
	MaxAttempts int

	// JitterFraction is the fraction of the delay to randomize (0.0 to 1.0).
	// E.g., 0.2 means ±20% jitter.
	JitterFraction float64
}

// DefaultConfig is the schedule for transport-level retries, such as
// re-fetching a blob after a 503.
func DefaultConfig() Config {
	return Config{
		InitialDelay:   100 * time.Millisecond,
		MaxDelay:       10 * time.Second,
		Multiplier:     2.0,
		MaxAttempts:    5,
		JitterFraction: 0.2,
	}
}

// UploadConfig is the schedule for manually triggered re-uploads: few
// attempts, spaced further apart than transport retries.
func UploadConfig() Config {
	return Config{
		InitialDelay:   time.Second,
		MaxDelay:       30 * time.Second,
		Multiplier:     3.0,
		MaxAttempts:    3,
		JitterFraction: 0.2,
	}
}

// Backoff computes the delays of one retry sequence. Not safe for
// concurrent use; each sequence gets its own.
type Backoff struct {
	config  Config
	attempt int
}

// New creates a Backoff, filling zero values of config with defaults.
func New(config Config) *Backoff {
	def := DefaultConfig()
	if config.InitialDelay <= 0 {
		config.InitialDelay = def.InitialDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = def.MaxDelay
	}
	if config.Multiplier <= 0 {
		config.Multiplier = def.Multiplier
	}
	config.JitterFraction = min(max(config.JitterFraction, 0), 1)

	return &Backoff{config: config}
}

// Next returns the delay before the next attempt, or 0 once MaxAttempts
// is used up. serverHint, e.g. from a Retry-After header, is a lower bound.
func (b *Backoff) Next(serverHint time.Duration) time.Duration {
	b.attempt++
	if b.config.MaxAttempts > 0 && b.attempt > b.config.MaxAttempts {
		return 0
	}

	delay := float64(b.config.InitialDelay) * math.Pow(b.config.Multiplier, float64(b.attempt-1))
	delay = min(delay, float64(b.config.MaxDelay))

	if b.config.JitterFraction > 0 {
		jitter := (rand.Float64()*2 - 1) * b.config.JitterFraction
		delay *= 1 + jitter
	}

	return max(time.Duration(delay), serverHint)
}

// RetryableFunc is one attempt. It returns the result, the error and
// whether the error is worth another attempt.
type RetryableFunc[T any] func() (T, error, bool)

// Do runs fn until it succeeds, reports a permanent error, runs out of
// attempts or ctx is done. It returns the last error on failure.
func Do[T any](ctx context.Context, config Config, fn RetryableFunc[T]) (T, error) {
	return DoWithHint(ctx, config, func() (T, error, bool, time.Duration) {
		result, err, shouldRetry := fn()
		return result, err, shouldRetry, 0
	})
}

// RetryableFuncWithHint is like RetryableFunc but also returns a minimum delay
// before the next attempt (e.g. from a Retry-After header).
type RetryableFuncWithHint[T any] func() (T, error, bool, time.Duration)

// DoWithHint is Do with server-provided delay hints.
func DoWithHint[T any](ctx context.Context, config Config, fn RetryableFuncWithHint[T]) (T, error) {
	backoff := New(config)
	var lastErr error
	var zero T

	for attempt := 1; config.MaxAttempts <= 0 || attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err, shouldRetry, serverHint := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !shouldRetry || attempt == config.MaxAttempts {
			break
		}

		if err := sleep(ctx, backoff.Next(serverHint)); err != nil {
			return zero, err
		}
	}
	return zero, lastErr
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
