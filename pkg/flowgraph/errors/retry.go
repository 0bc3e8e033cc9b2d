package errors

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryConfig configures WithRetryContext.
type RetryConfig struct {
	// MaxAttempts counts the first call. Values below 1 mean one call.
	MaxAttempts int

	// InitialBackoff is the wait after the first failure. It doubles after
	// every further failure up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// Jitter spreads each wait by up to this fraction in either direction.
	Jitter float64

	// RetryableFunc overrides IsRetryable.
	RetryableFunc func(error) bool

	// OnRetry is called before sleeping between attempts.
	// attempt is the 1-based number of the attempt that just failed.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultRetry suits chat completion calls: three attempts over a few seconds.
var DefaultRetry = RetryConfig{
	MaxAttempts:    3,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     8 * time.Second,
	Jitter:         0.2,
}

// RetryResult contains the outcome of WithRetryContext.
type RetryResult[T any] struct {
	Value    T
	Err      error
	Attempts int
	Duration time.Duration
}

// WithRetryContext calls fn until it succeeds, fails permanently, runs out
// of attempts, or ctx ends. Every returned error is a *CategorizedError.
func WithRetryContext[T any](ctx context.Context, cfg RetryConfig, fn func(context.Context) (T, error)) RetryResult[T] {
	start := time.Now()
	retryable := cfg.RetryableFunc
	if retryable == nil {
		retryable = IsRetryable
	}
	maxAttempts := max(cfg.MaxAttempts, 1)
	backoff := cfg.InitialBackoff

	result := func(v T, err error, attempts int) RetryResult[T] {
		return RetryResult[T]{Value: v, Err: err, Attempts: attempts, Duration: time.Since(start)}
	}
	var zero T

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return result(zero, &CategorizedError{Err: err, Attempts: attempt - 1, Context: "context done"}, attempt-1)
		}

		v, err := fn(ctx)
		if err == nil {
			return result(v, nil, attempt)
		}
		if !retryable(err) {
			return result(zero, &CategorizedError{Err: err, Category: CategoryPermanent, Attempts: attempt}, attempt)
		}
		if attempt == maxAttempts {
			return result(zero, &CategorizedError{
				Err:      err,
				Category: CategoryTransient,
				Attempts: attempt,
				Context:  "retries exhausted",
			}, attempt)
		}

		wait := jittered(backoff, cfg.Jitter)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, wait)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result(zero, &CategorizedError{Err: ctx.Err(), Attempts: attempt, Context: "context done during backoff"}, attempt)
		case <-timer.C:
		}

		backoff *= 2
		if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}
}

// jittered spreads base by up to ±jitter of itself.
func jittered(base time.Duration, jitter float64) time.Duration {
	if jitter <= 0 || base <= 0 {
		return base
	}
	return time.Duration(float64(base) * (1 + jitter*(rand.Float64()*2-1)))
}

// RetryOption configures NewRetryConfig.
type RetryOption func(*RetryConfig)

// WithMaxAttempts sets the maximum number of attempts.
func WithMaxAttempts(n int) RetryOption {
	return func(cfg *RetryConfig) { cfg.MaxAttempts = n }
}

// WithInitialBackoff sets the first wait.
func WithInitialBackoff(d time.Duration) RetryOption {
	return func(cfg *RetryConfig) { cfg.InitialBackoff = d }
}

// WithMaxBackoff caps the wait between attempts.
func WithMaxBackoff(d time.Duration) RetryOption {
	return func(cfg *RetryConfig) { cfg.MaxBackoff = d }
}

// NewRetryConfig starts from DefaultRetry and applies opts.
func NewRetryConfig(opts ...RetryOption) RetryConfig {
	cfg := DefaultRetry
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
