package infra

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// RetryConfig holds configuration for retry logic
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// Retryable reports whether an error warrants another attempt.
	// A nil Retryable retries every error.
	Retryable func(err error) bool
	// BeforeRetry runs between attempts. Its error ends the loop.
	BeforeRetry func(ctx context.Context) error
}

// DefaultRetryConfig returns a backoff configuration for best-effort side
// channels such as notifications.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

// OnceMore allows exactly one additional attempt, immediately, when retryable
// reports true, after running before.
func OnceMore(retryable func(error) bool, before func(context.Context) error) RetryConfig {
	return RetryConfig{
		MaxAttempts: 2,
		Retryable:   retryable,
		BeforeRetry: before,
	}
}

// WithRetry executes a function with bounded, optionally backed-off retries.
func WithRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		// Don't retry on context cancellation
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return err
		}

		// Last attempt, don't wait
		if attempt == cfg.MaxAttempts {
			break
		}

		if delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}

			delay = time.Duration(float64(delay) * cfg.Multiplier)
			if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
		}

		if cfg.BeforeRetry != nil {
			if err := cfg.BeforeRetry(ctx); err != nil {
				return err
			}
		}
	}

	return lastErr
}

// IsRetryableHTTPStatus returns true if the HTTP status code is retryable
func IsRetryableHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusServiceUnavailable ||
		statusCode == http.StatusGatewayTimeout ||
		statusCode >= 500
}
