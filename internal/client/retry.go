package client

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/abhisek/psytest/internal/result"
	"github.com/abhisek/psytest/internal/session"
)

// RetryConfig configures retry behavior for transient failures.
type RetryConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

// DefaultRetryConfig returns the retry settings used by the CLI.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		InitialWait: 1 * time.Second,
		MaxWait:     10 * time.Second,
		Multiplier:  2.0,
	}
}

// RetrySubmitter is a decorator that retries transient submission
// errors with exponential backoff and jitter. Submissions carry their
// session id, so a retry after a lost response returns the stored
// result instead of scoring twice.
type RetrySubmitter struct {
	inner  session.Submitter
	config RetryConfig
}

// WithRetry wraps a Submitter with retry logic.
func WithRetry(s session.Submitter, cfg RetryConfig) session.Submitter {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &RetrySubmitter{inner: s, config: cfg}
}

func (r *RetrySubmitter) Submit(ctx context.Context, sub session.Submission) (result.TestResult, error) {
	var lastErr error
	for attempt := range r.config.MaxAttempts {
		res, err := r.inner.Submit(ctx, sub)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if !shouldRetry(err) {
			return result.TestResult{}, err
		}

		// Last attempt: don't sleep, just return the error.
		if attempt == r.config.MaxAttempts-1 {
			break
		}

		wait := r.backoff(attempt, err)
		select {
		case <-ctx.Done():
			return result.TestResult{}, ctx.Err()
		case <-time.After(wait):
		}
	}
	return result.TestResult{}, lastErr
}

// shouldRetry determines if an error is retryable.
func shouldRetry(err error) bool {
	// Context errors are never retried.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Server answers: only rate limits and server-side failures are
	// transient. Validation and not-found will fail the same way again.
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500
	}

	// Other errors (network, etc.) are treated as transient.
	return true
}

// backoff computes the wait duration for the given attempt.
func (r *RetrySubmitter) backoff(attempt int, err error) time.Duration {
	// Respect Retry-After for rate limits.
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter
	}

	wait := float64(r.config.InitialWait) * math.Pow(r.config.Multiplier, float64(attempt))
	if wait > float64(r.config.MaxWait) {
		wait = float64(r.config.MaxWait)
	}

	// Add ±20% jitter.
	jitter := wait * 0.2 * (2*rand.Float64() - 1)
	wait += jitter

	if wait < 0 {
		wait = 0
	}
	return time.Duration(wait)
}
