package executor

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryConfig controls the per-call retry policy.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// BaseDelay is the backoff unit; attempt n waits BaseDelay * 2^n.
	BaseDelay time.Duration

	// MaxDelay caps the computed backoff.
	MaxDelay time.Duration

	// JitterFactor randomizes each delay by ±factor.
	JitterFactor float64
}

// DefaultRetryConfig is the policy applied when a tool does not override it.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   2,
		BaseDelay:    200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		JitterFactor: 0.2,
	}
}

// RetryError reports an exhausted retry budget; Err is the last attempt's
// failure.
type RetryError struct {
	Attempts int
	Err      error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryError) Unwrap() error {
	return e.Err
}

// retryer runs an operation up to MaxRetries+1 times, sleeping with
// exponential backoff and jitter between attempts. Only retryable error
// classes consume the budget; anything else returns immediately.
type retryer struct {
	config RetryConfig
}

func (r *retryer) do(ctx context.Context, op func(attempt int) error) (retries int, err error) {
	attempts := r.config.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(r.delay(attempt - 1)):
			case <-ctx.Done():
				return attempt - 1, ctx.Err()
			}
		}

		lastErr = op(attempt)
		if lastErr == nil {
			return attempt, nil
		}
		if !IsRetryable(lastErr) {
			return attempt, lastErr
		}
		if ctx.Err() != nil {
			return attempt, ctx.Err()
		}
	}
	return attempts - 1, &RetryError{Attempts: attempts, Err: lastErr}
}

func (r *retryer) delay(attempt int) time.Duration {
	delay := time.Duration(float64(r.config.BaseDelay) * math.Pow(2, float64(attempt)))
	if delay > r.config.MaxDelay {
		delay = r.config.MaxDelay
	}
	if r.config.JitterFactor > 0 {
		jitter := (rand.Float64()*2 - 1) * r.config.JitterFactor * float64(delay)
		delay += time.Duration(jitter)
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}
