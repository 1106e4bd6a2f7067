package executor

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ToolTimeoutError reports a single attempt exceeding its deadline.
// Retryable.
type ToolTimeoutError struct {
	Tool    string
	Timeout time.Duration
}

func (e *ToolTimeoutError) Error() string {
	return fmt.Sprintf("tool %s: timed out after %s", e.Tool, e.Timeout)
}

// ToolTransientError marks a tool failure worth retrying. Tools wrap flaky
// downstream errors in it to opt in to the retry policy.
type ToolTransientError struct {
	Tool string
	Err  error
}

func (e *ToolTransientError) Error() string {
	return fmt.Sprintf("tool %s: transient failure: %v", e.Tool, e.Err)
}

func (e *ToolTransientError) Unwrap() error {
	return e.Err
}

// NewTransient wraps err as retryable.
func NewTransient(tool string, err error) *ToolTransientError {
	return &ToolTransientError{Tool: tool, Err: err}
}

// CircuitOpenError is the short-circuit response for a tool whose breaker is
// open. Not retryable; it becomes an observation.
type CircuitOpenError struct {
	Tool       string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("tool %s: circuit open, retry after %s", e.Tool, e.RetryAfter.Round(time.Millisecond))
}

// IsRetryable reports whether a failed attempt should be retried. Only
// timeouts and transient classes are; everything else fails the call.
func IsRetryable(err error) bool {
	var timeout *ToolTimeoutError
	var transient *ToolTransientError
	if errors.As(err, &timeout) || errors.As(err, &transient) {
		return true
	}
	// A deadline blown inside the tool surfaces as the raw context error.
	return errors.Is(err, context.DeadlineExceeded)
}
