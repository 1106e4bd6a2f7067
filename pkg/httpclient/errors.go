package httpclient

import (
	"errors"
	"fmt"
	"time"
)

// RetryableError is returned when the client gave up after exhausting its
// retry budget against a status code that was worth retrying.
type RetryableError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *RetryableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (HTTP %d): %v", e.Message, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.StatusCode)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// IsRetryExhausted reports whether err is a RetryableError produced after the
// retry budget ran out.
func IsRetryExhausted(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}
