package httpclient

import (
	"fmt"
	"time"
)

// RetryableError wraps a response that exhausted its retry budget.
type RetryableError struct {
	StatusCode int
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("httpclient: status %d: %s", e.StatusCode, e.Message)
}

func (e *RetryableError) Unwrap() error { return e.Err }

// IsRetryable always reports true: by construction a RetryableError is
// only constructed for responses the strategy classified as retryable.
func (e *RetryableError) IsRetryable() bool { return true }
