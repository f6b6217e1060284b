package domain

import "errors"

var (
	// ErrJobNotFound is returned when the API has no record of the job
	ErrJobNotFound = errors.New("job not found")

	// ErrJobTerminal is returned when the job already completed or failed,
	// which means this delivery is a duplicate
	ErrJobTerminal = errors.New("job already in a terminal state")

	// ErrInvalidPayload is returned when a queue message is malformed
	ErrInvalidPayload = errors.New("invalid job payload")

	// ErrJobFailed is returned once a failure has been reported to the API
	ErrJobFailed = errors.New("job failed")
)

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
