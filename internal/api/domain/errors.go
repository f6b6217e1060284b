package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned for missing or malformed request fields
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized is returned when the internal secret does not match
	ErrUnauthorized = errors.New("unauthorized")

	// ErrJobNotFound is returned when a job cannot be found in the database
	ErrJobNotFound = errors.New("job not found")

	// ErrTransitionRejected is returned when an update would move a job backward
	// or out of a terminal state
	ErrTransitionRejected = errors.New("status transition rejected")

	// ErrConfiguration is returned at boot for a missing required setting
	ErrConfiguration = errors.New("configuration error")

	// ErrPersistFailed means intake never reached the publish step
	ErrPersistFailed = errors.New("persist failed")

	// ErrPublishFailed means the job was stored but its processing request was lost
	ErrPublishFailed = errors.New("publish failed")
)

// PublishError is returned by intake when the job row exists but the
// processing request could not be published
type PublishError struct {
	JobID int64
	Err   error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("%s for job %d: %v", ErrPublishFailed, e.JobID, e.Err)
}

func (e *PublishError) Unwrap() []error {
	return []error{ErrPublishFailed, e.Err}
}

// InvalidInput wraps msg as an ErrInvalidInput
func InvalidInput(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}
