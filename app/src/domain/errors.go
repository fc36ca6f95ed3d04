package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no ping satisfies the provided filters.
var ErrNotFound = errors.New("ping not found")

// ErrDuplicatePing is wrapped into a PersistenceError when the ping id already exists.
var ErrDuplicatePing = errors.New("ping already recorded")

// ErrNotObserved means the change feed did not deliver the ping before the
// observation deadline.
var ErrNotObserved = errors.New("ping not observed before deadline")

// ErrObserverStopped is returned to waiters once the shared subscription ends.
var ErrObserverStopped = errors.New("change observer stopped")

// ValidationError reports malformed or missing input, detected before any side effect.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// PersistenceError reports a failed write to the ping or result store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// UpstreamError reports that the streaming service could not be reached.
type UpstreamError struct {
	URL string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.URL, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// APIError is returned by the client when the API answers with a non-success status.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsPersistence reports whether err is a PersistenceError.
func IsPersistence(err error) bool {
	var target *PersistenceError
	return errors.As(err, &target)
}
