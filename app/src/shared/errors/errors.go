package errors

import "errors"

// ErrInvalidTimestamp is wrapped by every timestamp parsing failure.
var ErrInvalidTimestamp = errors.New("invalid timestamp")
