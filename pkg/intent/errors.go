package intent

import (
	"errors"
	"fmt"
)

// Sentinel errors for the intent package.
var (
	// ErrUnknownIntent indicates no handler accepts the function name.
	ErrUnknownIntent = errors.New("intent: unknown intent")

	// ErrInvalidArguments indicates the arguments are not a JSON object.
	ErrInvalidArguments = errors.New("intent: invalid arguments")
)

// HandlerError wraps an error returned by a handler.
type HandlerError struct {
	Name  string
	Cause error
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("intent: %s: %v", e.Name, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *HandlerError) Unwrap() error {
	return e.Cause
}

// IsUnknown returns true if the error indicates an unhandled intent.
func IsUnknown(err error) bool {
	return errors.Is(err, ErrUnknownIntent)
}
