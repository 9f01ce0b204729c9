package chatbot

import (
	"errors"
	"fmt"
)

// Sentinel errors for the chatbot package.
var (
	// ErrInvalidConfig indicates a configuration value is out of range.
	ErrInvalidConfig = errors.New("chatbot: invalid config")

	// ErrAlreadyRunning indicates Run was called twice.
	ErrAlreadyRunning = errors.New("chatbot: already running")

	// ErrConnectionLost indicates recovery gave up reconnecting.
	ErrConnectionLost = errors.New("chatbot: connection lost")

	// ErrMalformedMessage indicates a control message could not be parsed.
	ErrMalformedMessage = errors.New("chatbot: malformed message")

	// ErrMalformedFrame indicates a binary frame could not be unpacked.
	ErrMalformedFrame = errors.New("chatbot: malformed frame")
)

// IsConnectionLost returns true if the engine stopped because the backend
// could not be reached.
func IsConnectionLost(err error) bool {
	return errors.Is(err, ErrConnectionLost)
}

// ReconnectError reports that recovery ran out of attempts.
type ReconnectError struct {
	Attempts int
	Cause    error
}

// Error implements the error interface.
func (e *ReconnectError) Error() string {
	return fmt.Sprintf("chatbot: connection lost after %d attempts: %v", e.Attempts, e.Cause)
}

// Unwrap returns ErrConnectionLost and the last dial error.
func (e *ReconnectError) Unwrap() []error {
	return []error{ErrConnectionLost, e.Cause}
}
