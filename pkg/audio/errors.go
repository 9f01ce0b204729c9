package audio

import (
	"errors"
	"fmt"
)

// Sentinel errors for the audio package. Every error returned by the Engine
// wraps exactly one of them.
var (
	// ErrInitialization indicates the driver or codec could not be set up.
	ErrInitialization = errors.New("audio: initialization failed")

	// ErrDeviceNotFound indicates no input or output device is available.
	ErrDeviceNotFound = errors.New("audio: device not found")

	// ErrStreamOpenFailed indicates the driver could not open or close a stream.
	ErrStreamOpenFailed = errors.New("audio: stream open failed")

	// ErrStreamStartFailed indicates the driver could not start or stop a stream.
	ErrStreamStartFailed = errors.New("audio: stream start failed")

	// ErrModeConflict indicates the operation contradicts the current mode
	// or stream state.
	ErrModeConflict = errors.New("audio: mode conflict")

	// ErrEncodeFailed indicates Opus encoding failed.
	ErrEncodeFailed = errors.New("audio: encode failed")

	// ErrDecodeFailed indicates Opus decoding failed.
	ErrDecodeFailed = errors.New("audio: decode failed")

	// ErrInvalidParameter indicates a bad argument or configuration value.
	ErrInvalidParameter = errors.New("audio: invalid parameter")

	// ErrMemoryAllocationFailed indicates a buffer could not be allocated.
	ErrMemoryAllocationFailed = errors.New("audio: memory allocation failed")

	// ErrNotInitialized indicates Init has not been called.
	ErrNotInitialized = fmt.Errorf("%w: engine not initialized", ErrInitialization)
)

// OpError records a failed engine operation.
type OpError struct {
	// Op is the operation, e.g. "start recording".
	Op string

	// Kind is one of the package sentinel errors.
	Kind error

	// Cause is the underlying driver or codec error, if any.
	Cause error
}

// Error implements the error interface.
func (e *OpError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Kind)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *OpError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func opError(op string, kind, cause error) error {
	return &OpError{Op: op, Kind: kind, Cause: cause}
}

// Error checking helpers.

// IsModeConflict returns true if the error is a mode or stream state conflict.
func IsModeConflict(err error) bool {
	return errors.Is(err, ErrModeConflict)
}

// IsDeviceError returns true if the error comes from the audio hardware.
func IsDeviceError(err error) bool {
	return errors.Is(err, ErrDeviceNotFound) ||
		errors.Is(err, ErrStreamOpenFailed) ||
		errors.Is(err, ErrStreamStartFailed)
}

// IsCodecError returns true if the error comes from the Opus codec.
func IsCodecError(err error) bool {
	return errors.Is(err, ErrEncodeFailed) || errors.Is(err, ErrDecodeFailed)
}
