// Package transport carries control messages and audio frames between the
// device and the dialogue backend over a single WebSocket connection.
package transport

import "context"

// Transport is a message-oriented duplex connection to the backend.
//
// Callbacks run on the transport's receive goroutine and must not block it
// for long.
type Transport interface {
	// Connect establishes the connection and starts receiving.
	Connect(ctx context.Context) error

	// Close closes the connection. The close callback is not invoked.
	Close() error

	// IsConnected reports whether the connection is open.
	IsConnected() bool

	// SendText sends a text frame.
	SendText(text string) error

	// SendBinary sends a binary frame.
	SendBinary(data []byte) error

	// OnMessage sets the receive callback.
	OnMessage(fn func(data []byte, isBinary bool))

	// OnClose sets the callback invoked when the connection drops without a
	// local Close. err is nil for a clean remote close.
	OnClose(fn func(err error))
}

// ConnectionState represents the WebSocket connection state.
type ConnectionState int

const (
	// StateDisconnected indicates no active connection.
	StateDisconnected ConnectionState = iota
	// StateConnecting indicates connection is being established.
	StateConnecting
	// StateConnected indicates an active connection.
	StateConnected
)

// String returns a human-readable connection state.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}
