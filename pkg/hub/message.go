// Package hub fans diagnostics messages out to dashboard websocket clients
// and hands their text messages to a single receive handler.
package hub

import "github.com/gofiber/websocket/v2"

// MessageType is the websocket frame type a Message is written as.
type MessageType int

const (
	JSONMessage MessageType = iota
	BinaryMessage
)

// Message is one broadcast frame.
type Message struct {
	Type MessageType
	Data []byte
}

func (m Message) wsType() int {
	if m.Type == BinaryMessage {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}
