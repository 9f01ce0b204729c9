// Package protocol defines the JSON control messages exchanged with the
// dialogue backend. Audio travels separately as binary frames (see package wire).
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies the type of a control message.
type MessageType string

const (
	// Device → Backend messages
	TypeHello  MessageType = "hello"  // Session handshake with audio parameters
	TypeListen MessageType = "listen" // Microphone start/stop/wake word
	TypeAbort  MessageType = "abort"  // Interrupt the current reply

	// Backend → Device messages
	TypeVAD   MessageType = "vad"   // Voice activity result
	TypeASR   MessageType = "asr"   // Speech recognition result
	TypeChat  MessageType = "chat"  // Reply text
	TypeTTS   MessageType = "tts"   // Reply audio lifecycle
	TypeError MessageType = "error" // Backend failure

	// TypeFunctionCall marks a tool invocation. Any message carrying a
	// function_call object is treated as one, whatever its type.
	TypeFunctionCall MessageType = "function_call"
)

// States carried in the "state" field.
const (
	StateNoSpeech      = "no_speech"
	StateStart         = "start"
	StateStop          = "stop"
	StateEnd           = "end"
	StateDetect        = "detect"
	StateSentenceStart = "sentence_start"
)

// Listen modes.
const (
	ModeAuto     = "auto"
	ModeManual   = "manual"
	ModeRealtime = "realtime"
)

var (
	// ErrEmptyMessage is returned by Parse for an empty payload.
	ErrEmptyMessage = errors.New("protocol: empty message")

	// ErrInvalidMessage is returned by Parse for malformed JSON or a
	// payload that is not a JSON object.
	ErrInvalidMessage = errors.New("protocol: invalid message")
)

// AudioParams describes the audio format of a session.
type AudioParams struct {
	Format        string `json:"format"`         // "opus"
	SampleRate    int    `json:"sample_rate"`    // e.g., 16000
	Channels      int    `json:"channels"`       // 1 for mono
	FrameDuration int    `json:"frame_duration"` // Milliseconds
}

// FunctionCall is a tool invocation requested by the backend.
type FunctionCall struct {
	Name string `json:"name"`

	// Arguments is either a JSON object or a JSON string holding an object.
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ArgumentsMap decodes Arguments into a map.
func (fc *FunctionCall) ArgumentsMap() (map[string]any, error) {
	raw := bytes.TrimSpace(fc.Arguments)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return map[string]any{}, nil
	}

	// Arguments encoded as a JSON string.
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode arguments string: %w", err)
		}
		raw = []byte(s)
		if len(bytes.TrimSpace(raw)) == 0 {
			return map[string]any{}, nil
		}
	}

	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}
	return args, nil
}

// Message is a control message. Only the fields relevant to Type are set.
type Message struct {
	Type      MessageType `json:"type"`
	State     string      `json:"state,omitempty"`
	Text      string      `json:"text,omitempty"`
	SessionID string      `json:"session_id,omitempty"`
	Mode      string      `json:"mode,omitempty"`
	Reason    string      `json:"reason,omitempty"`

	// Hello fields
	Version     int          `json:"version,omitempty"`
	Transport   string       `json:"transport,omitempty"`
	AudioParams *AudioParams `json:"audio_params,omitempty"`

	// FunctionCall is set only when the payload carries a function_call object.
	FunctionCall *FunctionCall `json:"function_call,omitempty"`

	// Raw is the payload the message was parsed from.
	Raw json.RawMessage `json:"-"`
}

// Parse parses a control message. Only invalid JSON, or JSON that is not an
// object, is an error. Fields of an unexpected JSON type are left unset, and
// a function_call object is decoded whatever the type field holds.
func Parse(data []byte) (*Message, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyMessage
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: not an object", ErrInvalidMessage)
	}

	msg := &Message{
		Type:      MessageType(stringField(fields, "type")),
		State:     stringField(fields, "state"),
		Text:      stringField(fields, "text"),
		SessionID: stringField(fields, "session_id"),
		Mode:      stringField(fields, "mode"),
		Reason:    stringField(fields, "reason"),
		Transport: stringField(fields, "transport"),
		Raw:       append(json.RawMessage(nil), data...),
	}

	if raw, ok := fields["version"]; ok {
		var v int
		if json.Unmarshal(raw, &v) == nil {
			msg.Version = v
		}
	}
	if raw, ok := objectField(fields, "audio_params"); ok {
		var p AudioParams
		if json.Unmarshal(raw, &p) == nil {
			msg.AudioParams = &p
		}
	}
	if raw, ok := objectField(fields, "function_call"); ok {
		msg.FunctionCall = parseFunctionCall(raw)
	}
	return msg, nil
}

// parseFunctionCall decodes a function_call object. A name that is not a
// string is left empty.
func parseFunctionCall(raw json.RawMessage) *FunctionCall {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return &FunctionCall{}
	}
	call := &FunctionCall{Name: stringField(fields, "name")}
	if args, ok := fields["arguments"]; ok {
		call.Arguments = args
	}
	return call
}

// stringField returns fields[key] when it is a JSON string.
func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// objectField returns fields[key] when it is a JSON object.
func objectField(fields map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	raw := bytes.TrimSpace(fields[key])
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}
	return raw, true
}

// Bytes returns the JSON-encoded message.
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// String returns the JSON-encoded message, or an empty string on error.
func (m *Message) String() string {
	b, err := m.Bytes()
	if err != nil {
		return ""
	}
	return string(b)
}

// HasFunctionCall reports whether the message carries a function_call object.
func (m *Message) HasFunctionCall() bool {
	return m.FunctionCall != nil
}
