package cloud

import (
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/teslashibe/go-glasses/pkg/protocol"
	"github.com/teslashibe/go-glasses/pkg/wire"
)

// Session is one connected device
type Session struct {
	ID        string
	DeviceID  string
	ClientID  string
	Conn      *websocket.Conn
	Connected time.Time

	mu        sync.Mutex
	lastSeen  time.Time
	listening bool
	utterance [][]byte
	silence   *time.Timer
	framesIn  int
}

// SendMessage sends a control message to the device
func (s *Session) SendMessage(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Conn.WriteMessage(websocket.TextMessage, data)
}

// SendAudio sends one framed audio packet to the device
func (s *Session) SendAudio(payload []byte, version uint16) error {
	frame := wire.Pack(payload, version)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Conn.WriteMessage(websocket.BinaryMessage, frame)
}

// Listening reports whether the device has its microphone open
func (s *Session) Listening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listening
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

// setListening opens or closes the utterance buffer. onSilence runs when a
// listening session receives no audio for timeout.
func (s *Session) setListening(on bool, timeout time.Duration, onSilence func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listening = on
	s.utterance = nil
	if s.silence != nil {
		s.silence.Stop()
		s.silence = nil
	}
	if on && timeout > 0 {
		s.silence = time.AfterFunc(timeout, onSilence)
	}
}

// addFrame buffers an utterance frame. It returns the complete utterance
// once n frames have arrived, and closes the buffer.
func (s *Session) addFrame(payload []byte, n int, timeout time.Duration) ([][]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.framesIn++
	if !s.listening {
		return nil, false
	}
	if s.silence != nil {
		s.silence.Reset(timeout)
	}

	s.utterance = append(s.utterance, append([]byte(nil), payload...))
	if len(s.utterance) < n {
		return nil, false
	}

	frames := s.utterance
	s.utterance = nil
	s.listening = false
	if s.silence != nil {
		s.silence.Stop()
		s.silence = nil
	}
	return frames, true
}

// SessionInfo contains info about a connected device
type SessionInfo struct {
	ID        string    `json:"id"`
	DeviceID  string    `json:"device_id"`
	ClientID  string    `json:"client_id"`
	Connected time.Time `json:"connected"`
	LastSeen  time.Time `json:"last_seen"`
	Listening bool      `json:"listening"`
	FramesIn  int       `json:"frames_in"`
}

func (s *Session) info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		ID:        s.ID,
		DeviceID:  s.DeviceID,
		ClientID:  s.ClientID,
		Connected: s.Connected,
		LastSeen:  s.lastSeen,
		Listening: s.listening,
		FramesIn:  s.framesIn,
	}
}
