// Package cloud simulates the dialogue backend. It accepts device sessions
// over WebSocket and answers with scripted vad, asr, tts and chat messages,
// echoing the user's audio back as the reply.
package cloud

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-glasses/pkg/protocol"
	"github.com/teslashibe/go-glasses/pkg/wire"
)

// Hub manages device sessions
type Hub struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	// Callbacks
	onMessage func(sessionID string, msg *protocol.Message)

	// Stats
	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	framesReceived   atomic.Uint64
	framesSent       atomic.Uint64
	utterances       atomic.Uint64
}

// NewHub creates a backend simulator
func NewHub(cfg Config, logger *slog.Logger) (*Hub, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		cfg:      cfg,
		logger:   logger.With("component", "cloud"),
		sessions: make(map[string]*Session),
	}, nil
}

// OnMessage sets the callback for control messages from devices
func (h *Hub) OnMessage(callback func(sessionID string, msg *protocol.Message)) {
	h.mu.Lock()
	h.onMessage = callback
	h.mu.Unlock()
}

// RegisterRoutes registers the device WebSocket endpoint on a Fiber app
func (h *Hub) RegisterRoutes(app *fiber.App) {
	// WebSocket upgrade and auth middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		if h.cfg.Token != "" && c.Get("Authorization") != "Bearer "+h.cfg.Token {
			return fiber.ErrUnauthorized
		}
		c.Locals("device_id", c.Get("Device-Id"))
		c.Locals("client_id", c.Get("Client-Id"))
		return c.Next()
	})

	app.Get("/ws", websocket.New(h.handleSession))
}

// handleSession handles one device WebSocket connection
func (h *Hub) handleSession(c *websocket.Conn) {
	deviceID, _ := c.Locals("device_id").(string)
	clientID, _ := c.Locals("client_id").(string)

	now := time.Now()
	s := &Session{
		ID:        uuid.NewString(),
		DeviceID:  deviceID,
		ClientID:  clientID,
		Conn:      c,
		Connected: now,
		lastSeen:  now,
	}

	h.mu.Lock()
	h.sessions[s.ID] = s
	count := len(h.sessions)
	h.mu.Unlock()

	h.logger.Info("device connected", "session_id", s.ID, "device_id", deviceID, "sessions", count)

	defer func() {
		s.setListening(false, 0, nil)
		h.mu.Lock()
		delete(h.sessions, s.ID)
		count := len(h.sessions)
		h.mu.Unlock()
		h.logger.Info("device disconnected", "session_id", s.ID, "sessions", count)
	}()

	for {
		mt, data, err := c.ReadMessage()
		if err != nil {
			h.logger.Debug("read ended", "session_id", s.ID, "error", err)
			return
		}
		s.touch()

		switch mt {
		case websocket.TextMessage:
			h.messagesReceived.Add(1)
			h.handleText(s, data)
		case websocket.BinaryMessage:
			h.framesReceived.Add(1)
			h.handleBinary(s, data)
		}
	}
}

// handleText processes a control message from a device
func (h *Hub) handleText(s *Session, data []byte) {
	msg, err := protocol.Parse(data)
	if err != nil {
		h.logger.Warn("parse error", "session_id", s.ID, "error", err)
		return
	}

	h.mu.RLock()
	cb := h.onMessage
	h.mu.RUnlock()
	if cb != nil {
		cb(s.ID, msg)
	}

	switch msg.Type {
	case protocol.TypeHello:
		reply := protocol.NewHello(msg.Version, protocol.AudioParams{
			SampleRate:    h.cfg.SampleRate,
			Channels:      1,
			FrameDuration: h.cfg.FrameDuration,
		})
		reply.SessionID = s.ID
		h.send(s, reply)

	case protocol.TypeListen:
		switch msg.State {
		case protocol.StateStart:
			s.setListening(true, h.cfg.SilenceTimeout, func() { h.noSpeech(s) })
		case protocol.StateStop:
			s.setListening(false, 0, nil)
		case protocol.StateDetect:
			h.greet(s)
		}

	case protocol.TypeAbort:
		s.setListening(false, 0, nil)
		h.logger.Info("reply aborted", "session_id", s.ID, "reason", msg.Reason)

	default:
		h.logger.Debug("ignored message", "session_id", s.ID, "type", msg.Type)
	}
}

// handleBinary buffers uplink audio and answers complete utterances
func (h *Hub) handleBinary(s *Session, data []byte) {
	frame, err := wire.Unpack(data)
	if err != nil {
		h.logger.Warn("bad frame", "session_id", s.ID, "error", err)
		return
	}

	frames, done := s.addFrame(frame.Payload, h.cfg.UtteranceFrames, h.cfg.SilenceTimeout)
	if done {
		h.utterances.Add(1)
		h.reply(s, frames)
	}
}

// greet answers a wake word with a short spoken reply without audio
func (h *Hub) greet(s *Session) {
	h.send(s, &protocol.Message{Type: protocol.TypeTTS, State: protocol.StateStart, SessionID: s.ID})
	h.send(s, &protocol.Message{Type: protocol.TypeChat, Text: h.cfg.Greeting, SessionID: s.ID})
	h.send(s, &protocol.Message{Type: protocol.TypeTTS, State: protocol.StateEnd, SessionID: s.ID})
}

// reply answers an utterance: asr, optional function call, then the echoed
// audio wrapped in tts start and end
func (h *Hub) reply(s *Session, frames [][]byte) {
	h.send(s, &protocol.Message{Type: protocol.TypeASR, Text: h.cfg.Transcript, SessionID: s.ID})

	if h.cfg.FunctionCall != "" {
		h.send(s, &protocol.Message{
			Type:         protocol.TypeFunctionCall,
			SessionID:    s.ID,
			FunctionCall: &protocol.FunctionCall{Name: h.cfg.FunctionCall},
		})
	}

	h.send(s, &protocol.Message{Type: protocol.TypeTTS, State: protocol.StateStart, SessionID: s.ID})
	h.send(s, &protocol.Message{Type: protocol.TypeChat, Text: h.cfg.Reply, SessionID: s.ID})

	version := uint16(h.cfg.ProtocolVersion)
	for _, payload := range frames {
		if err := s.SendAudio(payload, version); err != nil {
			h.logger.Warn("send audio", "session_id", s.ID, "error", err)
			return
		}
		h.framesSent.Add(1)
	}

	h.send(s, &protocol.Message{Type: protocol.TypeTTS, State: protocol.StateEnd, SessionID: s.ID})
}

func (h *Hub) noSpeech(s *Session) {
	if !s.Listening() {
		return
	}
	s.setListening(false, 0, nil)
	h.send(s, &protocol.Message{Type: protocol.TypeVAD, State: protocol.StateNoSpeech, SessionID: s.ID})
}

func (h *Hub) send(s *Session, msg *protocol.Message) {
	if err := s.SendMessage(msg); err != nil {
		h.logger.Warn("send message", "session_id", s.ID, "type", msg.Type, "error", err)
		return
	}
	h.messagesSent.Add(1)
}

// SendRaw sends an arbitrary text frame to a session, for fault injection
func (h *Hub) SendRaw(sessionID string, data []byte) error {
	s := h.GetSession(sessionID)
	if s == nil {
		return fiber.NewError(fiber.StatusNotFound, "session not connected")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	h.messagesSent.Add(1)
	return s.Conn.WriteMessage(websocket.TextMessage, data)
}

// Disconnect closes a session's connection
func (h *Hub) Disconnect(sessionID string) error {
	s := h.GetSession(sessionID)
	if s == nil {
		return fiber.NewError(fiber.StatusNotFound, "session not connected")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Conn.Close()
}

// GetSession returns a session by ID
func (h *Hub) GetSession(sessionID string) *Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[sessionID]
}

// SessionCount returns the number of connected devices
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Sessions returns info about all connected devices
func (h *Hub) Sessions() []SessionInfo {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.info())
	}
	return infos
}

// Stats contains hub statistics
type Stats struct {
	SessionCount     int    `json:"session_count"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	FramesReceived   uint64 `json:"frames_received"`
	FramesSent       uint64 `json:"frames_sent"`
	Utterances       uint64 `json:"utterances"`
}

// GetStats returns hub statistics
func (h *Hub) GetStats() Stats {
	return Stats{
		SessionCount:     h.SessionCount(),
		MessagesReceived: h.messagesReceived.Load(),
		MessagesSent:     h.messagesSent.Load(),
		FramesReceived:   h.framesReceived.Load(),
		FramesSent:       h.framesSent.Load(),
		Utterances:       h.utterances.Load(),
	}
}

// RegisterAPIRoutes registers API routes for session management
func (h *Hub) RegisterAPIRoutes(api fiber.Router) {
	sessions := api.Group("/sessions")

	// List connected devices
	sessions.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"sessions": h.Sessions(),
			"count":    h.SessionCount(),
		})
	})

	// Get hub stats
	sessions.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(h.GetStats())
	})

	// Push a raw control message, e.g. {"type":"error"}
	sessions.Post("/:id/message", func(c *fiber.Ctx) error {
		body := c.Body()
		if !json.Valid(body) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "body must be JSON"})
		}
		if err := h.SendRaw(c.Params("id"), body); err != nil {
			return fiberError(c, err)
		}
		return c.JSON(fiber.Map{"status": "sent"})
	})

	// Drop the connection to exercise device recovery
	sessions.Post("/:id/disconnect", func(c *fiber.Ctx) error {
		if err := h.Disconnect(c.Params("id")); err != nil {
			return fiberError(c, err)
		}
		return c.JSON(fiber.Map{"status": "disconnected"})
	})
}

func fiberError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if fe, ok := err.(*fiber.Error); ok {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": fmt.Sprint(err)})
}
