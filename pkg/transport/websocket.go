package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Stats holds transport counters.
type Stats struct {
	TextSent       int64 `json:"text_sent"`
	BinarySent     int64 `json:"binary_sent"`
	TextReceived   int64 `json:"text_received"`
	BinaryReceived int64 `json:"binary_received"`
	Connects       int64 `json:"connects"`
}

// WebSocket implements Transport over a gorilla WebSocket connection.
type WebSocket struct {
	config *Config
	logger *slog.Logger

	mu    sync.RWMutex
	conn  *websocket.Conn
	state ConnectionState
	gen   uint64

	// gorilla allows one concurrent writer per connection
	writeMu sync.Mutex

	onMessage func(data []byte, isBinary bool)
	onClose   func(err error)

	textSent       atomic.Int64
	binarySent     atomic.Int64
	textReceived   atomic.Int64
	binaryReceived atomic.Int64
	connects       atomic.Int64
}

// NewWebSocket creates a WebSocket transport.
func NewWebSocket(opts ...Option) (*WebSocket, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &WebSocket{
		config: cfg,
		logger: cfg.Logger.With("component", "transport.websocket"),
		state:  StateDisconnected,
	}, nil
}

// Connect dials the backend and starts the receive loop.
func (w *WebSocket) Connect(ctx context.Context) error {
	w.mu.Lock()
	if w.state != StateDisconnected {
		w.mu.Unlock()
		return ErrAlreadyConnected
	}
	w.state = StateConnecting
	w.mu.Unlock()

	headers := http.Header{}
	if w.config.Token != "" {
		headers.Set("Authorization", "Bearer "+w.config.Token)
	}
	headers.Set("Protocol-Version", strconv.Itoa(w.config.ProtocolVersion))
	if w.config.DeviceID != "" {
		headers.Set("Device-Id", w.config.DeviceID)
	}
	if w.config.ClientID != "" {
		headers.Set("Client-Id", w.config.ClientID)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: w.config.HandshakeTimeout,
	}

	w.logger.Info("connecting to backend", "url", w.config.URL)

	conn, resp, err := dialer.DialContext(ctx, w.config.URL, headers)
	if err != nil {
		w.mu.Lock()
		w.state = StateDisconnected
		w.mu.Unlock()
		if resp != nil {
			connErr := NewConnectionError(
				fmt.Sprintf("dial failed with status %d", resp.StatusCode),
				err,
				resp.StatusCode >= 500,
			)
			connErr.StatusCode = resp.StatusCode
			return connErr
		}
		return NewConnectionError("dial failed", err, true)
	}

	w.mu.Lock()
	w.conn = conn
	w.state = StateConnected
	w.gen++
	gen := w.gen
	w.mu.Unlock()

	w.connects.Add(1)
	go w.readLoop(conn, gen)

	w.logger.Info("connected to backend")
	return nil
}

// Close sends a normal closure and tears down the connection.
func (w *WebSocket) Close() error {
	w.mu.Lock()
	conn := w.conn
	w.conn = nil
	w.state = StateDisconnected
	// invalidates the running read loop so it stays silent
	w.gen++
	w.mu.Unlock()

	if conn == nil {
		return nil
	}

	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		deadline,
	)
	err := conn.Close()
	w.logger.Info("disconnected from backend")
	return err
}

// IsConnected returns true if connected.
func (w *WebSocket) IsConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state == StateConnected
}

// State returns the current connection state.
func (w *WebSocket) State() ConnectionState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// SendText sends a text frame.
func (w *WebSocket) SendText(text string) error {
	if err := w.write(websocket.TextMessage, []byte(text)); err != nil {
		return err
	}
	w.textSent.Add(1)
	return nil
}

// SendBinary sends a binary frame.
func (w *WebSocket) SendBinary(data []byte) error {
	if err := w.write(websocket.BinaryMessage, data); err != nil {
		return err
	}
	w.binarySent.Add(1)
	return nil
}

func (w *WebSocket) write(messageType int, data []byte) error {
	w.mu.RLock()
	conn := w.conn
	state := w.state
	w.mu.RUnlock()

	if state != StateConnected || conn == nil {
		return ErrNotConnected
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	if w.config.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(w.config.WriteTimeout))
	}
	if err := conn.WriteMessage(messageType, data); err != nil {
		return NewConnectionError("write failed", err, true)
	}
	return nil
}

// OnMessage sets the receive callback.
func (w *WebSocket) OnMessage(fn func(data []byte, isBinary bool)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onMessage = fn
}

// OnClose sets the callback for connections dropped by the remote side.
func (w *WebSocket) OnClose(fn func(err error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onClose = fn
}

// Stats returns transport counters.
func (w *WebSocket) Stats() Stats {
	return Stats{
		TextSent:       w.textSent.Load(),
		BinarySent:     w.binarySent.Load(),
		TextReceived:   w.textReceived.Load(),
		BinaryReceived: w.binaryReceived.Load(),
		Connects:       w.connects.Load(),
	}
}

// current reports whether gen is still the live connection.
func (w *WebSocket) current(gen uint64) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.gen == gen
}

func (w *WebSocket) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		if w.config.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(w.config.ReadTimeout))
		}

		messageType, data, err := conn.ReadMessage()
		if err != nil {
			w.handleDisconnect(conn, gen, err)
			return
		}

		w.mu.RLock()
		fn := w.onMessage
		w.mu.RUnlock()

		switch messageType {
		case websocket.TextMessage:
			w.textReceived.Add(1)
			if fn != nil {
				fn(data, false)
			}
		case websocket.BinaryMessage:
			w.binaryReceived.Add(1)
			if fn != nil {
				fn(data, true)
			}
		}
	}
}

func (w *WebSocket) handleDisconnect(conn *websocket.Conn, gen uint64, err error) {
	w.mu.Lock()
	if w.gen != gen {
		w.mu.Unlock()
		return
	}
	w.conn = nil
	w.state = StateDisconnected
	fn := w.onClose
	w.mu.Unlock()

	_ = conn.Close()

	var cause error
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		w.logger.Info("backend closed connection")
	} else {
		cause = fmt.Errorf("%w: %v", ErrConnectionClosed, err)
		w.logger.Warn("connection lost", "error", err)
	}

	if fn != nil {
		fn(cause)
	}
}

var _ Transport = (*WebSocket)(nil)
