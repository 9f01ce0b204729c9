package transport

import (
	"context"
	"sync"
)

// Mock is a mock implementation of Transport for testing.
type Mock struct {
	mu sync.RWMutex

	connected bool

	onMessage func(data []byte, isBinary bool)
	onClose   func(err error)

	// Configurable behavior
	ConnectFunc    func(ctx context.Context) error
	CloseFunc      func() error
	SendTextFunc   func(text string) error
	SendBinaryFunc func(data []byte) error

	textSent     []string
	binarySent   [][]byte
	connectCalls int
}

// NewMock creates a new Mock transport.
func NewMock() *Mock {
	return &Mock{}
}

// Connect implements Transport.
func (m *Mock) Connect(ctx context.Context) error {
	m.mu.Lock()
	m.connectCalls++
	fn := m.ConnectFunc
	m.mu.Unlock()

	if fn != nil {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	return nil
}

// Close implements Transport.
func (m *Mock) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

// IsConnected implements Transport.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// SendText implements Transport.
func (m *Mock) SendText(text string) error {
	if m.SendTextFunc != nil {
		return m.SendTextFunc(text)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	m.textSent = append(m.textSent, text)
	return nil
}

// SendBinary implements Transport.
func (m *Mock) SendBinary(data []byte) error {
	if m.SendBinaryFunc != nil {
		return m.SendBinaryFunc(data)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.connected {
		return ErrNotConnected
	}
	m.binarySent = append(m.binarySent, append([]byte(nil), data...))
	return nil
}

// OnMessage implements Transport.
func (m *Mock) OnMessage(fn func(data []byte, isBinary bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onMessage = fn
}

// OnClose implements Transport.
func (m *Mock) OnClose(fn func(err error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onClose = fn
}

// Test helpers

// DeliverText simulates a text frame from the backend.
func (m *Mock) DeliverText(text string) {
	m.mu.RLock()
	fn := m.onMessage
	m.mu.RUnlock()
	if fn != nil {
		fn([]byte(text), false)
	}
}

// DeliverBinary simulates a binary frame from the backend.
func (m *Mock) DeliverBinary(data []byte) {
	m.mu.RLock()
	fn := m.onMessage
	m.mu.RUnlock()
	if fn != nil {
		fn(data, true)
	}
}

// SimulateClose simulates the backend dropping the connection.
func (m *Mock) SimulateClose(err error) {
	m.mu.Lock()
	m.connected = false
	fn := m.onClose
	m.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// TextSent returns a copy of all text frames sent.
func (m *Mock) TextSent() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.textSent...)
}

// BinarySent returns a copy of all binary frames sent.
func (m *Mock) BinarySent() [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([][]byte(nil), m.binarySent...)
}

// ConnectCalls returns how many times Connect was called.
func (m *Mock) ConnectCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connectCalls
}

// Reset clears captured frames.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.textSent = nil
	m.binarySent = nil
}

var _ Transport = (*Mock)(nil)
