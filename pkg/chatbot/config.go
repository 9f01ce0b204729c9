package chatbot

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-glasses/pkg/dialogue"
	"github.com/teslashibe/go-glasses/pkg/intent"
	"github.com/teslashibe/go-glasses/pkg/protocol"
)

// Default timings.
const (
	DefaultTickInterval         = 100 * time.Millisecond
	DefaultReconnectDelay       = time.Second
	DefaultMaxReconnectAttempts = 5
)

// Config holds dialogue engine settings.
type Config struct {
	// ProtocolVersion is written into every outbound audio frame header and
	// the hello message.
	ProtocolVersion int `yaml:"protocol_version" json:"protocol_version"`

	// ListenMode is sent with listen messages: auto, manual or realtime.
	ListenMode string `yaml:"listen_mode" json:"listen_mode"`

	// TickInterval is the event loop period. One event and one intent are
	// handled per tick.
	TickInterval time.Duration `yaml:"tick_interval" json:"tick_interval"`

	// ReconnectDelay is the wait before each recovery attempt in the fault
	// state.
	ReconnectDelay time.Duration `yaml:"reconnect_delay" json:"reconnect_delay"`

	// MaxReconnectAttempts bounds recovery. Zero retries forever.
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts" json:"max_reconnect_attempts"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ProtocolVersion:      2,
		ListenMode:           protocol.ModeAuto,
		TickInterval:         DefaultTickInterval,
		ReconnectDelay:       DefaultReconnectDelay,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.ProtocolVersion <= 0 || c.ProtocolVersion > 0xFFFF {
		return fmt.Errorf("%w: protocol version %d out of range", ErrInvalidConfig, c.ProtocolVersion)
	}
	switch c.ListenMode {
	case protocol.ModeAuto, protocol.ModeManual, protocol.ModeRealtime:
	default:
		return fmt.Errorf("%w: unknown listen mode %q", ErrInvalidConfig, c.ListenMode)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("%w: tick interval must be positive", ErrInvalidConfig)
	}
	if c.ReconnectDelay < 0 {
		return fmt.Errorf("%w: reconnect delay must not be negative", ErrInvalidConfig)
	}
	if c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("%w: max reconnect attempts must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithObserver registers a state transition observer. Observers run on the
// event loop goroutine in registration order.
func WithObserver(fn dialogue.Observer) Option {
	return func(e *Engine) {
		if fn != nil {
			e.observers = append(e.observers, fn)
		}
	}
}

// WithErrorHandler sets the callback for non-fatal errors such as a failed
// stream start or a dropped audio frame.
func WithErrorHandler(fn func(error)) Option {
	return func(e *Engine) {
		e.onError = fn
	}
}

// WithDispatcher sets the intent dispatcher. Without one, intents are
// logged and dropped.
func WithDispatcher(d intent.Dispatcher) Option {
	return func(e *Engine) {
		e.dispatcher = d
	}
}

// WithSessionID overrides the generated session identifier.
func WithSessionID(id string) Option {
	return func(e *Engine) {
		if id != "" {
			e.sessionID = id
		}
	}
}
