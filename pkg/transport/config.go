package transport

import (
	"fmt"
	"log/slog"
	"net/url"
	"time"
)

// Config holds configuration for the WebSocket transport.
type Config struct {
	// URL is the backend endpoint, e.g. "ws://host:8000/ws".
	URL string

	// Token is sent as "Authorization: Bearer <token>" when set.
	Token string

	// DeviceID identifies the device, usually its MAC address.
	DeviceID string

	// ClientID identifies this client installation.
	ClientID string

	// ProtocolVersion is sent in the Protocol-Version header.
	ProtocolVersion int

	// HandshakeTimeout bounds the WebSocket handshake.
	HandshakeTimeout time.Duration

	// ReadTimeout closes the connection when nothing arrives for this long.
	// Zero disables the deadline.
	ReadTimeout time.Duration

	// WriteTimeout bounds a single write.
	WriteTimeout time.Duration

	// Logger is the structured logger to use.
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ProtocolVersion:  2,
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		Logger:           slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks the configuration for required fields.
func (c *Config) Validate() error {
	if c.URL == "" {
		return ErrMissingURL
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("transport: invalid url %q: %w", c.URL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("transport: url scheme must be ws or wss, got %q", u.Scheme)
	}
	if c.ProtocolVersion <= 0 {
		return fmt.Errorf("transport: protocol version must be positive, got %d", c.ProtocolVersion)
	}
	return nil
}

// Option configures the transport.
type Option func(*Config)

// WithURL sets the backend endpoint.
func WithURL(u string) Option {
	return func(c *Config) {
		c.URL = u
	}
}

// WithToken sets the bearer token.
func WithToken(token string) Option {
	return func(c *Config) {
		c.Token = token
	}
}

// WithDeviceID sets the device identifier.
func WithDeviceID(id string) Option {
	return func(c *Config) {
		c.DeviceID = id
	}
}

// WithClientID sets the client identifier.
func WithClientID(id string) Option {
	return func(c *Config) {
		c.ClientID = id
	}
}

// WithProtocolVersion sets the protocol version header.
func WithProtocolVersion(v int) Option {
	return func(c *Config) {
		c.ProtocolVersion = v
	}
}

// WithTimeouts sets the handshake, read and write timeouts.
func WithTimeouts(handshake, read, write time.Duration) Option {
	return func(c *Config) {
		c.HandshakeTimeout = handshake
		c.ReadTimeout = read
		c.WriteTimeout = write
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}
