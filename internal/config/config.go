// Package config loads go-glasses settings. A YAML file is the primary
// source; the legacy key=value system_para.conf from the original firmware
// is also accepted. A .env file and GLASSES_* environment variables are
// applied on top.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-glasses/pkg/audio"
	"github.com/teslashibe/go-glasses/pkg/chatbot"
	"github.com/teslashibe/go-glasses/pkg/cloud"
	"github.com/teslashibe/go-glasses/pkg/transport"
)

// Device defaults.
const (
	DefaultServerAddress = "localhost"
	DefaultServerPort    = 8000
	DefaultToken         = "123456"
	DefaultDeviceID      = "00:11:22:33:44:55"
	DefaultWebAddr       = ":8080"
	DefaultSimAddr       = ":8000"
	LegacyConfigFile     = "system_para.conf"
)

// Config is the complete application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Audio    audio.Config   `yaml:"audio"`
	Dialogue chatbot.Config `yaml:"dialogue"`
	Log      LogConfig      `yaml:"log"`
	Web      WebConfig      `yaml:"web"`
	Sim      SimConfig      `yaml:"sim"`
}

// ServerConfig describes the dialogue backend connection.
type ServerConfig struct {
	// URL is the full backend URL. When empty it is built from Address,
	// Port and Path.
	URL     string `yaml:"url"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
	Secure  bool   `yaml:"secure"`

	Token           string        `yaml:"token"`
	DeviceID        string        `yaml:"device_id"`
	ClientID        string        `yaml:"client_id"`
	ProtocolVersion int           `yaml:"protocol_version"`
	Handshake       time.Duration `yaml:"handshake_timeout"`
}

// LogConfig selects the log level and format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// WebConfig configures the diagnostics server.
type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// SimConfig configures the backend simulator.
type SimConfig struct {
	Addr  string       `yaml:"addr"`
	Cloud cloud.Config `yaml:"cloud"`
}

// Default returns the device defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Address:         DefaultServerAddress,
			Port:            DefaultServerPort,
			Token:           DefaultToken,
			DeviceID:        DefaultDeviceID,
			ProtocolVersion: 2,
			Handshake:       10 * time.Second,
		},
		Audio:    audio.DefaultConfig(),
		Dialogue: chatbot.DefaultConfig(),
		Log:      LogConfig{Level: "info", Format: "text"},
		Web:      WebConfig{Enabled: true, Addr: DefaultWebAddr},
		Sim:      SimConfig{Addr: DefaultSimAddr, Cloud: cloud.DefaultConfig()},
	}
}

// Load reads path (YAML, or legacy key=value for any other extension),
// then .env and GLASSES_* overrides, and validates the result. An empty path
// uses ./system_para.conf when it exists.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat(LegacyConfigFile); err == nil {
			path = LegacyConfigFile
		}
	}

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	// .env is optional and never overrides the real environment
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if cfg.Server.ClientID == "" {
		cfg.Server.ClientID = cfg.Server.DeviceID
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("config: parse yaml %s: %w", path, err)
		}
		return nil
	default:
		values, err := godotenv.Read(path)
		if err != nil {
			return fmt.Errorf("config: read %s: %w", path, err)
		}
		return c.ApplyLegacy(values)
	}
}

// ApplyLegacy maps system_para.conf keys onto c. Unknown keys are ignored.
func (c *Config) ApplyLegacy(values map[string]string) error {
	str := map[string]*string{
		"AIChat_server_url":   &c.Server.Address,
		"AIChat_server_token": &c.Server.Token,
		"AIChat_Client_ID":    &c.Server.DeviceID,
	}
	num := map[string]*int{
		"AIChat_server_port":      &c.Server.Port,
		"AIChat_protocol_version": &c.Server.ProtocolVersion,
		"AIChat_sample_rate":      &c.Audio.SampleRate,
		"AIChat_channels":         &c.Audio.Channels,
		"AIChat_frame_duration":   &c.Audio.FrameDurationMs,
	}

	for key, dst := range str {
		if v, ok := values[key]; ok {
			*dst = v
		}
	}
	for key, dst := range num {
		v, ok := values[key]
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return &ConfigError{Field: key, Message: fmt.Sprintf("not a number: %q", v)}
		}
		*dst = n
	}

	// a full URL in the address key wins over address and port
	if strings.Contains(c.Server.Address, "://") {
		c.Server.URL = c.Server.Address
	}
	return nil
}

// ApplyEnv applies GLASSES_* overrides using lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"GLASSES_SERVER_URL":    &c.Server.URL,
		"GLASSES_SERVER_TOKEN":  &c.Server.Token,
		"GLASSES_DEVICE_ID":     &c.Server.DeviceID,
		"GLASSES_CLIENT_ID":     &c.Server.ClientID,
		"GLASSES_LOG_LEVEL":     &c.Log.Level,
		"GLASSES_LOG_FORMAT":    &c.Log.Format,
		"GLASSES_WEB_ADDR":      &c.Web.Addr,
		"GLASSES_INPUT_DEVICE":  &c.Audio.InputDevice,
		"GLASSES_OUTPUT_DEVICE": &c.Audio.OutputDevice,
	}
	for key, dst := range str {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup("GLASSES_AUDIO_BACKEND"); ok && v != "" {
		c.Audio.Backend = audio.Backend(v)
	}
	if v, ok := lookup("GLASSES_PROTOCOL_VERSION"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &ConfigError{Field: "GLASSES_PROTOCOL_VERSION", Message: fmt.Sprintf("not a number: %q", v)}
		}
		c.Server.ProtocolVersion = n
	}
	return nil
}

// ServerURL returns the backend WebSocket URL.
func (c *Config) ServerURL() string {
	if c.Server.URL != "" {
		return c.Server.URL
	}
	scheme := "ws"
	if c.Server.Secure {
		scheme = "wss"
	}
	u := url.URL{
		Scheme: scheme,
		Host:   c.Server.Address,
		Path:   c.Server.Path,
	}
	if c.Server.Port > 0 {
		u.Host = fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
	}
	return u.String()
}

// TransportOptions returns the transport options for the backend.
func (c *Config) TransportOptions() []transport.Option {
	return []transport.Option{
		transport.WithURL(c.ServerURL()),
		transport.WithToken(c.Server.Token),
		transport.WithDeviceID(c.Server.DeviceID),
		transport.WithClientID(c.Server.ClientID),
		transport.WithProtocolVersion(c.Server.ProtocolVersion),
		transport.WithTimeouts(c.Server.Handshake, 0, transport.DefaultConfig().WriteTimeout),
	}
}

// ChatbotConfig returns the dialogue settings with the server's protocol
// version.
func (c *Config) ChatbotConfig() chatbot.Config {
	d := c.Dialogue
	d.ProtocolVersion = c.Server.ProtocolVersion
	return d
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Server.URL == "" && c.Server.Address == "" {
		return &ConfigError{Field: "server.address", Message: "backend address or url is required"}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return &ConfigError{Field: "server.port", Message: fmt.Sprintf("out of range: %d", c.Server.Port)}
	}
	if c.Server.DeviceID == "" {
		return &ConfigError{Field: "server.device_id", Message: "device id is required"}
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return &ConfigError{Field: "log.format", Message: fmt.Sprintf("unknown format %q", c.Log.Format)}
	}

	tc := transport.DefaultConfig()
	tc.Apply(c.TransportOptions()...)
	if err := tc.Validate(); err != nil {
		return &ConfigError{Field: "server", Message: err.Error()}
	}
	if err := c.Audio.Validate(); err != nil {
		return &ConfigError{Field: "audio", Message: err.Error()}
	}
	if err := c.ChatbotConfig().Validate(); err != nil {
		return &ConfigError{Field: "dialogue", Message: err.Error()}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config: " + e.Field + ": " + e.Message
}
