// Package audio is the device audio engine: microphone and speaker streams,
// the frame queues between the real-time driver callbacks and the worker
// goroutines, and the Opus codec.
//
// Hardware access goes through a Driver:
//   - PortAudio - production use on the glasses and on development machines
//   - Mock - CI/Testing without hardware
//
// The engine owns every hardware handle. Create it with New, call Init before
// use and Deinit when done.
package audio

import (
	"fmt"
)

// Backend identifies a Driver implementation.
type Backend string

const (
	// BackendAuto selects PortAudio when compiled in, otherwise the mock.
	BackendAuto Backend = "auto"
	// BackendPortAudio uses PortAudio for cross-platform audio I/O.
	BackendPortAudio Backend = "portaudio"
	// BackendMock uses a synthetic driver for testing.
	BackendMock Backend = "mock"
)

// Default engine parameters.
const (
	DefaultSampleRate      = 16000
	DefaultChannels        = 1
	DefaultFrameDurationMs = 40

	// DefaultAudioCacheSize is the recording queue length at which the
	// oldest frame is evicted.
	DefaultAudioCacheSize = 750

	// MaxEncodeBufferSize is the minimum output buffer EncodeOpus accepts.
	MaxEncodeBufferSize = 2048

	// DecodeFrameSize is the per-channel sample count passed to the decoder.
	// It is fixed and independent of FrameDurationMs.
	DecodeFrameSize = 960
)

// Config holds audio engine configuration.
type Config struct {
	// Backend specifies which driver to use.
	// Default: "auto"
	Backend Backend `yaml:"backend" json:"backend"`

	// SampleRate is the audio sample rate in Hz.
	// Default: 16000
	SampleRate int `yaml:"sample_rate" json:"sample_rate"`

	// Channels is the number of audio channels.
	// Default: 1 (mono)
	Channels int `yaml:"channels" json:"channels"`

	// FrameDurationMs is the duration of one capture or playback frame.
	// Default: 40
	FrameDurationMs int `yaml:"frame_duration_ms" json:"frame_duration_ms"`

	// AudioCacheSize bounds the recording queue.
	// Default: 750 frames (30s at 40ms)
	AudioCacheSize int `yaml:"audio_cache_size" json:"audio_cache_size"`

	// DecodeFrameSize is the decoder frame size in samples per channel.
	// Default: 960
	DecodeFrameSize int `yaml:"decode_frame_size" json:"decode_frame_size"`

	// InputDevice and OutputDevice name a device; empty means system default.
	InputDevice  string `yaml:"input_device" json:"input_device"`
	OutputDevice string `yaml:"output_device" json:"output_device"`
}

// DefaultConfig returns a Config with the device defaults.
func DefaultConfig() Config {
	return Config{
		Backend:         BackendAuto,
		SampleRate:      DefaultSampleRate,
		Channels:        DefaultChannels,
		FrameDurationMs: DefaultFrameDurationMs,
		AudioCacheSize:  DefaultAudioCacheSize,
		DecodeFrameSize: DecodeFrameSize,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("%w: sample_rate must be positive, got %d", ErrInvalidParameter, c.SampleRate)
	}
	if c.Channels <= 0 || c.Channels > 2 {
		return fmt.Errorf("%w: channels must be 1 or 2, got %d", ErrInvalidParameter, c.Channels)
	}
	if c.FrameDurationMs <= 0 {
		return fmt.Errorf("%w: frame_duration_ms must be positive, got %d", ErrInvalidParameter, c.FrameDurationMs)
	}
	if c.AudioCacheSize <= 0 {
		return fmt.Errorf("%w: audio_cache_size must be positive, got %d", ErrInvalidParameter, c.AudioCacheSize)
	}
	if c.DecodeFrameSize <= 0 {
		return fmt.Errorf("%w: decode_frame_size must be positive, got %d", ErrInvalidParameter, c.DecodeFrameSize)
	}
	switch c.Backend {
	case "", BackendAuto, BackendPortAudio, BackendMock:
	default:
		return fmt.Errorf("%w: unsupported backend %q", ErrInvalidParameter, c.Backend)
	}
	return nil
}

// FramesPerBuffer returns the per-channel sample count of one frame.
func (c *Config) FramesPerBuffer() int {
	return c.SampleRate / 1000 * c.FrameDurationMs
}

// FrameSize returns the interleaved sample count of one frame.
func (c *Config) FrameSize() int {
	return c.FramesPerBuffer() * c.Channels
}

// Mode is the consumer of the audio streams.
type Mode int

const (
	// ModeNone disables streaming. Streams cannot start in this mode.
	ModeNone Mode = iota
	// ModeAI routes audio to the cloud dialogue backend.
	ModeAI
	// ModeWebRTC routes audio to a WebRTC peer.
	ModeWebRTC
)

// String returns a human-readable mode.
func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeAI:
		return "ai"
	case ModeWebRTC:
		return "webrtc"
	default:
		return "unknown"
	}
}
