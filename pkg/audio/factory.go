package audio

import (
	"fmt"
	"log/slog"
)

// NewDriver creates the driver selected by cfg.Backend.
// BackendAuto selects PortAudio unless built with the noportaudio tag.
func NewDriver(cfg Config, logger *slog.Logger) (Driver, error) {
	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == "" || backend == BackendAuto {
		backend = detectBestBackend()
	}

	logger.Info("creating audio driver",
		"backend", backend,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"frame_ms", cfg.FrameDurationMs,
	)

	switch backend {
	case BackendMock:
		return NewMockDriver(WithRealtime(), WithMockLogger(logger)), nil
	case BackendPortAudio:
		return NewPortAudioDriver(logger), nil
	default:
		return nil, fmt.Errorf("%w: unsupported backend %q", ErrInvalidParameter, backend)
	}
}

// detectBestBackend returns the best available backend for this build.
func detectBestBackend() Backend {
	if portAudioAvailable() {
		return BackendPortAudio
	}
	return BackendMock
}
