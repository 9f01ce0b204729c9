//go:build noportaudio

package audio

import (
	"errors"
	"log/slog"
)

// errPortAudioUnavailable is returned when built with the noportaudio tag.
var errPortAudioUnavailable = errors.New("audio: portaudio not compiled in (built with noportaudio)")

// PortAudioDriver is unavailable in this build.
type PortAudioDriver struct{}

// NewPortAudioDriver returns a driver whose methods all fail.
func NewPortAudioDriver(logger *slog.Logger) *PortAudioDriver {
	return &PortAudioDriver{}
}

func (d *PortAudioDriver) Initialize() error { return errPortAudioUnavailable }
func (d *PortAudioDriver) Terminate() error { return nil }
func (d *PortAudioDriver) HasInputDevice(device string) bool { return false }
func (d *PortAudioDriver) HasOutputDevice(device string) bool { return false }
func (d *PortAudioDriver) Name() string { return "portaudio" }

func (d *PortAudioDriver) OpenInput(p StreamParams, fn CaptureFunc) (Stream, error) {
	return nil, errPortAudioUnavailable
}

func (d *PortAudioDriver) OpenOutput(p StreamParams, fn RenderFunc) (Stream, error) {
	return nil, errPortAudioUnavailable
}

func portAudioAvailable() bool { return false }
