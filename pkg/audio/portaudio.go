//go:build !noportaudio

package audio

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudioDriver drives the audio hardware through PortAudio.
type PortAudioDriver struct {
	logger *slog.Logger

	mu          sync.Mutex
	initialized bool
}

// NewPortAudioDriver creates a PortAudio driver.
func NewPortAudioDriver(logger *slog.Logger) *PortAudioDriver {
	if logger == nil {
		logger = slog.Default()
	}
	return &PortAudioDriver{logger: logger.With("component", "portaudio")}
}

// Initialize initializes PortAudio. Extra calls are no-ops.
func (d *PortAudioDriver) Initialize() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.initialized {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio initialize: %w", err)
	}
	d.initialized = true
	d.logger.Info("portaudio initialized", "version", portaudio.VersionText())
	return nil
}

// Terminate terminates PortAudio. Extra calls are no-ops.
func (d *PortAudioDriver) Terminate() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.initialized {
		return nil
	}
	d.initialized = false
	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("portaudio terminate: %w", err)
	}
	return nil
}

// HasInputDevice reports whether the named (or default) input device exists.
func (d *PortAudioDriver) HasInputDevice(device string) bool {
	dev, err := d.findDevice(device, true)
	return err == nil && dev != nil
}

// HasOutputDevice reports whether the named (or default) output device exists.
func (d *PortAudioDriver) HasOutputDevice(device string) bool {
	dev, err := d.findDevice(device, false)
	return err == nil && dev != nil
}

func (d *PortAudioDriver) findDevice(name string, input bool) (*portaudio.DeviceInfo, error) {
	if name == "" {
		if input {
			return portaudio.DefaultInputDevice()
		}
		return portaudio.DefaultOutputDevice()
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	for _, dev := range devices {
		if dev.Name != name {
			continue
		}
		if input && dev.MaxInputChannels > 0 {
			return dev, nil
		}
		if !input && dev.MaxOutputChannels > 0 {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("device %q not found", name)
}

// OpenInput opens a PCM16 capture stream.
func (d *PortAudioDriver) OpenInput(p StreamParams, fn CaptureFunc) (Stream, error) {
	dev, err := d.findDevice(p.Device, true)
	if err != nil {
		return nil, err
	}

	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = p.Channels
	params.SampleRate = float64(p.SampleRate)
	params.FramesPerBuffer = p.FramesPerBuffer
	params.Flags = portaudio.ClipOff

	s, err := portaudio.OpenStream(params, func(in []int16) { fn(in) })
	if err != nil {
		return nil, fmt.Errorf("portaudio open input: %w", err)
	}
	d.logger.Debug("input stream opened", "device", dev.Name, "frames_per_buffer", p.FramesPerBuffer)
	return s, nil
}

// OpenOutput opens a PCM16 playback stream.
func (d *PortAudioDriver) OpenOutput(p StreamParams, fn RenderFunc) (Stream, error) {
	dev, err := d.findDevice(p.Device, false)
	if err != nil {
		return nil, err
	}

	params := portaudio.LowLatencyParameters(nil, dev)
	params.Output.Channels = p.Channels
	params.SampleRate = float64(p.SampleRate)
	params.FramesPerBuffer = p.FramesPerBuffer
	params.Flags = portaudio.ClipOff

	s, err := portaudio.OpenStream(params, func(out []int16) { fn(out) })
	if err != nil {
		return nil, fmt.Errorf("portaudio open output: %w", err)
	}
	d.logger.Debug("output stream opened", "device", dev.Name, "frames_per_buffer", p.FramesPerBuffer)
	return s, nil
}

// Name returns "portaudio".
func (d *PortAudioDriver) Name() string {
	return "portaudio"
}

func portAudioAvailable() bool { return true }

// Ensure PortAudioDriver implements Driver.
var _ Driver = (*PortAudioDriver)(nil)
