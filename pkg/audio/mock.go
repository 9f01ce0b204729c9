package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// MockDriver is a synthetic audio driver for testing.
//
// By default streams are manual: tests push microphone frames with
// MockStream.Capture and pull speaker output with MockStream.Render. With
// WithRealtime the streams run on tickers and generate silence or a sine wave.
type MockDriver struct {
	logger *slog.Logger

	// Error injection. Set before use.
	InitializeErr error
	OpenErr       error
	StartErr      error
	StopErr       error
	CloseErr      error

	// NoInputDevice and NoOutputDevice simulate missing hardware.
	NoInputDevice  bool
	NoOutputDevice bool

	realtime  bool
	frequency float64 // Hz, 0 = silence
	amplitude float64 // 0.0 to 1.0

	mu          sync.Mutex
	initialized bool
	input       *MockStream
	output      *MockStream
	played      []int16

	initCalls      atomic.Int64
	terminateCalls atomic.Int64
}

// MockDriverOption configures a MockDriver.
type MockDriverOption func(*MockDriver)

// WithSineWave makes generated microphone frames carry a sine tone.
func WithSineWave(frequency, amplitude float64) MockDriverOption {
	return func(d *MockDriver) {
		d.frequency = frequency
		d.amplitude = amplitude
	}
}

// WithRealtime runs started streams on tickers at the frame rate.
func WithRealtime() MockDriverOption {
	return func(d *MockDriver) {
		d.realtime = true
	}
}

// WithMockLogger sets the logger.
func WithMockLogger(logger *slog.Logger) MockDriverOption {
	return func(d *MockDriver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewMockDriver creates a mock driver.
func NewMockDriver(opts ...MockDriverOption) *MockDriver {
	d := &MockDriver{
		logger:    slog.Default(),
		amplitude: 0.5,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Initialize marks the driver initialized.
func (d *MockDriver) Initialize() error {
	d.initCalls.Add(1)
	if d.InitializeErr != nil {
		return d.InitializeErr
	}
	d.mu.Lock()
	d.initialized = true
	d.mu.Unlock()
	return nil
}

// Terminate marks the driver terminated. It fails if the driver is not
// initialized, so double releases show up in tests.
func (d *MockDriver) Terminate() error {
	d.terminateCalls.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return errors.New("mock: terminate without initialize")
	}
	d.initialized = false
	return nil
}

// HasInputDevice reports !NoInputDevice.
func (d *MockDriver) HasInputDevice(string) bool { return !d.NoInputDevice }

// HasOutputDevice reports !NoOutputDevice.
func (d *MockDriver) HasOutputDevice(string) bool { return !d.NoOutputDevice }

// OpenInput opens a mock capture stream.
func (d *MockDriver) OpenInput(p StreamParams, fn CaptureFunc) (Stream, error) {
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	s := d.newStream(p)
	s.capture = fn
	d.mu.Lock()
	d.input = s
	d.mu.Unlock()
	return s, nil
}

// OpenOutput opens a mock playback stream.
func (d *MockDriver) OpenOutput(p StreamParams, fn RenderFunc) (Stream, error) {
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	s := d.newStream(p)
	s.render = fn
	d.mu.Lock()
	d.output = s
	d.mu.Unlock()
	return s, nil
}

func (d *MockDriver) newStream(p StreamParams) *MockStream {
	return &MockStream{
		driver: d,
		params: p,
		buf:    make([]int16, p.FramesPerBuffer*p.Channels),
	}
}

// Name returns "mock".
func (d *MockDriver) Name() string {
	return "mock"
}

// Initialized reports whether Initialize succeeded without a later Terminate.
func (d *MockDriver) Initialized() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.initialized
}

// InitCalls returns the number of Initialize calls.
func (d *MockDriver) InitCalls() int64 { return d.initCalls.Load() }

// TerminateCalls returns the number of Terminate calls.
func (d *MockDriver) TerminateCalls() int64 { return d.terminateCalls.Load() }

// Input returns the most recently opened capture stream.
func (d *MockDriver) Input() *MockStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.input
}

// Output returns the most recently opened playback stream.
func (d *MockDriver) Output() *MockStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.output
}

// Played returns everything rendered to the speaker so far.
func (d *MockDriver) Played() []int16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int16(nil), d.played...)
}

func (d *MockDriver) appendPlayed(samples []int16) {
	d.mu.Lock()
	d.played = append(d.played, samples...)
	d.mu.Unlock()
}

// Ensure MockDriver implements Driver.
var _ Driver = (*MockDriver)(nil)

// MockStream is a stream opened by MockDriver.
type MockStream struct {
	driver  *MockDriver
	params  StreamParams
	capture CaptureFunc
	render  RenderFunc

	// cbMu serializes callbacks like a real driver thread.
	cbMu  sync.Mutex
	buf   []int16
	phase float64

	mu      sync.Mutex
	running bool
	closed  bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// Params returns the parameters the stream was opened with.
func (s *MockStream) Params() StreamParams {
	return s.params
}

// Start starts the stream.
func (s *MockStream) Start() error {
	if s.driver.StartErr != nil {
		return s.driver.StartErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("mock: stream closed")
	}
	if s.running {
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})

	if s.driver.realtime {
		s.wg.Add(1)
		go s.tickLoop(s.stopCh)
	}
	return nil
}

func (s *MockStream) tickLoop(stopCh chan struct{}) {
	defer s.wg.Done()

	period := time.Duration(s.params.FramesPerBuffer) * time.Second / time.Duration(s.params.SampleRate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if s.capture != nil {
				s.Generate()
			}
			if s.render != nil {
				s.Render()
			}
		}
	}
}

// Stop stops the stream and waits for the ticker goroutine.
func (s *MockStream) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	return s.driver.StopErr
}

// Close closes the stream.
func (s *MockStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("mock: stream already closed")
	}
	s.closed = true
	return s.driver.CloseErr
}

// Running reports whether the stream is started.
func (s *MockStream) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Closed reports whether the stream is closed.
func (s *MockStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Capture delivers frame to the capture callback. It reports false if the
// stream is not a running capture stream.
func (s *MockStream) Capture(frame []int16) bool {
	if s.capture == nil || !s.Running() {
		return false
	}
	s.cbMu.Lock()
	s.capture(frame)
	s.cbMu.Unlock()
	return true
}

// Generate delivers one synthetic frame to the capture callback.
func (s *MockStream) Generate() bool {
	s.cbMu.Lock()
	if s.driver.frequency > 0 {
		s.phase = SineWave(s.buf, s.params.Channels, s.params.SampleRate,
			s.driver.frequency, s.driver.amplitude, s.phase)
	} else {
		clear(s.buf)
	}
	frame := s.buf
	s.cbMu.Unlock()
	return s.Capture(frame)
}

// Render pulls one buffer from the render callback and records it in the
// driver's played output. It returns nil if the stream is not a running
// playback stream.
func (s *MockStream) Render() []int16 {
	if s.render == nil || !s.Running() {
		return nil
	}
	out := make([]int16, s.params.FramesPerBuffer*s.params.Channels)
	s.cbMu.Lock()
	s.render(out)
	s.cbMu.Unlock()
	s.driver.appendPlayed(out)
	return out
}

// MockCodec is a lossless stand-in for Opus. Encode writes PCM16
// little-endian bytes; Decode reverses it.
type MockCodec struct {
	Channels int

	// EncodeFunc and DecodeFunc override the default behaviour when set.
	EncodeFunc func(pcm []int16, out []byte) (int, error)
	DecodeFunc func(data []byte, pcm []int16) (int, error)

	closed atomic.Bool
}

// NewMockCodecFactory returns a CodecFactory producing MockCodecs. Created
// codecs are also sent to created, when non-nil.
func NewMockCodecFactory(created func(*MockCodec)) CodecFactory {
	return func(sampleRate, channels int) (Codec, error) {
		c := &MockCodec{Channels: channels}
		if created != nil {
			created(c)
		}
		return c, nil
	}
}

// Encode implements Codec.
func (c *MockCodec) Encode(pcm []int16, out []byte) (int, error) {
	if c.EncodeFunc != nil {
		return c.EncodeFunc(pcm, out)
	}
	if len(pcm)*2 > len(out) {
		return 0, fmt.Errorf("mock: output too small: %d bytes for %d samples", len(out), len(pcm))
	}
	return len(AppendSamples(out[:0], pcm)), nil
}

// Decode implements Codec.
func (c *MockCodec) Decode(data []byte, pcm []int16) (int, error) {
	if c.DecodeFunc != nil {
		return c.DecodeFunc(data, pcm)
	}
	if len(data)%2 != 0 {
		return 0, fmt.Errorf("mock: odd packet length %d", len(data))
	}
	n := copy(pcm, BytesToSamples(data))
	ch := max(c.Channels, 1)
	return n / ch, nil
}

// Close implements Codec.
func (c *MockCodec) Close() error {
	if c.closed.Swap(true) {
		return errors.New("mock: codec already closed")
	}
	return nil
}

// Closed reports whether Close was called.
func (c *MockCodec) Closed() bool {
	return c.closed.Load()
}

// Ensure MockCodec implements Codec.
var _ Codec = (*MockCodec)(nil)
