package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Stats contains engine statistics.
type Stats struct {
	// FramesCaptured is the number of frames delivered by the microphone.
	FramesCaptured int64 `json:"frames_captured"`

	// FramesEvicted is the number of recorded frames dropped because the
	// recording queue was full.
	FramesEvicted int64 `json:"frames_evicted"`

	// CallbacksRendered is the number of speaker callbacks served.
	CallbacksRendered int64 `json:"callbacks_rendered"`

	// Underruns is the number of speaker callbacks served with silence.
	Underruns int64 `json:"underruns"`

	FramesEncoded int64 `json:"frames_encoded"`
	EncodeErrors  int64 `json:"encode_errors"`
	FramesDecoded int64 `json:"frames_decoded"`
	DecodeErrors  int64 `json:"decode_errors"`

	RecordQueueLen   int `json:"record_queue_len"`
	PlaybackQueueLen int `json:"playback_queue_len"`

	Recording bool   `json:"recording"`
	Playing   bool   `json:"playing"`
	Mode      string `json:"mode"`
	Backend   string `json:"backend"`
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

// WithCodecFactory replaces the Opus codec, typically with a mock in tests.
func WithCodecFactory(f CodecFactory) Option {
	return func(e *Engine) {
		if f != nil {
			e.newCodec = f
		}
	}
}

// Engine owns the audio hardware streams, the frame queues and the codec.
//
// Lock order: mu, then encMu, then decMu. The driver callbacks only take the
// queue locks.
type Engine struct {
	cfg      Config
	driver   Driver
	newCodec CodecFactory
	logger   *slog.Logger

	mu          sync.Mutex
	initialized bool
	mode        Mode
	input       Stream
	output      Stream
	recording   bool
	playing     bool

	// codec is written with mu, encMu and decMu held.
	encMu sync.Mutex
	decMu sync.Mutex
	codec Codec

	rec  *recordQueue
	play *playbackQueue

	// Stats
	framesCaptured    atomic.Int64
	framesEvicted     atomic.Int64
	callbacksRendered atomic.Int64
	underruns         atomic.Int64
	framesEncoded     atomic.Int64
	encodeErrors      atomic.Int64
	framesDecoded     atomic.Int64
	decodeErrors      atomic.Int64
}

// New creates an engine on top of driver. Call Init before use.
func New(cfg Config, driver Driver, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if driver == nil {
		return nil, fmt.Errorf("%w: driver is required", ErrInvalidParameter)
	}

	e := &Engine{
		cfg:      cfg,
		driver:   driver,
		newCodec: NewOpusCodec,
		logger:   slog.Default(),
		rec:      newRecordQueue(cfg.AudioCacheSize),
		play:     &playbackQueue{},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "audio", "backend", driver.Name())
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Init acquires the audio subsystem and creates the codec. On failure every
// partial allocation is released. Init on an initialized engine is a no-op.
func (e *Engine) Init() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized {
		return nil
	}

	if err := e.driver.Initialize(); err != nil {
		return opError("init", ErrInitialization, err)
	}

	codec, err := e.newCodec(e.cfg.SampleRate, e.cfg.Channels)
	if err != nil {
		if terr := e.driver.Terminate(); terr != nil {
			e.logger.Warn("driver terminate after failed init", "error", terr)
		}
		return opError("init", ErrInitialization, err)
	}

	e.encMu.Lock()
	e.decMu.Lock()
	e.codec = codec
	e.decMu.Unlock()
	e.encMu.Unlock()

	e.mode = ModeNone
	e.initialized = true

	e.logger.Info("audio engine initialized",
		"sample_rate", e.cfg.SampleRate,
		"channels", e.cfg.Channels,
		"frame_ms", e.cfg.FrameDurationMs,
	)
	return nil
}

// Deinit stops active streams, flushes both queues and releases the codec and
// the audio subsystem. It is safe to call more than once.
func (e *Engine) Deinit() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.initialized {
		return nil
	}

	var errs []error
	if e.recording {
		errs = append(errs, e.stopRecordingLocked())
	}
	if e.playing {
		errs = append(errs, e.stopPlaybackLocked())
	}
	e.rec.clear()
	e.play.clear()

	e.encMu.Lock()
	e.decMu.Lock()
	if e.codec != nil {
		errs = append(errs, e.codec.Close())
		e.codec = nil
	}
	e.decMu.Unlock()
	e.encMu.Unlock()

	if err := e.driver.Terminate(); err != nil {
		errs = append(errs, opError("deinit", ErrInitialization, err))
	}

	e.initialized = false
	e.mode = ModeNone

	e.logger.Info("audio engine deinitialized")
	return errors.Join(errs...)
}

// SetMode switches the stream consumer. Changing mode stops both streams and
// flushes both queues. Setting the current mode is a no-op.
func (e *Engine) SetMode(mode Mode) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if mode < ModeNone || mode > ModeWebRTC {
		return opError("set mode", ErrInvalidParameter, fmt.Errorf("mode %d", int(mode)))
	}
	if e.mode == mode {
		return nil
	}

	var errs []error
	if e.recording {
		errs = append(errs, e.stopRecordingLocked())
	}
	if e.playing {
		errs = append(errs, e.stopPlaybackLocked())
	}
	e.rec.clear()
	e.play.clear()

	e.logger.Info("audio mode changed", "from", e.mode, "to", mode)
	e.mode = mode
	return errors.Join(errs...)
}

// Mode returns the current mode.
func (e *Engine) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

func (e *Engine) streamParams(device string) StreamParams {
	return StreamParams{
		SampleRate:      e.cfg.SampleRate,
		Channels:        e.cfg.Channels,
		FramesPerBuffer: e.cfg.FramesPerBuffer(),
		Device:          device,
	}
}

// checkStartLocked validates a stream start against the engine state.
func (e *Engine) checkStartLocked(op string, active bool) error {
	if !e.initialized {
		return opError(op, ErrNotInitialized, nil)
	}
	if active {
		return opError(op, ErrModeConflict, errors.New("already active"))
	}
	if e.mode == ModeNone {
		return opError(op, ErrModeConflict, errors.New("no audio mode set"))
	}
	return nil
}

// StartRecording opens and starts the microphone stream.
func (e *Engine) StartRecording() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	const op = "start recording"
	if err := e.checkStartLocked(op, e.recording); err != nil {
		return err
	}
	if !e.driver.HasInputDevice(e.cfg.InputDevice) {
		return opError(op, ErrDeviceNotFound, nil)
	}

	s, err := e.driver.OpenInput(e.streamParams(e.cfg.InputDevice), e.capture)
	if err != nil {
		return opError(op, ErrStreamOpenFailed, err)
	}

	e.rec.setActive(true)
	if err := s.Start(); err != nil {
		e.rec.setActive(false)
		if cerr := s.Close(); cerr != nil {
			e.logger.Warn("close input after failed start", "error", cerr)
		}
		return opError(op, ErrStreamStartFailed, err)
	}

	e.input = s
	e.recording = true
	e.logger.Info("recording started")
	return nil
}

// StopRecording stops and closes the microphone stream. Pending
// GetRecordedAudio calls return once the queue drains.
func (e *Engine) StopRecording() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.recording {
		return opError("stop recording", ErrModeConflict, errors.New("not recording"))
	}
	return e.stopRecordingLocked()
}

func (e *Engine) stopRecordingLocked() error {
	s := e.input
	e.input = nil
	e.recording = false
	e.rec.setActive(false)
	e.logger.Info("recording stopped")
	return closeStream("stop recording", s)
}

// IsRecording reports whether the microphone stream is running.
func (e *Engine) IsRecording() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recording
}

// StartPlayback opens and starts the speaker stream.
func (e *Engine) StartPlayback() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	const op = "start playback"
	if err := e.checkStartLocked(op, e.playing); err != nil {
		return err
	}
	if !e.driver.HasOutputDevice(e.cfg.OutputDevice) {
		return opError(op, ErrDeviceNotFound, nil)
	}

	s, err := e.driver.OpenOutput(e.streamParams(e.cfg.OutputDevice), e.render)
	if err != nil {
		return opError(op, ErrStreamOpenFailed, err)
	}
	if err := s.Start(); err != nil {
		if cerr := s.Close(); cerr != nil {
			e.logger.Warn("close output after failed start", "error", cerr)
		}
		return opError(op, ErrStreamStartFailed, err)
	}

	e.output = s
	e.playing = true
	e.logger.Info("playback started")
	return nil
}

// StopPlayback stops and closes the speaker stream. Queued frames are kept.
func (e *Engine) StopPlayback() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.playing {
		return opError("stop playback", ErrModeConflict, errors.New("not playing"))
	}
	return e.stopPlaybackLocked()
}

func (e *Engine) stopPlaybackLocked() error {
	s := e.output
	e.output = nil
	e.playing = false
	e.logger.Info("playback stopped")
	return closeStream("stop playback", s)
}

// IsPlaying reports whether the speaker stream is running.
func (e *Engine) IsPlaying() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

// closeStream stops then closes s. The stream is always closed, even when
// Stop fails, and both failures are returned.
func closeStream(op string, s Stream) error {
	if s == nil {
		return nil
	}
	if err := s.Stop(); err != nil {
		stopErr := opError(op, ErrStreamStartFailed, err)
		if cerr := s.Close(); cerr != nil {
			return errors.Join(stopErr, opError(op, ErrStreamOpenFailed, cerr))
		}
		return stopErr
	}
	if err := s.Close(); err != nil {
		return opError(op, ErrStreamOpenFailed, err)
	}
	return nil
}

// capture is the microphone callback.
func (e *Engine) capture(in []int16) {
	if e.rec.push(in) {
		e.framesEvicted.Add(1)
	}
	e.framesCaptured.Add(1)
}

// render is the speaker callback.
func (e *Engine) render(out []int16) {
	if e.play.fill(out) {
		e.underruns.Add(1)
	}
	e.callbacksRendered.Add(1)
}

// GetRecordedAudio returns the oldest recorded frame. While the queue is
// empty and recording is active it blocks. It returns false once recording
// has stopped and the queue is drained, or when ctx is done.
func (e *Engine) GetRecordedAudio(ctx context.Context) ([]int16, bool) {
	return e.rec.pop(ctx)
}

// AddFrameToPlaybackQueue queues a copy of frame for the speaker. Frames
// shorter than the configured frame size are padded with trailing silence.
func (e *Engine) AddFrameToPlaybackQueue(frame []int16) {
	n := max(len(frame), e.cfg.FrameSize())
	buf := make([]int16, n)
	copy(buf, frame)
	e.play.push(buf)
}

// ClearPlaybackQueue drops every queued speaker frame.
func (e *Engine) ClearPlaybackQueue() {
	e.play.clear()
}

// ClearRecordingQueue drops every recorded frame.
func (e *Engine) ClearRecordingQueue() {
	e.rec.clear()
}

// EncodeOpus compresses one PCM frame into out, which must hold at least
// MaxEncodeBufferSize bytes. It returns the encoded length.
func (e *Engine) EncodeOpus(pcm []int16, out []byte) (int, error) {
	const op = "encode"
	if len(pcm) == 0 {
		return 0, opError(op, ErrEncodeFailed, errors.New("empty pcm frame"))
	}
	if len(out) < MaxEncodeBufferSize {
		return 0, opError(op, ErrInvalidParameter,
			fmt.Errorf("output buffer %d bytes, need %d", len(out), MaxEncodeBufferSize))
	}

	e.encMu.Lock()
	defer e.encMu.Unlock()

	if e.codec == nil {
		return 0, opError(op, ErrEncodeFailed, ErrNotInitialized)
	}
	n, err := e.codec.Encode(pcm, out[:MaxEncodeBufferSize])
	if err != nil {
		e.encodeErrors.Add(1)
		return 0, opError(op, ErrEncodeFailed, err)
	}
	e.framesEncoded.Add(1)
	return n, nil
}

// DecodeOpus decompresses one packet into pcm, which must hold at least
// DecodeFrameSize*Channels samples. It returns the interleaved sample count.
func (e *Engine) DecodeOpus(data []byte, pcm []int16) (int, error) {
	const op = "decode"
	need := e.cfg.DecodeFrameSize * e.cfg.Channels
	if len(pcm) < need {
		return 0, opError(op, ErrDecodeFailed,
			fmt.Errorf("output buffer %d samples, need %d", len(pcm), need))
	}
	if len(data) == 0 {
		return 0, opError(op, ErrDecodeFailed, errors.New("empty packet"))
	}

	e.decMu.Lock()
	defer e.decMu.Unlock()

	if e.codec == nil {
		return 0, opError(op, ErrDecodeFailed, ErrNotInitialized)
	}
	n, err := e.codec.Decode(data, pcm[:need])
	if err != nil {
		e.decodeErrors.Add(1)
		return 0, opError(op, ErrDecodeFailed, err)
	}
	e.framesDecoded.Add(1)
	return n * e.cfg.Channels, nil
}

// Stats returns engine statistics.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	recording, playing, mode := e.recording, e.playing, e.mode
	e.mu.Unlock()

	return Stats{
		FramesCaptured:    e.framesCaptured.Load(),
		FramesEvicted:     e.framesEvicted.Load(),
		CallbacksRendered: e.callbacksRendered.Load(),
		Underruns:         e.underruns.Load(),
		FramesEncoded:     e.framesEncoded.Load(),
		EncodeErrors:      e.encodeErrors.Load(),
		FramesDecoded:     e.framesDecoded.Load(),
		DecodeErrors:      e.decodeErrors.Load(),
		RecordQueueLen:    e.rec.len(),
		PlaybackQueueLen:  e.play.len(),
		Recording:         recording,
		Playing:           playing,
		Mode:              mode.String(),
		Backend:           e.driver.Name(),
	}
}
