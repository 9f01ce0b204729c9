// Package rtcbridge carries dialogue audio over WebRTC media instead of
// framed WebSocket binary messages. Uplink frames become Opus samples on a
// local track; downlink RTP packets are decoded into the playback queue.
// Signaling is left to the caller.
package rtcbridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"

	"github.com/teslashibe/go-glasses/pkg/audio"
)

// OpusClockRate is the RTP clock rate for Opus.
const OpusClockRate = 48000

// ErrNilAudio is returned by New without an audio engine.
var ErrNilAudio = errors.New("rtcbridge: audio engine is required")

// SampleWriter accepts encoded media samples. *webrtc.TrackLocalStaticSample
// satisfies it.
type SampleWriter interface {
	WriteSample(s media.Sample) error
}

// PacketReader yields RTP packets. Use FromTrack to adapt a
// *webrtc.TrackRemote.
type PacketReader interface {
	ReadPacket() (*rtp.Packet, error)
}

type remoteTrack struct {
	track *webrtc.TrackRemote
}

func (r remoteTrack) ReadPacket() (*rtp.Packet, error) {
	pkt, _, err := r.track.ReadRTP()
	return pkt, err
}

// FromTrack adapts a remote track to a PacketReader.
func FromTrack(track *webrtc.TrackRemote) PacketReader {
	return remoteTrack{track: track}
}

// NewLocalTrack builds an Opus track for the uplink.
func NewLocalTrack(id, streamID string) (*webrtc.TrackLocalStaticSample, error) {
	return webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: OpusClockRate,
		Channels:  1,
	}, id, streamID)
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// Stats contains bridge counters.
type Stats struct {
	SamplesWritten int64 `json:"samples_written"`
	PacketsRead    int64 `json:"packets_read"`
	EncodeErrors   int64 `json:"encode_errors"`
	DecodeErrors   int64 `json:"decode_errors"`
	WriteErrors    int64 `json:"write_errors"`
}

// Bridge moves audio between an audio.Engine and WebRTC media.
type Bridge struct {
	audio    *audio.Engine
	logger   *slog.Logger
	duration time.Duration

	samplesWritten atomic.Int64
	packetsRead    atomic.Int64
	encodeErrors   atomic.Int64
	decodeErrors   atomic.Int64
	writeErrors    atomic.Int64
}

// New creates a bridge over ae.
func New(ae *audio.Engine, opts ...Option) (*Bridge, error) {
	if ae == nil {
		return nil, ErrNilAudio
	}
	b := &Bridge{
		audio:    ae,
		logger:   slog.Default(),
		duration: time.Duration(ae.Config().FrameDurationMs) * time.Millisecond,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "rtcbridge")
	return b, nil
}

// Run switches the audio engine to WebRTC mode, starts both streams and
// bridges them to w and r. It returns when r ends or ctx is done; a reader
// that implements io.Closer is closed once the uplink stops. Both streams
// are stopped on return.
func (b *Bridge) Run(ctx context.Context, w SampleWriter, r PacketReader) error {
	if err := b.audio.SetMode(audio.ModeWebRTC); err != nil {
		return fmt.Errorf("rtcbridge: set mode: %w", err)
	}
	if err := b.audio.StartRecording(); err != nil {
		return fmt.Errorf("rtcbridge: start recording: %w", err)
	}
	if err := b.audio.StartPlayback(); err != nil {
		b.audio.StopRecording()
		return fmt.Errorf("rtcbridge: start playback: %w", err)
	}
	b.logger.Info("bridge started")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg      sync.WaitGroup
		upErr   error
		downErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		upErr = b.RunUplink(runCtx, w)
		if c, ok := r.(io.Closer); ok {
			c.Close()
		}
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		downErr = b.RunDownlink(runCtx, r)
	}()
	wg.Wait()

	errs := []error{quiet(upErr), quiet(downErr)}
	if err := b.audio.StopRecording(); err != nil && !audio.IsModeConflict(err) {
		errs = append(errs, err)
	}
	if err := b.audio.StopPlayback(); err != nil && !audio.IsModeConflict(err) {
		errs = append(errs, err)
	}
	b.logger.Info("bridge stopped", "samples", b.samplesWritten.Load(), "packets", b.packetsRead.Load())
	return errors.Join(errs...)
}

// quiet drops the cancellation that ends a bridge normally.
func quiet(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// RunUplink encodes recorded frames and writes them as samples until
// recording stops or ctx is done. Start recording first. Write failures are
// counted and skipped.
func (b *Bridge) RunUplink(ctx context.Context, w SampleWriter) error {
	buf := make([]byte, audio.MaxEncodeBufferSize)

	for {
		pcm, ok := b.audio.GetRecordedAudio(ctx)
		if !ok {
			return ctx.Err()
		}

		n, err := b.audio.EncodeOpus(pcm, buf)
		if err != nil {
			b.encodeErrors.Add(1)
			b.logger.Debug("encode", "error", err)
			continue
		}

		// WriteSample keeps the slice until packetized; hand it its own copy
		data := make([]byte, n)
		copy(data, buf[:n])
		if err := w.WriteSample(media.Sample{Data: data, Duration: b.duration}); err != nil {
			b.writeErrors.Add(1)
			b.logger.Debug("write sample", "error", err)
			continue
		}
		b.samplesWritten.Add(1)
	}
}

// RunDownlink decodes RTP payloads into the playback queue until the reader
// ends or ctx is done. io.EOF ends cleanly.
func (b *Bridge) RunDownlink(ctx context.Context, r PacketReader) error {
	cfg := b.audio.Config()
	pcm := make([]int16, cfg.DecodeFrameSize*cfg.Channels)

	for ctx.Err() == nil {
		pkt, err := r.ReadPacket()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("rtcbridge: read packet: %w", err)
		}
		b.packetsRead.Add(1)
		if len(pkt.Payload) == 0 {
			continue
		}

		n, err := b.audio.DecodeOpus(pkt.Payload, pcm)
		if err != nil {
			b.decodeErrors.Add(1)
			b.logger.Debug("decode", "error", err, "seq", pkt.SequenceNumber)
			continue
		}
		b.audio.AddFrameToPlaybackQueue(pcm[:n])
	}
	return ctx.Err()
}

// Stats returns bridge counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		SamplesWritten: b.samplesWritten.Load(),
		PacketsRead:    b.packetsRead.Load(),
		EncodeErrors:   b.encodeErrors.Load(),
		DecodeErrors:   b.decodeErrors.Load(),
		WriteErrors:    b.writeErrors.Load(),
	}
}
