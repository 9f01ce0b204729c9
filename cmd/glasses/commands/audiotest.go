package commands

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-glasses/pkg/audio"
	"github.com/teslashibe/go-glasses/pkg/rtcbridge"
)

var (
	audioTestDuration time.Duration
	audioTestOutput   string
	audioTestOpus     bool
	audioTestWebRTC   bool
)

var audioTestCmd = &cobra.Command{
	Use:   "audio-test",
	Short: "Record from the microphone, save it, and play it back",
	Long: `Record for --duration, write the recording to --output as raw
PCM16 little-endian, then load it back and play it through the speaker.

With --opus every frame is encoded and decoded before playback, which
exercises the codec the dialogue uses.

With --webrtc the microphone is instead routed for --duration through an
in-process RTP loopback to the speaker, the path a WebRTC call takes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return runAudioTest(ctx, cfg.Audio, logger)
	},
}

func init() {
	audioTestCmd.Flags().DurationVarP(&audioTestDuration, "duration", "d", 3*time.Second, "recording length")
	audioTestCmd.Flags().StringVarP(&audioTestOutput, "output", "o", "recording.pcm", "recording file")
	audioTestCmd.Flags().BoolVar(&audioTestOpus, "opus", false, "round-trip frames through the Opus codec")
	audioTestCmd.Flags().BoolVar(&audioTestWebRTC, "webrtc", false, "loop the microphone to the speaker over RTP")
	rootCmd.AddCommand(audioTestCmd)
}

func runAudioTest(ctx context.Context, cfg audio.Config, logger *slog.Logger) error {
	drv, err := audio.NewDriver(cfg, logger)
	if err != nil {
		return err
	}
	ae, err := audio.New(cfg, drv, audio.WithLogger(logger))
	if err != nil {
		return err
	}
	if err := ae.Init(); err != nil {
		return err
	}
	defer ae.Deinit()

	if audioTestWebRTC {
		return runWebRTCLoopback(ctx, ae, logger)
	}

	if err := ae.SetMode(audio.ModeAI); err != nil {
		return err
	}

	// Record
	logger.Info("recording", "duration", audioTestDuration, "backend", ae.Stats().Backend)
	if err := ae.StartRecording(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
	case <-time.After(audioTestDuration):
	}
	if err := ae.StopRecording(); err != nil {
		return err
	}

	// Save a snapshot, then load it back the way a stored prompt would be
	var rec bytes.Buffer
	n, err := ae.SaveRecording(&rec)
	if err != nil {
		return err
	}
	if err := os.WriteFile(audioTestOutput, rec.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", audioTestOutput, err)
	}
	ae.ClearRecordingQueue()

	f, err := os.Open(audioTestOutput)
	if err != nil {
		return err
	}
	frames, err := audio.LoadFrames(f, cfg.FrameSize())
	f.Close()
	if err != nil {
		return err
	}

	var peak float64
	for _, frame := range frames {
		peak = max(peak, audio.CalculateRMS(frame))
	}
	logger.Info("recording saved", "file", audioTestOutput, "bytes", n, "frames", len(frames), "peak_rms", fmt.Sprintf("%.3f", peak))
	if len(frames) == 0 || ctx.Err() != nil {
		return nil
	}

	// Play back
	if audioTestOpus {
		frames, err = opusRoundTrip(ae, frames, logger)
		if err != nil {
			return err
		}
	}
	for _, frame := range frames {
		ae.AddFrameToPlaybackQueue(frame)
	}
	if err := ae.StartPlayback(); err != nil {
		return err
	}
	defer ae.StopPlayback()

	logger.Info("playing back", "frames", len(frames))
	ticker := time.NewTicker(time.Duration(cfg.FrameDurationMs) * time.Millisecond)
	defer ticker.Stop()
	for ae.Stats().PlaybackQueueLen > 0 {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}

	st := ae.Stats()
	logger.Info("audio test complete",
		"captured", st.FramesCaptured,
		"rendered", st.CallbacksRendered,
		"underruns", st.Underruns,
	)
	return nil
}

func runWebRTCLoopback(ctx context.Context, ae *audio.Engine, logger *slog.Logger) error {
	b, err := rtcbridge.New(ae, rtcbridge.WithLogger(logger))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, audioTestDuration)
	defer cancel()
	lb := rtcbridge.NewLoopback(64)
	go func() {
		<-ctx.Done()
		lb.Close()
	}()

	logger.Info("webrtc loopback", "duration", audioTestDuration, "backend", ae.Stats().Backend)
	if err := b.Run(ctx, lb, lb); err != nil {
		return err
	}

	st := b.Stats()
	logger.Info("webrtc loopback complete",
		"samples", st.SamplesWritten,
		"packets", st.PacketsRead,
		"decode_errors", st.DecodeErrors,
		"underruns", ae.Stats().Underruns,
	)
	return nil
}

func opusRoundTrip(ae *audio.Engine, frames [][]int16, logger *slog.Logger) ([][]int16, error) {
	cfg := ae.Config()
	enc := make([]byte, audio.MaxEncodeBufferSize)
	out := make([][]int16, 0, len(frames))
	var encoded int

	for _, frame := range frames {
		n, err := ae.EncodeOpus(frame, enc)
		if err != nil {
			return nil, err
		}
		encoded += n

		pcm := make([]int16, cfg.DecodeFrameSize*cfg.Channels)
		m, err := ae.DecodeOpus(enc[:n], pcm)
		if err != nil {
			return nil, err
		}
		out = append(out, pcm[:m])
	}

	logger.Info("opus round trip", "frames", len(frames), "bytes", encoded,
		"ratio", fmt.Sprintf("%.1f", float64(len(frames)*cfg.FrameSize()*2)/float64(max(encoded, 1))))
	return out, nil
}
