package rtcbridge

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/pion/webrtc/v3/pkg/media"

	"github.com/teslashibe/go-glasses/pkg/audio"
)

func TestLoopback(t *testing.T) {
	lb := NewLoopback(4)
	payloads := [][]byte{{1, 2, 3}, {4, 5, 6, 7}}
	for _, p := range payloads {
		if err := lb.WriteSample(media.Sample{Data: p, Duration: 10 * time.Millisecond}); err != nil {
			t.Fatalf("WriteSample failed: %v", err)
		}
	}

	first, err := lb.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket failed: %v", err)
	}
	second, err := lb.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket failed: %v", err)
	}

	if !bytes.Equal(first.Payload, payloads[0]) || !bytes.Equal(second.Payload, payloads[1]) {
		t.Errorf("payloads = %v, %v", first.Payload, second.Payload)
	}
	if first.PayloadType != OpusPayloadType {
		t.Errorf("PayloadType = %d, want %d", first.PayloadType, OpusPayloadType)
	}
	if got := second.SequenceNumber - first.SequenceNumber; got != 1 {
		t.Errorf("sequence delta = %d, want 1", got)
	}
	// 10ms at 48kHz
	if got := second.Timestamp - first.Timestamp; got != 480 {
		t.Errorf("timestamp delta = %d, want 480", got)
	}
	if first.SSRC != second.SSRC {
		t.Errorf("SSRC changed: %d then %d", first.SSRC, second.SSRC)
	}

	lb.Close()
	lb.Close()
	if _, err := lb.ReadPacket(); !errors.Is(err, io.EOF) {
		t.Errorf("ReadPacket after Close = %v, want io.EOF", err)
	}
	if err := lb.WriteSample(media.Sample{Data: []byte{1}, Duration: time.Millisecond}); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("WriteSample after Close = %v, want io.ErrClosedPipe", err)
	}
}

func TestRunLoopback(t *testing.T) {
	ae, drv := newTestAudio(t)
	if err := ae.SetMode(audio.ModeAI); err != nil {
		t.Fatalf("SetMode failed: %v", err)
	}
	b, err := New(ae)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	lb := NewLoopback(16)
	done := make(chan error, 1)
	go func() { done <- b.Run(context.Background(), lb, lb) }()

	waitFor := func(desc string, cond func() bool) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for !cond() {
			if time.Now().After(deadline) {
				t.Fatalf("timed out waiting for %s", desc)
			}
			time.Sleep(time.Millisecond)
		}
	}
	waitFor("streams", func() bool { return ae.IsRecording() && ae.IsPlaying() })

	if got := ae.Mode(); got != audio.ModeWebRTC {
		t.Errorf("Mode = %s, want %s", got, audio.ModeWebRTC)
	}

	frame := make([]int16, ae.Config().FrameSize())
	for i := range frame {
		frame[i] = int16(i)
	}
	for i := 0; i < 3; i++ {
		if !drv.Input().Capture(frame) {
			t.Fatal("capture stream not running")
		}
	}
	waitFor("playback queue", func() bool { return ae.Stats().PlaybackQueueLen == 3 })

	lb.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the loopback closed")
	}

	if ae.IsRecording() || ae.IsPlaying() {
		t.Error("streams should be stopped after Run")
	}
	stats := b.Stats()
	if stats.SamplesWritten != 3 || stats.PacketsRead != 3 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestRunCancel(t *testing.T) {
	ae, _ := newTestAudio(t)
	b, _ := New(ae)

	ctx, cancel := context.WithCancel(context.Background())
	lb := NewLoopback(1)
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx, lb, lb) }()

	deadline := time.Now().Add(2 * time.Second)
	for !ae.IsPlaying() {
		if time.Now().After(deadline) {
			t.Fatal("playback not started")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if ae.IsRecording() {
		t.Error("recording should be stopped")
	}
}

func TestRunStartFailure(t *testing.T) {
	ae, drv := newTestAudio(t)
	b, _ := New(ae)
	drv.NoOutputDevice = true

	err := b.Run(context.Background(), &fakeWriter{}, &fakeReader{err: io.EOF})
	if !errors.Is(err, audio.ErrDeviceNotFound) {
		t.Fatalf("Run returned %v, want ErrDeviceNotFound", err)
	}
	if ae.IsRecording() {
		t.Error("recording should be rolled back when playback fails")
	}
}
