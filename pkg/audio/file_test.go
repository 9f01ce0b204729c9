package audio

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestSaveRecordingAndLoadFrames(t *testing.T) {
	e, drv := newTestEngine(t, testConfig())
	e.SetMode(ModeAI)
	e.StartRecording()

	in := drv.Input()
	for i := 1; i <= 3; i++ {
		in.Capture(frameOf(160, int16(i)))
	}

	var buf bytes.Buffer
	n, err := e.SaveRecording(&buf)
	if err != nil {
		t.Fatalf("SaveRecording() error: %v", err)
	}
	if n != 3*160*2 {
		t.Errorf("SaveRecording() = %d bytes, want %d", n, 3*160*2)
	}
	if e.Stats().RecordQueueLen != 3 {
		t.Error("SaveRecording should not drain the queue")
	}

	frames, err := LoadFrames(&buf, 160)
	if err != nil {
		t.Fatalf("LoadFrames() error: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("LoadFrames() = %d frames, want 3", len(frames))
	}
	for i, f := range frames {
		if f[0] != int16(i+1) || f[159] != int16(i+1) {
			t.Errorf("frame %d = %d..%d, want %d", i, f[0], f[159], i+1)
		}
	}

	// The loaded frames drive playback unchanged.
	e.StartPlayback()
	for _, f := range frames {
		e.AddFrameToPlaybackQueue(f)
	}
	for i := range frames {
		out := drv.Output().Render()
		if out[0] != int16(i+1) {
			t.Errorf("played frame %d = %d, want %d", i, out[0], i+1)
		}
	}

	f, ok := e.GetRecordedAudio(context.Background())
	if !ok || f[0] != 1 {
		t.Error("recorded queue should still hold the first frame")
	}
}

func TestLoadFramesPadsTail(t *testing.T) {
	data := SamplesToBytes([]int16{1, 2, 3, 4, 5})
	frames, err := LoadFrames(bytes.NewReader(data), 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 3 {
		t.Fatalf("len(frames) = %d, want 3", len(frames))
	}
	if last := frames[2]; last[0] != 5 || last[1] != 0 {
		t.Errorf("last frame = %v, want [5 0]", last)
	}
}

func TestLoadFramesInvalidSize(t *testing.T) {
	_, err := LoadFrames(bytes.NewReader(nil), 0)
	if !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("LoadFrames(size 0) error = %v, want ErrInvalidParameter", err)
	}
}
