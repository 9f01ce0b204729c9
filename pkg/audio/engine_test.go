package audio

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Backend = BackendMock
	cfg.FrameDurationMs = 10 // 160 samples at 16kHz
	return cfg
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *MockDriver) {
	t.Helper()
	drv := NewMockDriver()
	e, err := New(cfg, drv, WithCodecFactory(NewMockCodecFactory(nil)))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := e.Init(); err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	t.Cleanup(func() { e.Deinit() })
	return e, drv
}

func frameOf(n int, v int16) []int16 {
	f := make([]int16, n)
	for i := range f {
		f[i] = v
	}
	return f
}

func TestNewValidation(t *testing.T) {
	cfg := testConfig()
	cfg.SampleRate = 0
	if _, err := New(cfg, NewMockDriver()); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("New(bad config) error = %v, want ErrInvalidParameter", err)
	}
	if _, err := New(testConfig(), nil); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("New(nil driver) error = %v, want ErrInvalidParameter", err)
	}
}

func TestInitDeinit(t *testing.T) {
	drv := NewMockDriver()
	var codec *MockCodec
	e, err := New(testConfig(), drv, WithCodecFactory(NewMockCodecFactory(func(c *MockCodec) { codec = c })))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if err := e.Init(); err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	if !drv.Initialized() {
		t.Error("driver should be initialized")
	}
	if e.Mode() != ModeNone {
		t.Errorf("Mode() = %v, want none", e.Mode())
	}

	if err := e.Deinit(); err != nil {
		t.Fatalf("Deinit() error: %v", err)
	}
	if err := e.Deinit(); err != nil {
		t.Fatalf("second Deinit() error: %v", err)
	}
	if drv.TerminateCalls() != 1 {
		t.Errorf("TerminateCalls() = %d, want 1", drv.TerminateCalls())
	}
	if !codec.Closed() {
		t.Error("codec should be closed")
	}
}

func TestInitRollback(t *testing.T) {
	t.Run("driver failure", func(t *testing.T) {
		drv := NewMockDriver()
		drv.InitializeErr = errors.New("no audio")
		e, _ := New(testConfig(), drv, WithCodecFactory(NewMockCodecFactory(nil)))

		err := e.Init()
		if !errors.Is(err, ErrInitialization) {
			t.Errorf("Init() error = %v, want ErrInitialization", err)
		}
		if drv.TerminateCalls() != 0 {
			t.Errorf("TerminateCalls() = %d, want 0", drv.TerminateCalls())
		}
	})

	t.Run("codec failure", func(t *testing.T) {
		drv := NewMockDriver()
		e, _ := New(testConfig(), drv, WithCodecFactory(func(int, int) (Codec, error) {
			return nil, errors.New("bad codec")
		}))

		err := e.Init()
		if !errors.Is(err, ErrInitialization) {
			t.Errorf("Init() error = %v, want ErrInitialization", err)
		}
		if drv.Initialized() {
			t.Error("driver should be terminated after rollback")
		}
		if err := e.Deinit(); err != nil {
			t.Errorf("Deinit() after failed Init error: %v", err)
		}
	})
}

func TestStartInModeNone(t *testing.T) {
	e, _ := newTestEngine(t, testConfig())

	if err := e.StartRecording(); !IsModeConflict(err) {
		t.Errorf("StartRecording() error = %v, want ErrModeConflict", err)
	}
	if err := e.StartPlayback(); !IsModeConflict(err) {
		t.Errorf("StartPlayback() error = %v, want ErrModeConflict", err)
	}
}

func TestStartStopConflicts(t *testing.T) {
	e, _ := newTestEngine(t, testConfig())
	e.SetMode(ModeAI)

	if err := e.StopRecording(); !IsModeConflict(err) {
		t.Errorf("StopRecording() while idle error = %v, want ErrModeConflict", err)
	}
	if err := e.StopPlayback(); !IsModeConflict(err) {
		t.Errorf("StopPlayback() while idle error = %v, want ErrModeConflict", err)
	}

	if err := e.StartRecording(); err != nil {
		t.Fatalf("StartRecording() error: %v", err)
	}
	if err := e.StartRecording(); !IsModeConflict(err) {
		t.Errorf("second StartRecording() error = %v, want ErrModeConflict", err)
	}
	if err := e.StartPlayback(); err != nil {
		t.Fatalf("StartPlayback() error: %v", err)
	}
	if err := e.StartPlayback(); !IsModeConflict(err) {
		t.Errorf("second StartPlayback() error = %v, want ErrModeConflict", err)
	}

	if err := e.StopRecording(); err != nil {
		t.Errorf("StopRecording() error: %v", err)
	}
	if err := e.StopPlayback(); err != nil {
		t.Errorf("StopPlayback() error: %v", err)
	}
	if e.IsRecording() || e.IsPlaying() {
		t.Error("streams should be stopped")
	}
}

func TestStartNotInitialized(t *testing.T) {
	e, err := New(testConfig(), NewMockDriver(), WithCodecFactory(NewMockCodecFactory(nil)))
	if err != nil {
		t.Fatal(err)
	}
	if err := e.StartRecording(); !errors.Is(err, ErrInitialization) {
		t.Errorf("StartRecording() error = %v, want ErrInitialization", err)
	}
}

func TestStreamErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(d *MockDriver)
		want  error
	}{
		{"no input device", func(d *MockDriver) { d.NoInputDevice = true }, ErrDeviceNotFound},
		{"open fails", func(d *MockDriver) { d.OpenErr = errors.New("busy") }, ErrStreamOpenFailed},
		{"start fails", func(d *MockDriver) { d.StartErr = errors.New("xrun") }, ErrStreamStartFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, drv := newTestEngine(t, testConfig())
			e.SetMode(ModeAI)
			tt.setup(drv)

			err := e.StartRecording()
			if !errors.Is(err, tt.want) {
				t.Errorf("StartRecording() error = %v, want %v", err, tt.want)
			}
			if e.IsRecording() {
				t.Error("IsRecording() should be false after failure")
			}
			if s := drv.Input(); s != nil && !s.Closed() {
				t.Error("failed stream should be closed")
			}
		})
	}

	t.Run("no output device", func(t *testing.T) {
		e, drv := newTestEngine(t, testConfig())
		e.SetMode(ModeAI)
		drv.NoOutputDevice = true
		if err := e.StartPlayback(); !errors.Is(err, ErrDeviceNotFound) {
			t.Errorf("StartPlayback() error = %v, want ErrDeviceNotFound", err)
		}
	})
}

func TestStopStreamErrors(t *testing.T) {
	tests := []struct {
		name      string
		stopErr   error
		closeErr  error
		wantStop  bool
		wantClose bool
	}{
		{"stop fails", errors.New("xrun"), nil, true, false},
		{"close fails", nil, errors.New("device gone"), false, true},
		{"stop and close fail", errors.New("xrun"), errors.New("device gone"), true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, drv := newTestEngine(t, testConfig())
			e.SetMode(ModeAI)
			if err := e.StartRecording(); err != nil {
				t.Fatalf("StartRecording() error = %v", err)
			}
			drv.StopErr = tt.stopErr
			drv.CloseErr = tt.closeErr

			err := e.StopRecording()
			if got := errors.Is(err, ErrStreamStartFailed); got != tt.wantStop {
				t.Errorf("stop failure reported = %v, want %v (err %v)", got, tt.wantStop, err)
			}
			if got := errors.Is(err, ErrStreamOpenFailed); got != tt.wantClose {
				t.Errorf("close failure reported = %v, want %v (err %v)", got, tt.wantClose, err)
			}
			if tt.closeErr != nil && !errors.Is(err, tt.closeErr) {
				t.Errorf("error should wrap the close cause: %v", err)
			}
			if e.IsRecording() {
				t.Error("IsRecording() should be false after stop")
			}
			if !drv.Input().Closed() {
				t.Error("stream should be closed")
			}
		})
	}
}

func TestRecordingQueueEviction(t *testing.T) {
	e, drv := newTestEngine(t, testConfig())
	e.SetMode(ModeAI)
	if err := e.StartRecording(); err != nil {
		t.Fatal(err)
	}

	in := drv.Input()
	for i := 0; i < DefaultAudioCacheSize+1; i++ {
		in.Capture(frameOf(160, int16(i)))
	}

	stats := e.Stats()
	if stats.RecordQueueLen != DefaultAudioCacheSize {
		t.Fatalf("RecordQueueLen = %d, want %d", stats.RecordQueueLen, DefaultAudioCacheSize)
	}
	if stats.FramesEvicted != 1 {
		t.Errorf("FramesEvicted = %d, want 1", stats.FramesEvicted)
	}

	ctx := context.Background()
	for want := 1; want <= DefaultAudioCacheSize; want++ {
		f, ok := e.GetRecordedAudio(ctx)
		if !ok {
			t.Fatalf("GetRecordedAudio() #%d returned false", want)
		}
		if f[0] != int16(want) {
			t.Fatalf("frame #%d = %d, want %d", want, f[0], want)
		}
	}
}

func TestCaptureCopiesInput(t *testing.T) {
	e, drv := newTestEngine(t, testConfig())
	e.SetMode(ModeAI)
	e.StartRecording()

	buf := frameOf(160, 7)
	drv.Input().Capture(buf)
	buf[0] = 99

	f, _ := e.GetRecordedAudio(context.Background())
	if f[0] != 7 {
		t.Errorf("recorded frame aliases the driver buffer: got %d, want 7", f[0])
	}
}

func TestGetRecordedAudioBlocks(t *testing.T) {
	e, drv := newTestEngine(t, testConfig())
	e.SetMode(ModeAI)
	e.StartRecording()

	got := make(chan []int16, 1)
	go func() {
		f, ok := e.GetRecordedAudio(context.Background())
		if ok {
			got <- f
		}
		close(got)
	}()

	select {
	case <-got:
		t.Fatal("GetRecordedAudio() returned before a frame arrived")
	case <-time.After(20 * time.Millisecond):
	}

	drv.Input().Capture(frameOf(160, 3))

	select {
	case f := <-got:
		if len(f) != 160 || f[0] != 3 {
			t.Errorf("frame = len %d first %d, want len 160 first 3", len(f), f[0])
		}
	case <-time.After(time.Second):
		t.Fatal("GetRecordedAudio() did not wake up")
	}
}

func TestGetRecordedAudioEndOfStream(t *testing.T) {
	e, drv := newTestEngine(t, testConfig())
	e.SetMode(ModeAI)
	e.StartRecording()
	drv.Input().Capture(frameOf(160, 1))

	done := make(chan bool)
	e.StopRecording()
	go func() {
		_, ok1 := e.GetRecordedAudio(context.Background())
		_, ok2 := e.GetRecordedAudio(context.Background())
		done <- ok1 && !ok2
	}()

	select {
	case ok := <-done:
		if !ok {
			t.Error("want one queued frame then end of stream")
		}
	case <-time.After(time.Second):
		t.Fatal("GetRecordedAudio() blocked after StopRecording")
	}
}

func TestGetRecordedAudioWakesOnStop(t *testing.T) {
	e, _ := newTestEngine(t, testConfig())
	e.SetMode(ModeAI)
	e.StartRecording()

	done := make(chan bool)
	go func() {
		_, ok := e.GetRecordedAudio(context.Background())
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	e.StopRecording()

	select {
	case ok := <-done:
		if ok {
			t.Error("GetRecordedAudio() = true, want false at end of stream")
		}
	case <-time.After(time.Second):
		t.Fatal("waiter not released by StopRecording")
	}
}

func TestGetRecordedAudioContextCancel(t *testing.T) {
	e, _ := newTestEngine(t, testConfig())
	e.SetMode(ModeAI)
	e.StartRecording()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, ok := e.GetRecordedAudio(ctx); ok {
		t.Error("GetRecordedAudio() = true, want false on cancel")
	}
	if time.Since(start) > time.Second {
		t.Error("cancel took too long")
	}
}

func TestPlaybackSilenceWhenEmpty(t *testing.T) {
	e, drv := newTestEngine(t, testConfig())
	e.SetMode(ModeAI)
	e.StartPlayback()

	out := drv.Output().Render()
	if len(out) != 160 {
		t.Fatalf("len(out) = %d, want 160", len(out))
	}
	for i, s := range out {
		if s != 0 {
			t.Fatalf("out[%d] = %d, want 0", i, s)
		}
	}
	if e.Stats().Underruns != 1 {
		t.Errorf("Underruns = %d, want 1", e.Stats().Underruns)
	}
}

func TestPlaybackPartialConsumption(t *testing.T) {
	e, drv := newTestEngine(t, testConfig())
	e.SetMode(ModeAI)
	e.StartPlayback()

	long := make([]int16, 240)
	for i := range long {
		long[i] = int16(i + 1)
	}
	e.AddFrameToPlaybackQueue(long)
	e.AddFrameToPlaybackQueue(frameOf(160, 500))

	out := drv.Output()
	first := out.Render()
	if first[0] != 1 || first[159] != 160 {
		t.Errorf("first buffer = [%d..%d], want [1..160]", first[0], first[159])
	}
	if e.Stats().PlaybackQueueLen != 2 {
		t.Errorf("PlaybackQueueLen = %d, want 2 after partial consume", e.Stats().PlaybackQueueLen)
	}

	second := out.Render()
	if second[0] != 161 || second[79] != 240 {
		t.Errorf("second buffer = [%d..%d], want [161..240]", second[0], second[79])
	}
	if second[80] != 0 || second[159] != 0 {
		t.Error("remainder of second buffer should be silence")
	}

	third := out.Render()
	if third[0] != 500 {
		t.Errorf("third buffer[0] = %d, want 500", third[0])
	}
}

func TestAddFrameToPlaybackQueuePads(t *testing.T) {
	e, drv := newTestEngine(t, testConfig())
	e.SetMode(ModeAI)

	short := frameOf(100, 9)
	e.AddFrameToPlaybackQueue(short)
	short[0] = 0

	e.StartPlayback()
	out := drv.Output().Render()
	if out[0] != 9 || out[99] != 9 {
		t.Errorf("queued frame should be a copy of the input")
	}
	for i := 100; i < 160; i++ {
		if out[i] != 0 {
			t.Fatalf("out[%d] = %d, want padding 0", i, out[i])
		}
	}
	if e.Stats().PlaybackQueueLen != 0 {
		t.Error("padded frame should be consumed whole")
	}
}

func TestSetModeFlushes(t *testing.T) {
	e, drv := newTestEngine(t, testConfig())
	if err := e.SetMode(ModeAI); err != nil {
		t.Fatal(err)
	}
	e.StartRecording()
	e.StartPlayback()
	drv.Input().Capture(frameOf(160, 1))
	e.AddFrameToPlaybackQueue(frameOf(160, 1))

	if err := e.SetMode(ModeWebRTC); err != nil {
		t.Fatalf("SetMode() error: %v", err)
	}
	st := e.Stats()
	if st.Recording || st.Playing {
		t.Error("SetMode should stop both streams")
	}
	if st.RecordQueueLen != 0 || st.PlaybackQueueLen != 0 {
		t.Errorf("queues = %d/%d, want 0/0", st.RecordQueueLen, st.PlaybackQueueLen)
	}
	if st.Mode != "webrtc" {
		t.Errorf("Mode = %q, want webrtc", st.Mode)
	}

	// Same mode is a no-op and keeps queued frames.
	e.AddFrameToPlaybackQueue(frameOf(160, 1))
	e.SetMode(ModeWebRTC)
	if e.Stats().PlaybackQueueLen != 1 {
		t.Error("SetMode(same) should not flush")
	}
}

func TestDeinitStopsStreams(t *testing.T) {
	e, drv := newTestEngine(t, testConfig())
	e.SetMode(ModeAI)
	e.StartRecording()
	e.StartPlayback()

	if err := e.Deinit(); err != nil {
		t.Fatalf("Deinit() error: %v", err)
	}
	if !drv.Input().Closed() || !drv.Output().Closed() {
		t.Error("Deinit should close both streams")
	}
	if e.IsRecording() || e.IsPlaying() {
		t.Error("flags should be cleared")
	}
}

func TestEncodeDecode(t *testing.T) {
	e, _ := newTestEngine(t, testConfig())

	pcm := frameOf(960, 42)
	buf := make([]byte, MaxEncodeBufferSize)
	n, err := e.EncodeOpus(pcm, buf)
	if err != nil {
		t.Fatalf("EncodeOpus() error: %v", err)
	}

	out := make([]int16, DecodeFrameSize)
	m, err := e.DecodeOpus(buf[:n], out)
	if err != nil {
		t.Fatalf("DecodeOpus() error: %v", err)
	}
	if m != 960 {
		t.Errorf("DecodeOpus() = %d samples, want 960", m)
	}
	if out[959] != 42 {
		t.Errorf("out[959] = %d, want 42", out[959])
	}
}

func TestEncodeDecodeErrors(t *testing.T) {
	e, _ := newTestEngine(t, testConfig())

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"empty pcm", func() error { _, err := e.EncodeOpus(nil, make([]byte, 4096)); return err }(), ErrEncodeFailed},
		{"small encode buffer", func() error { _, err := e.EncodeOpus(frameOf(160, 0), make([]byte, 2047)); return err }(), ErrInvalidParameter},
		{"small decode buffer", func() error { _, err := e.DecodeOpus([]byte{1, 2}, make([]int16, 959)); return err }(), ErrDecodeFailed},
		{"empty packet", func() error { _, err := e.DecodeOpus(nil, make([]int16, 960)); return err }(), ErrDecodeFailed},
		{"corrupt packet", func() error { _, err := e.DecodeOpus([]byte{1, 2, 3}, make([]int16, 960)); return err }(), ErrDecodeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.want) {
				t.Errorf("error = %v, want %v", tt.err, tt.want)
			}
		})
	}

	e.Deinit()
	if _, err := e.EncodeOpus(frameOf(160, 0), make([]byte, 2048)); !errors.Is(err, ErrEncodeFailed) {
		t.Errorf("EncodeOpus() after Deinit error = %v, want ErrEncodeFailed", err)
	}
}

func TestRealtimeMockDriver(t *testing.T) {
	cfg := testConfig()
	drv := NewMockDriver(WithRealtime(), WithSineWave(440, 0.5))
	e, err := New(cfg, drv, WithCodecFactory(NewMockCodecFactory(nil)))
	if err != nil {
		t.Fatal(err)
	}
	e.Init()
	defer e.Deinit()
	e.SetMode(ModeAI)
	e.StartRecording()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	f, ok := e.GetRecordedAudio(ctx)
	if !ok {
		t.Fatal("no frame from realtime mock")
	}
	if CalculateRMS(f) == 0 {
		t.Error("sine wave frame should not be silent")
	}
}
