package audio

// StreamParams describes a stream to open.
type StreamParams struct {
	SampleRate int
	Channels   int

	// FramesPerBuffer is the per-channel sample count of each callback.
	FramesPerBuffer int

	// Device names a device; empty means the system default.
	Device string
}

// CaptureFunc receives interleaved PCM16 from the microphone. It runs on the
// driver's real-time thread and must not block. in is only valid for the
// duration of the call.
type CaptureFunc func(in []int16)

// RenderFunc fills out with interleaved PCM16 for the speaker. It runs on the
// driver's real-time thread and must not block.
type RenderFunc func(out []int16)

// Stream is an open hardware stream.
type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// Driver abstracts the audio hardware.
type Driver interface {
	// Initialize acquires the audio subsystem.
	Initialize() error

	// Terminate releases the audio subsystem.
	Terminate() error

	// HasInputDevice reports whether a capture device is available.
	HasInputDevice(device string) bool

	// HasOutputDevice reports whether a playback device is available.
	HasOutputDevice(device string) bool

	// OpenInput opens a capture stream delivering frames to fn.
	OpenInput(p StreamParams, fn CaptureFunc) (Stream, error)

	// OpenOutput opens a playback stream pulling frames from fn.
	OpenOutput(p StreamParams, fn RenderFunc) (Stream, error)

	// Name returns the backend name.
	Name() string
}

// Codec compresses PCM16 frames.
type Codec interface {
	// Encode compresses pcm into out and returns the encoded length.
	Encode(pcm []int16, out []byte) (int, error)

	// Decode decompresses data into pcm and returns the per-channel sample count.
	Decode(data []byte, pcm []int16) (int, error)

	// Close releases codec state.
	Close() error
}

// CodecFactory creates a codec for the given format.
type CodecFactory func(sampleRate, channels int) (Codec, error)
