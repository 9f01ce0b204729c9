package audio

import (
	"bufio"
	"fmt"
	"io"
)

// SaveRecording writes every frame currently in the recording queue to w as
// raw PCM16 little-endian. The queue is left untouched. It returns the number
// of bytes written.
func (e *Engine) SaveRecording(w io.Writer) (int64, error) {
	frames := e.rec.snapshot()

	bw := bufio.NewWriter(w)
	var total int64
	buf := make([]byte, 0, e.cfg.FrameSize()*2)
	for _, f := range frames {
		buf = AppendSamples(buf[:0], f)
		n, err := bw.Write(buf)
		total += int64(n)
		if err != nil {
			return total, fmt.Errorf("write recording: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return total, fmt.Errorf("flush recording: %w", err)
	}

	e.logger.Info("recording saved", "frames", len(frames), "bytes", total)
	return total, nil
}

// LoadFrames reads raw PCM16 little-endian audio from r and splits it into
// frames of frameSize samples. The last frame is padded with silence.
func LoadFrames(r io.Reader, frameSize int) ([][]int16, error) {
	if frameSize <= 0 {
		return nil, fmt.Errorf("%w: frame size must be positive, got %d", ErrInvalidParameter, frameSize)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pcm: %w", err)
	}
	samples := BytesToSamples(data)

	frames := make([][]int16, 0, (len(samples)+frameSize-1)/frameSize)
	for off := 0; off < len(samples); off += frameSize {
		frame := make([]int16, frameSize)
		copy(frame, samples[off:])
		frames = append(frames, frame)
	}
	return frames, nil
}
