package audio

import (
	"encoding/binary"
	"math"
)

// BytesToSamples converts raw PCM16 little-endian bytes to int16 samples.
// A trailing odd byte is ignored.
func BytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

// SamplesToBytes converts int16 samples to raw PCM16 little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	return AppendSamples(make([]byte, 0, len(samples)*2), samples)
}

// AppendSamples appends samples to dst as PCM16 little-endian bytes.
func AppendSamples(dst []byte, samples []int16) []byte {
	for _, s := range samples {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(s))
	}
	return dst
}

// CalculateRMS calculates the root mean square of samples.
// Returns a value between 0.0 and 1.0.
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// SineWave fills an interleaved buffer with a sine tone and returns the next
// phase. Every channel carries the same signal.
func SineWave(buf []int16, channels, sampleRate int, frequency, amplitude, phase float64) float64 {
	if channels <= 0 || sampleRate <= 0 {
		return phase
	}
	step := 2 * math.Pi * frequency / float64(sampleRate)
	for i := 0; i+channels <= len(buf); i += channels {
		v := int16(amplitude * math.Sin(phase) * 32767)
		for ch := 0; ch < channels; ch++ {
			buf[i+ch] = v
		}
		phase += step
		if phase >= 2*math.Pi {
			phase -= 2 * math.Pi
		}
	}
	return phase
}
