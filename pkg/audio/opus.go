package audio

import (
	"fmt"

	"gopkg.in/hraban/opus.v2"
)

// OpusCodec wraps a libopus encoder and decoder pair.
type OpusCodec struct {
	enc *opus.Encoder
	dec *opus.Decoder
}

// NewOpusCodec creates a speech-tuned (VoIP) Opus codec. It satisfies CodecFactory.
func NewOpusCodec(sampleRate, channels int) (Codec, error) {
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("create opus decoder: %w", err)
	}
	return &OpusCodec{enc: enc, dec: dec}, nil
}

// Encode compresses one frame. len(pcm) must be a valid Opus frame size.
func (c *OpusCodec) Encode(pcm []int16, out []byte) (int, error) {
	if c.enc == nil {
		return 0, fmt.Errorf("opus encoder closed")
	}
	return c.enc.Encode(pcm, out)
}

// Decode decompresses one packet and returns the per-channel sample count.
func (c *OpusCodec) Decode(data []byte, pcm []int16) (int, error) {
	if c.dec == nil {
		return 0, fmt.Errorf("opus decoder closed")
	}
	return c.dec.Decode(data, pcm)
}

// Close drops the libopus handles. They are freed by the garbage collector.
func (c *OpusCodec) Close() error {
	c.enc = nil
	c.dec = nil
	return nil
}
