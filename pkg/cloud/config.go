package cloud

import (
	"errors"
	"time"
)

// Config scripts the simulated backend.
type Config struct {
	// Token, when set, is required as "Authorization: Bearer <token>".
	Token string `yaml:"token" json:"token"`

	// ProtocolVersion is written into echoed audio frame headers.
	ProtocolVersion int `yaml:"protocol_version" json:"protocol_version"`

	// SampleRate and FrameDuration are announced in the hello reply.
	SampleRate    int `yaml:"sample_rate" json:"sample_rate"`
	FrameDuration int `yaml:"frame_duration" json:"frame_duration"`

	// UtteranceFrames is how many audio frames make up one user utterance.
	// When reached, the simulator answers with asr, the echoed audio and
	// tts end.
	UtteranceFrames int `yaml:"utterance_frames" json:"utterance_frames"`

	// Transcript is sent as the asr text.
	Transcript string `yaml:"transcript" json:"transcript"`

	// Reply is sent as the chat text.
	Reply string `yaml:"reply" json:"reply"`

	// Greeting is sent as the chat text after a wake word.
	Greeting string `yaml:"greeting" json:"greeting"`

	// FunctionCall, when set, is attached to every reply as a function_call.
	FunctionCall string `yaml:"function_call" json:"function_call"`

	// SilenceTimeout sends vad no_speech when a listening session receives
	// no audio for this long. Zero disables it.
	SilenceTimeout time.Duration `yaml:"silence_timeout" json:"silence_timeout"`
}

// DefaultConfig returns a Config that echoes one second of speech.
func DefaultConfig() Config {
	return Config{
		ProtocolVersion: 2,
		SampleRate:      16000,
		FrameDuration:   40,
		UtteranceFrames: 25,
		Transcript:      "hello glasses",
		Reply:           "hello, I heard you",
		Greeting:        "hi, how can I help",
		SilenceTimeout:  0,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.ProtocolVersion <= 0 || c.ProtocolVersion > 0xFFFF {
		return errors.New("cloud: protocol version out of range")
	}
	if c.UtteranceFrames <= 0 {
		return errors.New("cloud: utterance frames must be positive")
	}
	if c.SilenceTimeout < 0 {
		return errors.New("cloud: silence timeout must not be negative")
	}
	return nil
}
