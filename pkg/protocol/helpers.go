package protocol

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewHello creates the session handshake sent after connecting.
func NewHello(version int, params AudioParams) *Message {
	if params.Format == "" {
		params.Format = "opus"
	}
	return &Message{
		Type:        TypeHello,
		Version:     version,
		Transport:   "websocket",
		AudioParams: &params,
	}
}

// NewListen creates a listen message with state start, stop or detect.
func NewListen(sessionID, state, mode string) *Message {
	return &Message{
		Type:      TypeListen,
		SessionID: sessionID,
		State:     state,
		Mode:      mode,
	}
}

// NewWakeWord creates a listen message reporting a detected wake word.
func NewWakeWord(sessionID, text string) *Message {
	return &Message{
		Type:      TypeListen,
		SessionID: sessionID,
		State:     StateDetect,
		Text:      text,
	}
}

// NewAbort creates an abort message.
func NewAbort(sessionID, reason string) *Message {
	return &Message{
		Type:      TypeAbort,
		SessionID: sessionID,
		Reason:    reason,
	}
}

// =============================================================================
// Helper functions for inspecting messages
// =============================================================================

// IsNoSpeech reports a VAD result with no speech detected.
func (m *Message) IsNoSpeech() bool {
	return m.Type == TypeVAD && m.State == StateNoSpeech
}

// IsTTSStart reports the start of reply audio.
func (m *Message) IsTTSStart() bool {
	return m.Type == TypeTTS && m.State == StateStart
}

// IsTTSEnd reports the end of reply audio.
func (m *Message) IsTTSEnd() bool {
	return m.Type == TypeTTS && m.State == StateEnd
}
