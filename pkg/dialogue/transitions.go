package dialogue

// Transition is one row of a transition table.
type Transition struct {
	From  State
	Event Event
	To    State
}

// DefaultTransitions returns the device's dialogue table.
//
// wake_detected in idle goes straight to speaking, not listening. The
// microphone opens only after the first reply ends with speaking_end.
func DefaultTransitions() []Transition {
	return []Transition{
		{StateStartup, EventStartupDone, StateIdle},
		{StateIdle, EventWakeDetected, StateSpeaking},
		{StateListening, EventVADNoSpeech, StateIdle},
		{StateListening, EventASRReceived, StateThinking},
		{StateThinking, EventSpeakingMsgReceived, StateSpeaking},
		{StateSpeaking, EventSpeakingEnd, StateListening},
		{StateSpeaking, EventDialogueEnd, StateIdle},
		{Wildcard, EventFaultHappen, StateFault},
		{Wildcard, EventToStop, StateStopping},
		{StateFault, EventFaultSolved, StateIdle},
	}
}
