package dialogue

import "fmt"

// State is a dialogue state.
type State int

const (
	// Wildcard matches any current state in a transition lookup.
	Wildcard State = -1
)

const (
	StateFault State = iota
	StateStartup
	StateStopping
	StateIdle
	StateListening
	StateThinking
	StateSpeaking
)

// States lists every concrete dialogue state.
var States = []State{
	StateFault,
	StateStartup,
	StateStopping,
	StateIdle,
	StateListening,
	StateThinking,
	StateSpeaking,
}

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case Wildcard:
		return "*"
	case StateFault:
		return "fault"
	case StateStartup:
		return "startup"
	case StateStopping:
		return "stopping"
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateThinking:
		return "thinking"
	case StateSpeaking:
		return "speaking"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Event drives dialogue transitions.
type Event int

const (
	EventStartupDone Event = iota
	EventWakeDetected
	EventVADNoSpeech
	EventASRReceived
	EventSpeakingMsgReceived
	EventSpeakingEnd
	EventDialogueEnd
	EventFaultHappen
	EventFaultSolved
	EventToStop
)

var eventNames = map[Event]string{
	EventStartupDone:         "startup_done",
	EventWakeDetected:        "wake_detected",
	EventVADNoSpeech:         "vad_no_speech",
	EventASRReceived:         "asr_received",
	EventSpeakingMsgReceived: "speaking_msg_received",
	EventSpeakingEnd:         "speaking_end",
	EventDialogueEnd:         "dialogue_end",
	EventFaultHappen:         "fault_happen",
	EventFaultSolved:         "fault_solved",
	EventToStop:              "to_stop",
}

// String returns the wire name of the event.
func (e Event) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// ParseEvent maps a wire name such as "wake_detected" to an Event.
func ParseEvent(name string) (Event, error) {
	for ev, n := range eventNames {
		if n == name {
			return ev, nil
		}
	}
	return 0, fmt.Errorf("dialogue: unknown event %q", name)
}
