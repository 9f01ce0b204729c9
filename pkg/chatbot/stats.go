package chatbot

import (
	"sync/atomic"

	"github.com/teslashibe/go-glasses/pkg/audio"
)

type stats struct {
	eventsProcessed   atomic.Int64
	intentsDispatched atomic.Int64
	transitions       atomic.Int64
	messagesReceived  atomic.Int64
	messagesSent      atomic.Int64
	framesReceived    atomic.Int64
	framesSent        atomic.Int64
	sendErrors        atomic.Int64
	malformed         atomic.Int64
	faults            atomic.Int64
	connects          atomic.Int64
	reconnects        atomic.Int64
	errors            atomic.Int64
}

// Stats contains dialogue engine counters.
type Stats struct {
	EventsProcessed   int64 `json:"events_processed"`
	IntentsDispatched int64 `json:"intents_dispatched"`
	Transitions       int64 `json:"transitions"`
	MessagesReceived  int64 `json:"messages_received"`
	MessagesSent      int64 `json:"messages_sent"`
	FramesReceived    int64 `json:"frames_received"`
	FramesSent        int64 `json:"frames_sent"`
	SendErrors        int64 `json:"send_errors"`
	Malformed         int64 `json:"malformed"`
	Faults            int64 `json:"faults"`
	Connects          int64 `json:"connects"`
	Reconnects        int64 `json:"reconnects"`
	Errors            int64 `json:"errors"`

	PendingEvents  int `json:"pending_events"`
	PendingIntents int `json:"pending_intents"`
}

// Status is a snapshot of the engine for diagnostics.
type Status struct {
	State     string      `json:"state"`
	Previous  string      `json:"previous"`
	SessionID string      `json:"session_id"`
	Connected bool        `json:"connected"`
	Stats     Stats       `json:"stats"`
	Audio     audio.Stats `json:"audio"`
}

// Stats returns engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		EventsProcessed:   e.stats.eventsProcessed.Load(),
		IntentsDispatched: e.stats.intentsDispatched.Load(),
		Transitions:       e.stats.transitions.Load(),
		MessagesReceived:  e.stats.messagesReceived.Load(),
		MessagesSent:      e.stats.messagesSent.Load(),
		FramesReceived:    e.stats.framesReceived.Load(),
		FramesSent:        e.stats.framesSent.Load(),
		SendErrors:        e.stats.sendErrors.Load(),
		Malformed:         e.stats.malformed.Load(),
		Faults:            e.stats.faults.Load(),
		Connects:          e.stats.connects.Load(),
		Reconnects:        e.stats.reconnects.Load(),
		Errors:            e.stats.errors.Load(),
		PendingEvents:     e.events.Len(),
		PendingIntents:    e.intents.Len(),
	}
}

// Status returns a diagnostics snapshot.
func (e *Engine) Status() Status {
	return Status{
		State:     e.machine.CurrentState().String(),
		Previous:  e.machine.PreviousState().String(),
		SessionID: e.SessionID(),
		Connected: e.transport.IsConnected(),
		Stats:     e.Stats(),
		Audio:     e.audio.Stats(),
	}
}
