// Package dialogue implements the table-driven state machine that sequences a
// voice conversation: startup, idle, listening, thinking, speaking and the
// fault and stopping states.
//
// The machine knows nothing about audio. Side effects such as starting the
// microphone are attached as enter and exit hooks by the owner.
package dialogue

import (
	"log/slog"
	"sync"
)

// Hook is an enter or exit action for a state.
type Hook func()

// Observer is notified after every applied transition.
type Observer func(from, to State, ev Event)

type transitionKey struct {
	from  State
	event Event
}

type hooks struct {
	onEnter Hook
	onExit  Hook
}

// Option configures a Machine.
type Option func(*Machine)

// WithObserver registers a transition observer. Multiple observers are called
// in registration order.
func WithObserver(fn Observer) Option {
	return func(m *Machine) {
		if fn != nil {
			m.observers = append(m.observers, fn)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// Machine is a dialogue state machine.
//
// HandleEvent calls are serialized. Hooks run on the caller's goroutine
// without the state lock held, so they may call CurrentState.
type Machine struct {
	initial State

	// handleMu serializes transitions including their hooks.
	handleMu sync.Mutex

	mu          sync.RWMutex
	current     State
	previous    State
	states      map[State]hooks
	transitions map[transitionKey]State
	observers   []Observer

	logger *slog.Logger
}

// New creates a machine that will enter initial on Initialize.
func New(initial State, opts ...Option) *Machine {
	m := &Machine{
		initial:     initial,
		current:     initial,
		previous:    initial,
		states:      make(map[State]hooks),
		transitions: make(map[transitionKey]State),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "dialogue")
	return m
}

// RegisterState sets the enter and exit hooks of a state. Either may be nil.
// A later registration for the same state replaces the earlier one.
func (m *Machine) RegisterState(state State, onEnter, onExit Hook) {
	m.mu.Lock()
	m.states[state] = hooks{onEnter: onEnter, onExit: onExit}
	m.mu.Unlock()
}

// RegisterTransition maps (from, ev) to the next state. from may be Wildcard.
// A later registration for the same pair replaces the earlier one.
func (m *Machine) RegisterTransition(from State, ev Event, to State) {
	m.mu.Lock()
	m.transitions[transitionKey{from: from, event: ev}] = to
	m.mu.Unlock()
}

// RegisterTable registers every transition in t.
func (m *Machine) RegisterTable(t []Transition) {
	for _, tr := range t {
		m.RegisterTransition(tr.From, tr.Event, tr.To)
	}
}

// Initialize enters the initial state and runs its enter hook.
func (m *Machine) Initialize() {
	m.handleMu.Lock()
	defer m.handleMu.Unlock()

	m.mu.Lock()
	m.current = m.initial
	m.previous = m.initial
	h := m.states[m.initial]
	m.mu.Unlock()

	m.logger.Debug("initialized", "state", m.initial)
	if h.onEnter != nil {
		h.onEnter()
	}
}

// HandleEvent applies ev to the current state. An exact (state, event) match
// is preferred over a wildcard one. Unmatched events are ignored and false is
// returned.
func (m *Machine) HandleEvent(ev Event) bool {
	m.handleMu.Lock()
	defer m.handleMu.Unlock()

	m.mu.RLock()
	from := m.current
	to, ok := m.transitions[transitionKey{from: from, event: ev}]
	if !ok {
		to, ok = m.transitions[transitionKey{from: Wildcard, event: ev}]
	}
	fromHooks := m.states[from]
	toHooks := m.states[to]
	observers := m.observers
	m.mu.RUnlock()

	if !ok {
		m.logger.Debug("event ignored", "state", from, "event", ev)
		return false
	}

	if fromHooks.onExit != nil {
		fromHooks.onExit()
	}

	m.mu.Lock()
	m.previous = from
	m.current = to
	m.mu.Unlock()

	m.logger.Info("state changed", "from", from, "to", to, "event", ev)

	if toHooks.onEnter != nil {
		toHooks.onEnter()
	}

	for _, fn := range observers {
		fn(from, to, ev)
	}
	return true
}

// CurrentState returns the current state.
func (m *Machine) CurrentState() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// PreviousState returns the state before the last applied transition.
func (m *Machine) PreviousState() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.previous
}
