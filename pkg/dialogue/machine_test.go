package dialogue

import (
	"reflect"
	"testing"
)

type recorder struct {
	calls []string
}

func (r *recorder) hook(name string) Hook {
	return func() { r.calls = append(r.calls, name) }
}

func newTestMachine(r *recorder, opts ...Option) *Machine {
	m := New(StateStartup, opts...)
	for _, s := range States {
		m.RegisterState(s, r.hook("enter:"+s.String()), r.hook("exit:"+s.String()))
	}
	m.RegisterTable(DefaultTransitions())
	return m
}

func TestInitializeRunsEnterHook(t *testing.T) {
	r := &recorder{}
	m := newTestMachine(r)
	m.Initialize()

	if got := m.CurrentState(); got != StateStartup {
		t.Errorf("CurrentState() = %v, want startup", got)
	}
	if want := []string{"enter:startup"}; !reflect.DeepEqual(r.calls, want) {
		t.Errorf("calls = %v, want %v", r.calls, want)
	}
}

func TestHandleEventHookOrder(t *testing.T) {
	r := &recorder{}
	m := newTestMachine(r)
	m.Initialize()
	r.calls = nil

	if !m.HandleEvent(EventStartupDone) {
		t.Fatal("HandleEvent(startup_done) = false, want true")
	}
	if got := m.CurrentState(); got != StateIdle {
		t.Errorf("CurrentState() = %v, want idle", got)
	}
	if got := m.PreviousState(); got != StateStartup {
		t.Errorf("PreviousState() = %v, want startup", got)
	}
	want := []string{"exit:startup", "enter:idle"}
	if !reflect.DeepEqual(r.calls, want) {
		t.Errorf("calls = %v, want %v", r.calls, want)
	}
}

func TestDefaultTable(t *testing.T) {
	tests := []struct {
		from State
		ev   Event
		want State
		ok   bool
	}{
		{StateStartup, EventStartupDone, StateIdle, true},
		{StateIdle, EventWakeDetected, StateSpeaking, true},
		{StateListening, EventVADNoSpeech, StateIdle, true},
		{StateListening, EventASRReceived, StateThinking, true},
		{StateThinking, EventSpeakingMsgReceived, StateSpeaking, true},
		{StateSpeaking, EventSpeakingEnd, StateListening, true},
		{StateSpeaking, EventDialogueEnd, StateIdle, true},
		{StateFault, EventFaultSolved, StateIdle, true},
		{StateIdle, EventASRReceived, StateIdle, false},
		{StateThinking, EventSpeakingEnd, StateThinking, false},
		{StateStartup, EventFaultSolved, StateStartup, false},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"+"+tt.ev.String(), func(t *testing.T) {
			m := New(tt.from)
			m.RegisterTable(DefaultTransitions())
			m.Initialize()

			if ok := m.HandleEvent(tt.ev); ok != tt.ok {
				t.Errorf("HandleEvent() = %v, want %v", ok, tt.ok)
			}
			if got := m.CurrentState(); got != tt.want {
				t.Errorf("CurrentState() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWildcardFromEveryState(t *testing.T) {
	for _, s := range States {
		for _, tc := range []struct {
			ev   Event
			want State
		}{
			{EventToStop, StateStopping},
			{EventFaultHappen, StateFault},
		} {
			t.Run(s.String()+"+"+tc.ev.String(), func(t *testing.T) {
				m := New(s)
				m.RegisterTable(DefaultTransitions())
				m.Initialize()
				m.HandleEvent(tc.ev)
				if got := m.CurrentState(); got != tc.want {
					t.Errorf("CurrentState() = %v, want %v", got, tc.want)
				}
			})
		}
	}
}

func TestExactMatchBeatsWildcard(t *testing.T) {
	m := New(StateIdle)
	m.RegisterTransition(Wildcard, EventToStop, StateStopping)
	m.RegisterTransition(StateIdle, EventToStop, StateFault)
	m.Initialize()

	m.HandleEvent(EventToStop)
	if got := m.CurrentState(); got != StateFault {
		t.Errorf("CurrentState() = %v, want fault", got)
	}
}

func TestLastRegistrationWins(t *testing.T) {
	r := &recorder{}
	m := New(StateIdle)
	m.RegisterState(StateListening, r.hook("first"), nil)
	m.RegisterState(StateListening, r.hook("second"), nil)
	m.RegisterTransition(StateIdle, EventWakeDetected, StateSpeaking)
	m.RegisterTransition(StateIdle, EventWakeDetected, StateListening)
	m.Initialize()

	m.HandleEvent(EventWakeDetected)
	if got := m.CurrentState(); got != StateListening {
		t.Errorf("CurrentState() = %v, want listening", got)
	}
	if want := []string{"second"}; !reflect.DeepEqual(r.calls, want) {
		t.Errorf("calls = %v, want %v", r.calls, want)
	}
}

func TestUnmatchedEventHasNoSideEffects(t *testing.T) {
	r := &recorder{}
	m := newTestMachine(r)
	m.Initialize()
	r.calls = nil

	if m.HandleEvent(EventSpeakingEnd) {
		t.Error("HandleEvent(speaking_end) in startup should be ignored")
	}
	if len(r.calls) != 0 {
		t.Errorf("hooks ran for ignored event: %v", r.calls)
	}
}

func TestDeterministic(t *testing.T) {
	seq := []Event{
		EventStartupDone, EventWakeDetected, EventSpeakingEnd, EventASRReceived,
		EventSpeakingMsgReceived, EventDialogueEnd, EventFaultHappen, EventFaultSolved, EventToStop,
	}

	run := func() ([]string, State) {
		r := &recorder{}
		m := newTestMachine(r)
		m.Initialize()
		for _, ev := range seq {
			m.HandleEvent(ev)
		}
		return r.calls, m.CurrentState()
	}

	calls1, s1 := run()
	calls2, s2 := run()
	if s1 != s2 || !reflect.DeepEqual(calls1, calls2) {
		t.Errorf("runs differ: %v/%v vs %v/%v", s1, calls1, s2, calls2)
	}
	if s1 != StateStopping {
		t.Errorf("final state = %v, want stopping", s1)
	}
}

func TestObserver(t *testing.T) {
	type change struct {
		from, to State
		ev       Event
	}
	var got []change

	m := New(StateStartup, WithObserver(func(from, to State, ev Event) {
		got = append(got, change{from, to, ev})
	}))
	m.RegisterTable(DefaultTransitions())
	m.Initialize()
	m.HandleEvent(EventStartupDone)
	m.HandleEvent(EventASRReceived)

	want := []change{{StateStartup, StateIdle, EventStartupDone}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("observer calls = %v, want %v", got, want)
	}
}

func TestHookMayReadState(t *testing.T) {
	m := New(StateStartup)
	var seen State = -2
	m.RegisterState(StateIdle, func() { seen = m.CurrentState() }, nil)
	m.RegisterTable(DefaultTransitions())
	m.Initialize()
	m.HandleEvent(EventStartupDone)

	if seen != StateIdle {
		t.Errorf("state seen from hook = %v, want idle", seen)
	}
}

func TestParseEvent(t *testing.T) {
	for ev, name := range eventNames {
		got, err := ParseEvent(name)
		if err != nil {
			t.Errorf("ParseEvent(%q) error: %v", name, err)
		}
		if got != ev {
			t.Errorf("ParseEvent(%q) = %v, want %v", name, got, ev)
		}
	}
	if _, err := ParseEvent("bogus"); err == nil {
		t.Error("ParseEvent(bogus) should fail")
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateFault, "fault"},
		{StateSpeaking, "speaking"},
		{Wildcard, "*"},
		{State(42), "state(42)"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.s), got, tt.want)
		}
	}
}
