package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-glasses/pkg/audio"
	"github.com/teslashibe/go-glasses/pkg/chatbot"
	"github.com/teslashibe/go-glasses/pkg/dialogue"
	"github.com/teslashibe/go-glasses/pkg/transport"
)

// fakeEngine returns runErr from Run, or blocks until ctx is done when
// runErr is nil and block is set.
type fakeEngine struct {
	runErr error
	block  bool

	mu     sync.Mutex
	events []dialogue.Event
	wakes  []string
}

func (f *fakeEngine) Run(ctx context.Context) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.runErr
}

func (f *fakeEngine) Status() chatbot.Status { return chatbot.Status{State: "idle"} }

func (f *fakeEngine) Enqueue(ev dialogue.Event) {
	f.mu.Lock()
	f.events = append(f.events, ev)
	f.mu.Unlock()
}

func (f *fakeEngine) Wake(text string) error {
	f.mu.Lock()
	f.wakes = append(f.wakes, text)
	f.mu.Unlock()
	return nil
}

func TestNewSupervisorValidation(t *testing.T) {
	if _, err := NewSupervisor(nil); !errors.Is(err, ErrNilFactory) {
		t.Errorf("expected ErrNilFactory, got %v", err)
	}
}

func TestRestartsAfterFailure(t *testing.T) {
	var builds atomic.Int32
	errLost := errors.New("connection lost")

	sup, err := NewSupervisor(func(...chatbot.Option) (Engine, error) {
		if builds.Add(1) < 3 {
			return &fakeEngine{runErr: errLost}, nil
		}
		return &fakeEngine{}, nil
	}, WithRestartDelay(time.Millisecond))
	if err != nil {
		t.Fatalf("NewSupervisor failed: %v", err)
	}

	if err := sup.Run(context.Background()); err != nil {
		t.Fatalf("Run returned %v, want nil after clean exit", err)
	}
	if got := builds.Load(); got != 3 {
		t.Errorf("builds = %d, want 3", got)
	}
	if got := sup.Restarts(); got != 2 {
		t.Errorf("Restarts() = %d, want 2", got)
	}
	if got := sup.LastError(); got != errLost.Error() {
		t.Errorf("LastError() = %q, want %q", got, errLost)
	}
}

func TestMaxRestarts(t *testing.T) {
	errLost := errors.New("connection lost")
	sup, _ := NewSupervisor(func(...chatbot.Option) (Engine, error) {
		return &fakeEngine{runErr: errLost}, nil
	}, WithRestartDelay(0), WithMaxRestarts(2))

	err := sup.Run(context.Background())
	if !errors.Is(err, errLost) {
		t.Fatalf("Run returned %v, want wrapped %v", err, errLost)
	}
	if got := sup.Restarts(); got != 2 {
		t.Errorf("Restarts() = %d, want 2", got)
	}
}

func TestFactoryError(t *testing.T) {
	errBuild := errors.New("no audio device")
	sup, _ := NewSupervisor(func(...chatbot.Option) (Engine, error) {
		return nil, errBuild
	})
	if err := sup.Run(context.Background()); !errors.Is(err, errBuild) {
		t.Errorf("Run returned %v, want wrapped %v", err, errBuild)
	}
}

func TestForwarding(t *testing.T) {
	eng := &fakeEngine{block: true}
	sup, _ := NewSupervisor(func(...chatbot.Option) (Engine, error) {
		return eng, nil
	})

	// nothing running yet
	if got := sup.Status().State; got != "stopped" {
		t.Errorf("Status().State = %q, want stopped", got)
	}
	if err := sup.Wake("hi"); !errors.Is(err, ErrNoEngine) {
		t.Errorf("Wake() = %v, want ErrNoEngine", err)
	}
	sup.Enqueue(dialogue.EventWakeDetected)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for sup.Status().State != "idle" {
		if time.Now().After(deadline) {
			t.Fatal("engine not started")
		}
		time.Sleep(time.Millisecond)
	}

	sup.Enqueue(dialogue.EventWakeDetected)
	if err := sup.Wake("hey glasses"); err != nil {
		t.Errorf("Wake() = %v", err)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v, want nil on cancel", err)
	}

	eng.mu.Lock()
	defer eng.mu.Unlock()
	if len(eng.events) != 1 || eng.events[0] != dialogue.EventWakeDetected {
		t.Errorf("events = %v, want [wake_detected]", eng.events)
	}
	if len(eng.wakes) != 1 || eng.wakes[0] != "hey glasses" {
		t.Errorf("wakes = %v", eng.wakes)
	}
}

func TestObserverSpansRestarts(t *testing.T) {
	var mu sync.Mutex
	var idles int
	observer := func(_, to dialogue.State, _ dialogue.Event) {
		if to == dialogue.StateIdle {
			mu.Lock()
			idles++
			mu.Unlock()
		}
	}
	countIdles := func() int {
		mu.Lock()
		defer mu.Unlock()
		return idles
	}

	trs := make(chan *transport.Mock, 4)
	factory := func(opts ...chatbot.Option) (Engine, error) {
		acfg := audio.DefaultConfig()
		acfg.Backend = audio.BackendMock
		ae, err := audio.New(acfg, audio.NewMockDriver(), audio.WithCodecFactory(audio.NewMockCodecFactory(nil)))
		if err != nil {
			return nil, err
		}
		tr := transport.NewMock()
		tr.ConnectFunc = func(ctx context.Context) error {
			// the first generation connects once, then every reconnect fails
			if tr.ConnectCalls() > 1 {
				return errors.New("backend unreachable")
			}
			return nil
		}
		trs <- tr

		cfg := chatbot.DefaultConfig()
		cfg.TickInterval = 2 * time.Millisecond
		cfg.ReconnectDelay = time.Millisecond
		cfg.MaxReconnectAttempts = 1
		eng, err := chatbot.New(cfg, ae, tr, opts...)
		if err != nil {
			return nil, err
		}
		return eng, nil
	}

	sup, _ := NewSupervisor(factory, WithRestartDelay(time.Millisecond), WithObserver(observer))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	deadline := time.Now().Add(2 * time.Second)
	for countIdles() < 1 {
		if time.Now().After(deadline) {
			t.Fatal("first engine never reached idle")
		}
		time.Sleep(time.Millisecond)
	}

	// drop the connection; recovery gives up and the supervisor rebuilds
	(<-trs).SimulateClose(errors.New("reset by peer"))

	for countIdles() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("restarted engine never reached idle (restarts=%d)", sup.Restarts())
		}
		time.Sleep(time.Millisecond)
	}
	if sup.Restarts() < 1 {
		t.Errorf("Restarts() = %d, want >= 1", sup.Restarts())
	}
}
