// Package app supervises the dialogue engine. It rebuilds and restarts the
// engine after fatal errors such as exhausted reconnects, and exposes the
// running engine to the diagnostics server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-glasses/pkg/chatbot"
	"github.com/teslashibe/go-glasses/pkg/dialogue"
)

// DefaultRestartDelay is the pause between an engine failure and its restart.
const DefaultRestartDelay = time.Second

var (
	// ErrNoEngine is returned when no engine is currently running.
	ErrNoEngine = errors.New("app: no engine running")

	// ErrNilFactory is returned by NewSupervisor without a factory.
	ErrNilFactory = errors.New("app: factory is required")
)

// Engine is the part of chatbot.Engine the supervisor drives.
type Engine interface {
	Run(ctx context.Context) error
	Status() chatbot.Status
	Enqueue(ev dialogue.Event)
	Wake(text string) error
}

// Factory builds a fresh engine. opts carry the supervisor's observer and
// must be passed through to chatbot.New.
type Factory func(opts ...chatbot.Option) (Engine, error)

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRestartDelay sets the pause before a restart.
func WithRestartDelay(d time.Duration) Option {
	return func(s *Supervisor) {
		if d >= 0 {
			s.restartDelay = d
		}
	}
}

// WithMaxRestarts limits restarts. Zero means unlimited.
func WithMaxRestarts(n int) Option {
	return func(s *Supervisor) {
		if n >= 0 {
			s.maxRestarts = n
		}
	}
}

// WithObserver forwards every transition of every engine generation.
func WithObserver(fn dialogue.Observer) Option {
	return func(s *Supervisor) {
		if fn != nil {
			s.observers = append(s.observers, fn)
		}
	}
}

// Supervisor keeps one engine running.
type Supervisor struct {
	factory      Factory
	logger       *slog.Logger
	restartDelay time.Duration
	maxRestarts  int
	observers    []dialogue.Observer

	mu      sync.RWMutex
	current Engine

	restarts atomic.Int64
	lastErr  atomic.Value // string
}

// NewSupervisor creates a supervisor around factory.
func NewSupervisor(factory Factory, opts ...Option) (*Supervisor, error) {
	if factory == nil {
		return nil, ErrNilFactory
	}
	s := &Supervisor{
		factory:      factory,
		logger:       slog.Default(),
		restartDelay: DefaultRestartDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "supervisor")
	return s, nil
}

// Run builds and runs engines until ctx is done or an engine exits cleanly.
// A factory error is returned immediately; engine errors trigger a restart.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		eng, err := s.factory(chatbot.WithObserver(s.observe))
		if err != nil {
			return fmt.Errorf("app: build engine: %w", err)
		}

		s.setCurrent(eng)
		s.logger.Info("engine started", "restarts", s.restarts.Load())
		err = eng.Run(ctx)
		s.setCurrent(nil)

		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			s.logger.Info("engine stopped")
			return nil
		}

		s.lastErr.Store(err.Error())
		if s.maxRestarts > 0 && s.restarts.Load() >= int64(s.maxRestarts) {
			return fmt.Errorf("app: giving up after %d restarts: %w", s.restarts.Load(), err)
		}

		s.logger.Warn("engine failed, restarting", "error", err, "delay", s.restartDelay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.restartDelay):
		}
		s.restarts.Add(1)
	}
}

func (s *Supervisor) observe(from, to dialogue.State, ev dialogue.Event) {
	for _, fn := range s.observers {
		fn(from, to, ev)
	}
}

func (s *Supervisor) setCurrent(eng Engine) {
	s.mu.Lock()
	s.current = eng
	s.mu.Unlock()
}

func (s *Supervisor) engine() Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Restarts returns how many times the engine was restarted.
func (s *Supervisor) Restarts() int64 {
	return s.restarts.Load()
}

// LastError returns the error that caused the most recent restart.
func (s *Supervisor) LastError() string {
	v, _ := s.lastErr.Load().(string)
	return v
}

// Status returns the running engine's status, or a stopped status.
func (s *Supervisor) Status() chatbot.Status {
	if eng := s.engine(); eng != nil {
		return eng.Status()
	}
	return chatbot.Status{State: "stopped"}
}

// Enqueue forwards an event to the running engine. It is dropped when no
// engine is running.
func (s *Supervisor) Enqueue(ev dialogue.Event) {
	if eng := s.engine(); eng != nil {
		eng.Enqueue(ev)
	}
}

// Wake forwards a wake word to the running engine.
func (s *Supervisor) Wake(text string) error {
	eng := s.engine()
	if eng == nil {
		return ErrNoEngine
	}
	return eng.Wake(text)
}
