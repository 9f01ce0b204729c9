// Package web serves the device diagnostics API: engine status, the recent
// transition log, event injection and a live transition stream.
package web

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-glasses/pkg/chatbot"
	"github.com/teslashibe/go-glasses/pkg/dialogue"
	"github.com/teslashibe/go-glasses/pkg/hub"
)

// maxTransitions is the size of the transition log.
const maxTransitions = 200

// Engine is the part of the dialogue engine the dashboard drives.
type Engine interface {
	Status() chatbot.Status
	Enqueue(ev dialogue.Event)
	Wake(text string) error
}

// TransitionEntry is one applied state transition.
type TransitionEntry struct {
	Time  time.Time `json:"time"`
	From  string    `json:"from"`
	To    string    `json:"to"`
	Event string    `json:"event"`
}

// Server is the diagnostics server
type Server struct {
	app    *fiber.App
	addr   string
	engine Engine
	logger *slog.Logger

	transitions   []TransitionEntry
	transitionsMu sync.RWMutex

	statusHub *hub.Hub
}

// NewServer creates a diagnostics server for engine listening on addr.
func NewServer(addr string, engine Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:        addr,
		engine:      engine,
		logger:      logger.With("component", "web"),
		transitions: make([]TransitionEntry, 0, maxTransitions),
		statusHub:   hub.New("status", logger),
	}
	s.statusHub.OnReceive(s.handleCommand)

	app := fiber.New(fiber.Config{
		AppName:               "Glasses Diagnostics",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/transitions", s.handleTransitions)
	api.Get("/events", s.handleListEvents)
	api.Post("/event/:name", s.handleEvent)
	api.Post("/wake", s.handleWake)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start runs the broadcast hub and serves until Shutdown is called or ctx
// is done.
func (s *Server) Start(ctx context.Context) error {
	go s.statusHub.Run(ctx)
	go func() {
		<-ctx.Done()
		_ = s.app.Shutdown()
	}()

	s.logger.Info("diagnostics server listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// StartAsync starts the server in a goroutine
func (s *Server) StartAsync(ctx context.Context) {
	go func() {
		if err := s.Start(ctx); err != nil {
			s.logger.Warn("diagnostics server stopped", "error", err)
		}
	}()
}

// ObserveTransition records a transition and broadcasts it to dashboard
// clients. It has the dialogue.Observer signature.
func (s *Server) ObserveTransition(from, to dialogue.State, ev dialogue.Event) {
	entry := TransitionEntry{
		Time:  time.Now(),
		From:  from.String(),
		To:    to.String(),
		Event: ev.String(),
	}

	s.transitionsMu.Lock()
	s.transitions = append(s.transitions, entry)
	if len(s.transitions) > maxTransitions {
		s.transitions = s.transitions[1:]
	}
	s.transitionsMu.Unlock()

	if err := s.statusHub.BroadcastJSON(entry); err != nil {
		s.logger.Warn("broadcast transition", "error", err)
	}
}

// Transitions returns a copy of the transition log, oldest first.
func (s *Server) Transitions() []TransitionEntry {
	s.transitionsMu.RLock()
	defer s.transitionsMu.RUnlock()
	return append([]TransitionEntry(nil), s.transitions...)
}

// StatusHub returns the hub feeding /ws/status.
func (s *Server) StatusHub() *hub.Hub {
	return s.statusHub
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
