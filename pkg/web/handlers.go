package web

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-glasses/pkg/dialogue"
	"github.com/teslashibe/go-glasses/pkg/hub"
)

// handleStatus returns the engine status
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.engine.Status())
}

// handleTransitions returns the recent transition log
func (s *Server) handleTransitions(c *fiber.Ctx) error {
	return c.JSON(s.Transitions())
}

// handleListEvents returns the injectable event names
func (s *Server) handleListEvents(c *fiber.Ctx) error {
	names := make([]string, 0, 10)
	for ev := dialogue.EventStartupDone; ev <= dialogue.EventToStop; ev++ {
		names = append(names, ev.String())
	}
	return c.JSON(names)
}

// handleEvent injects a dialogue event by name
func (s *Server) handleEvent(c *fiber.Ctx) error {
	ev, err := dialogue.ParseEvent(c.Params("name"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	s.engine.Enqueue(ev)
	s.logger.Info("event injected", "event", ev)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"queued": ev.String()})
}

// WakeRequest is the request body for a simulated wake word
type WakeRequest struct {
	Text string `json:"text"`
}

// handleWake simulates a wake word
func (s *Server) handleWake(c *fiber.Ctx) error {
	var req WakeRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
	}

	if err := s.engine.Wake(req.Text); err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"queued": dialogue.EventWakeDetected.String()})
}

// handleStatusWS streams transitions, starting with the current status
func (s *Server) handleStatusWS(c *websocket.Conn) {
	// written before the client's write pump starts
	if err := c.WriteJSON(s.engine.Status()); err != nil {
		return
	}

	client := hub.NewClient(s.statusHub, c)
	if client == nil {
		return
	}
	client.Run()
}

// Command is a message a dashboard sends on the status socket. Exactly one
// of Event or Wake is expected.
type Command struct {
	Event string `json:"event,omitempty"`
	Wake  string `json:"wake,omitempty"`
}

// handleCommand applies a dashboard command. Bad commands are logged and
// dropped.
func (s *Server) handleCommand(data []byte) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		s.logger.Warn("malformed command", "error", err)
		return
	}

	switch {
	case cmd.Event != "":
		ev, err := dialogue.ParseEvent(cmd.Event)
		if err != nil {
			s.logger.Warn("unknown command event", "event", cmd.Event)
			return
		}
		s.engine.Enqueue(ev)
		s.logger.Info("event injected", "event", ev, "source", "ws")
	case cmd.Wake != "":
		if err := s.engine.Wake(cmd.Wake); err != nil {
			s.logger.Warn("wake command", "error", err)
		}
	default:
		s.logger.Warn("empty command")
	}
}
