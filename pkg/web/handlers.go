package web

import (
	"bufio"
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-voicechat/pkg/chat"
	"github.com/teslashibe/go-voicechat/pkg/hub"
	"github.com/teslashibe/go-voicechat/pkg/voice"
)

// handleStatus returns the current session state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.svc.Session.State())
}

// ModeRequest is the body for connect and mode changes.
type ModeRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) parseMode(c *fiber.Ctx, required bool) (voice.Mode, error) {
	var req ModeRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return "", err
		}
	}
	if req.Mode == "" {
		if required {
			return "", errors.New("mode is required")
		}
		return "", nil
	}
	return voice.ParseMode(req.Mode)
}

// handleConnect starts a session, optionally switching mode first.
// It returns once the session is listening or has failed.
func (s *Server) handleConnect(c *fiber.Ctx) error {
	mode, err := s.parseMode(c, false)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if mode != "" {
		err = s.svc.Session.ConnectMode(c.UserContext(), mode)
	} else {
		err = s.svc.Session.Connect(c.UserContext())
	}
	if err != nil {
		return s.sessionError(c, err)
	}
	return c.JSON(s.svc.Session.State())
}

func (s *Server) sessionError(c *fiber.Ctx, err error) error {
	status := fiber.StatusBadGateway
	switch {
	case errors.Is(err, voice.ErrSuperseded):
		status = fiber.StatusConflict
	case errors.Is(err, voice.ErrClosed):
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
		"state": s.svc.Session.State(),
	})
}

// handleClose ends the session
func (s *Server) handleClose(c *fiber.Ctx) error {
	if err := s.svc.Session.Close(); err != nil {
		return s.sessionError(c, err)
	}
	return c.JSON(s.svc.Session.State())
}

// handleMode switches the capture mode, reconnecting a live session
func (s *Server) handleMode(c *fiber.Ctx) error {
	mode, err := s.parseMode(c, true)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := s.svc.Session.SetMode(c.UserContext(), mode); err != nil {
		return s.sessionError(c, err)
	}
	return c.JSON(s.svc.Session.State())
}

// handleGetCamera returns frame sampling settings
func (s *Server) handleGetCamera(c *fiber.Ctx) error {
	return c.JSON(s.svc.Session.Camera().GetConfigJSON())
}

// handleSetCamera updates frame sampling settings
func (s *Server) handleSetCamera(c *fiber.Ctx) error {
	var params map[string]any
	if err := c.BodyParser(&params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	cam := s.svc.Session.Camera()
	if err := cam.UpdateConfig(params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(cam.GetConfigJSON())
}

// handleTurnMetrics returns per-turn latency metrics
func (s *Server) handleTurnMetrics(c *fiber.Ctx) error {
	m := s.svc.Session.Metrics()
	avg := m.Average()
	return c.JSON(fiber.Map{
		"current": m.Current(),
		"average": fiber.Map{
			"first_audio_ms": avg.FirstAudioLatency.Milliseconds(),
			"total_ms":       avg.TotalLatency.Milliseconds(),
		},
		"history": m.History(),
	})
}

// handleGetLogs returns recent log entries
func (s *Server) handleGetLogs(c *fiber.Ctx) error {
	s.logsMu.RLock()
	defer s.logsMu.RUnlock()
	return c.JSON(s.logs)
}

// ChatRequest is the body for a chat message.
type ChatRequest struct {
	Text string `json:"text"`
}

// handleChat streams the reply as server-sent events: "delta" for each
// text fragment, then "done" with the stored reply or "error".
func (s *Server) handleChat(c *fiber.Ctx) error {
	if s.svc.Chat == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "chat is disabled"})
	}
	var req ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if req.Text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": chat.ErrEmpty.Error()})
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	// fasthttp runs the stream writer after the handler returns and has no
	// per-connection context. A failed write is the disconnect signal.
	text := req.Text
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		s.streamChat(context.Background(), newSSEWriter(w), text)
	})
	return nil
}

// streamChat relays one chat reply as delta events followed by done or
// error. Generation stops at the first event the client cannot receive.
func (s *Server) streamChat(ctx context.Context, sw *sseWriter, text string) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var gone error
	reply, err := s.svc.Chat.Send(ctx, text, func(delta string) error {
		if err := sw.Send("delta", fiber.Map{"text": delta}); err != nil {
			gone = err
			cancel()
			return err
		}
		return nil
	})
	if gone != nil {
		s.logger.Debug("chat client disconnected", "error", gone)
		return
	}
	if err != nil {
		sw.Send("error", fiber.Map{"error": err.Error(), "message": reply})
		return
	}
	sw.Send("done", reply)
}

// handleGetConversation returns the chat history
func (s *Server) handleGetConversation(c *fiber.Ctx) error {
	if s.svc.Chat == nil {
		return c.JSON([]chat.Message{})
	}
	return c.JSON(s.svc.Chat.History())
}

// handleClearConversation clears the chat history
func (s *Server) handleClearConversation(c *fiber.Ctx) error {
	if s.svc.Chat != nil {
		s.svc.Chat.Clear()
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// handleLogsWS streams log entries, starting with the recent buffer
func (s *Server) handleLogsWS(c *websocket.Conn) {
	client := hub.NewClient(s.logHub, c)
	if client == nil {
		return
	}
	s.logsMu.RLock()
	for _, entry := range s.logs {
		if data, err := jsonBytes(entry); err == nil {
			client.Send(hub.NewJSONMessage(data))
		}
	}
	s.logsMu.RUnlock()
	client.Run()
}

// handleCameraWS streams frames sent to the model
func (s *Server) handleCameraWS(c *websocket.Conn) {
	if client := hub.NewClient(s.cameraHub, c); client != nil {
		client.Run()
	}
}

// handleStatusWS streams session state, starting with a snapshot
func (s *Server) handleStatusWS(c *websocket.Conn) {
	client := hub.NewClient(s.statusHub, c)
	if client == nil {
		return
	}
	if data, err := jsonBytes(s.svc.Session.State()); err == nil {
		client.Send(hub.NewJSONMessage(data))
	}
	client.Run()
}
