package server

import (
	"github.com/gofiber/fiber/v2"
)

func (s *Server) handleInterviewState(c *fiber.Ctx) error {
	ctrl := s.deps.Interview
	return c.JSON(fiber.Map{
		"screen":    ctrl.Screen(),
		"turnState": ctrl.TurnState(),
		"index":     ctrl.CurrentIndex(),
		"feedback":  ctrl.Feedback(),
		"lastError": ctrl.LastError(),
	})
}

func (s *Server) handleInterviewBegin(c *fiber.Ctx) error {
	var body struct {
		Name string `json:"name"`
	}
	if err := c.BodyParser(&body); err == nil && body.Name != "" {
		s.deps.Interview.SetCandidate(body.Name)
	}
	s.deps.Interview.Begin()
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleAcknowledge(c *fiber.Ctx) error {
	s.deps.Interview.Acknowledge()
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleInterviewRole(c *fiber.Ctx) error {
	var body struct {
		Role string `json:"role"`
	}
	if err := c.BodyParser(&body); err != nil || body.Role == "" {
		return fiber.NewError(fiber.StatusBadRequest, "role is required")
	}
	if err := s.deps.Interview.SelectRole(body.Role); err != nil {
		return fiber.NewError(fiber.StatusConflict, err.Error())
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleDeviceCheckPass(c *fiber.Ctx) error {
	s.deps.Interview.DeviceCheckPassed()
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleDeviceCheckLevel(c *fiber.Ctx) error {
	var body struct {
		Level float64 `json:"level"`
	}
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	s.deps.Interview.DeviceCheckTick(body.Level)
	mic, passed := s.deps.Interview.DeviceCheckStatus()
	return c.JSON(fiber.Map{"micPassed": mic, "passed": passed})
}

func (s *Server) handleDeviceCheckCamera(c *fiber.Ctx) error {
	var body struct {
		Ready bool `json:"ready"`
	}
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	s.deps.Interview.SetCameraReady(body.Ready)
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleInterviewStart(c *fiber.Ctx) error {
	if err := s.deps.Interview.StartInterview(); err != nil {
		return fiber.NewError(fiber.StatusConflict, err.Error())
	}
	return c.SendStatus(fiber.StatusAccepted)
}

func (s *Server) handleAnswerStop(c *fiber.Ctx) error {
	s.deps.Interview.StopAnswer()
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleTranscript(c *fiber.Ctx) error {
	if c.Query("format") == "txt" {
		c.Set("Content-Type", "text/plain; charset=utf-8")
		return c.SendString(s.deps.Interview.ExportText())
	}
	data, err := s.deps.Interview.ExportJSON()
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	c.Set("Content-Type", "application/json")
	return c.Send(data)
}

func (s *Server) handleAvatarFrame(c *fiber.Ctx) error {
	return c.JSON(s.deps.Avatar.Sample())
}

func (s *Server) handleVisibility(c *fiber.Ctx) error {
	var body struct {
		Hidden bool `json:"hidden"`
	}
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid body")
	}
	s.deps.Monitor.SetPageHidden(body.Hidden)
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleCameraStart(c *fiber.Ctx) error {
	s.deps.Monitor.StartCamera()
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleCameraStop(c *fiber.Ctx) error {
	s.deps.Monitor.StopCamera()
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleClearViolations(c *fiber.Ctx) error {
	s.deps.Monitor.ClearViolations()
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleFrame(c *fiber.Ctx) error {
	body := c.Body()
	if len(body) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "empty frame")
	}
	// Push copies the bytes, so the reused fiber buffer is safe here.
	s.deps.Frames.Push(body)
	return c.SendStatus(fiber.StatusNoContent)
}
