// Package server exposes the HTTP surface: capture session transport,
// compliance queries, health, and logs.
package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/mockview/mockview/internal/avatar"
	"github.com/mockview/mockview/internal/config"
	"github.com/mockview/mockview/internal/interview"
	"github.com/mockview/mockview/internal/logging"
	"github.com/mockview/mockview/internal/proctor"
	"github.com/mockview/mockview/internal/session"
)

// Deps are the collaborators the HTTP surface exposes. Registry is
// required; the rest may be nil, in which case their endpoints return
// empty results or are not registered.
type Deps struct {
	Registry  *session.Registry
	Monitor   *proctor.Monitor
	Frames    *proctor.FrameBuffer
	Logs      *logging.Logger
	Interview *interview.Controller
	Avatar    *avatar.State
}

// Server hosts the HTTP API.
type Server struct {
	cfg    config.ServerConfig
	app    *fiber.App
	deps   Deps
	logger zerolog.Logger
}

// New builds the server and its routes.
func New(cfg config.ServerConfig, deps Deps, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With().Str("component", "server").Logger(),
	}

	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          s.errorHandler,
	})

	api := s.app.Group("/api")
	api.Get("/health", s.handleHealth)
	api.Get("/logs", s.handleLogs)
	api.Get("/proctor/violations", s.handleViolations)

	stt := api.Group("/stt")
	stt.Post("/start", s.handleStart)
	stt.Post("/:id/chunk", s.handleChunk)
	stt.Get("/:id/events", s.handleEvents)
	stt.Post("/:id/stop", s.handleStop)

	if deps.Interview != nil {
		iv := api.Group("/interview")
		iv.Get("/state", s.handleInterviewState)
		iv.Post("/begin", s.handleInterviewBegin)
		iv.Post("/role", s.handleInterviewRole)
		iv.Post("/device-check/level", s.handleDeviceCheckLevel)
		iv.Post("/device-check/camera", s.handleDeviceCheckCamera)
		iv.Post("/device-check/pass", s.handleDeviceCheckPass)
		iv.Post("/acknowledge", s.handleAcknowledge)
		iv.Post("/start", s.handleInterviewStart)
		iv.Post("/answer/stop", s.handleAnswerStop)
		iv.Get("/transcript", s.handleTranscript)
	}
	if deps.Avatar != nil {
		api.Get("/avatar/frame", s.handleAvatarFrame)
	}
	if deps.Monitor != nil {
		api.Post("/proctor/visibility", s.handleVisibility)
		api.Post("/proctor/camera/start", s.handleCameraStart)
		api.Post("/proctor/camera/stop", s.handleCameraStop)
		api.Delete("/proctor/violations", s.handleClearViolations)
	}
	if deps.Frames != nil {
		api.Post("/proctor/frame", s.handleFrame)
	}

	return s
}

// App returns the underlying fiber app, used by tests.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves until Shutdown.
func (s *Server) Listen() error {
	s.logger.Info().Str("addr", s.cfg.Addr).Msg("HTTP server listening")
	return s.app.Listen(s.cfg.Addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":   "ok",
		"sessions": s.deps.Registry.Count(),
	})
}

func (s *Server) handleLogs(c *fiber.Ctx) error {
	if s.deps.Logs == nil {
		return c.JSON([]logging.Entry{})
	}
	limit := c.QueryInt("limit", 100)
	return c.JSON(s.deps.Logs.History(limit))
}

func (s *Server) handleViolations(c *fiber.Ctx) error {
	if s.deps.Monitor == nil {
		return c.JSON([]proctor.Violation{})
	}
	return c.JSON(s.deps.Monitor.Violations())
}

func (s *Server) handleStart(c *fiber.Ctx) error {
	sess, err := s.deps.Registry.Create()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to create capture session")
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": sess.ID})
}

func (s *Server) handleChunk(c *fiber.Ctx) error {
	id := c.Params("id")
	body := c.Body()
	if len(body) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "empty audio chunk")
	}

	// fiber reuses the request buffer after the handler returns.
	chunk := make([]byte, len(body))
	copy(chunk, body)

	if err := s.deps.Registry.PushAudio(id, chunk); err != nil {
		return s.sessionError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	if err := s.deps.Registry.Stop(c.Params("id")); err != nil {
		return s.sessionError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) sessionError(err error) error {
	if errors.Is(err, session.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	return fiber.NewError(fiber.StatusInternalServerError, err.Error())
}
