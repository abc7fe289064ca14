package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"flightdesk/app/config"
	"flightdesk/app/model"
	"flightdesk/app/service/agent"
	"flightdesk/app/service/conversation"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/samber/do"
)

// Assistant is the conversation surface served over HTTP.
type Assistant interface {
	Respond(ctx context.Context, sessionID, text, userID string) (string, error)
	Sessions() []string
	Dump(id string) (conversation.Dump, bool)
	Clear(id string)
}

// Querier answers stateless prompts with caller-supplied history.
type Querier interface {
	Query(ctx context.Context, prompt string, history []agent.Message, useTools bool) (string, error)
}

const (
	ModeAgent = "agent"
	ModeLLM   = "llm"
)

type AskRequest struct {
	SessionID string `json:"sessionId" validate:"required,max=128"`
	Message   string `json:"message" validate:"required,max=4000"`
	UserID    string `json:"userId" validate:"max=128"`
}

type AskResponse struct {
	Reply string `json:"reply"`
}

type QueryRequest struct {
	Prompt  string          `json:"prompt" validate:"required,max=4000"`
	History []agent.Message `json:"history" validate:"max=50,dive"`
	Mode    string          `json:"mode" validate:"omitempty,oneof=agent llm"`
}

type QueryResponse struct {
	Answer string `json:"answer"`
}

type Service struct {
	listen    string
	assistant Assistant
	querier   Querier
	app       *fiber.App
	validate  *validator.Validate
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	var mcpHandler http.Handler
	if cfg.MCP.Enabled {
		mcpHandler = do.MustInvoke[*agent.MCPServer](di).Handler()
	}

	return NewService(
		cfg.Server.Listen,
		do.MustInvoke[*conversation.Service](di),
		do.MustInvoke[*agent.Service](di),
		mcpHandler,
	), nil
}

// NewService builds the HTTP surface. querier serves /api/assistant/query
// and mcpHandler is mounted at /mcp, each only when set.
func NewService(listen string, assistant Assistant, querier Querier, mcpHandler http.Handler) *Service {
	s := &Service{
		listen:    listen,
		assistant: assistant,
		querier:   querier,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "flightdesk",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	s.app.Use(recover.New())

	assistantAPI := s.app.Group("/api/assistant")
	assistantAPI.Post("/ask", s.handleAsk)
	assistantAPI.Get("/sessions", s.handleSessions)
	assistantAPI.Get("/sessions/:id", s.handleDump)
	assistantAPI.Delete("/sessions/:id", s.handleClear)
	if querier != nil {
		assistantAPI.Post("/query", s.handleQuery)
	}

	if mcpHandler != nil {
		s.app.All("/mcp", adaptor.HTTPHandler(mcpHandler))
	}

	return s
}

func (s *Service) App() *fiber.App {
	return s.app
}

func (s *Service) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		slog.Info("Assistant API listening", "addr", s.listen)
		errCh <- s.app.Listen(s.listen)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("assistant api stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.app.ShutdownWithContext(shutdownCtx)
}

func (s *Service) Shutdown() error {
	return s.app.Shutdown()
}

func (s *Service) handleAsk(c *fiber.Ctx) error {
	var req AskRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if err := s.validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	reply, err := s.assistant.Respond(c.UserContext(), req.SessionID, req.Message, req.UserID)
	if err != nil {
		return fmt.Errorf("failed to respond: %w", err)
	}

	return c.JSON(AskResponse{Reply: reply})
}

// handleQuery reports assistant failures inside the answer, only malformed
// requests get an error status.
func (s *Service) handleQuery(c *fiber.Ctx) error {
	var req QueryRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if err := s.validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	useTools := req.Mode != ModeLLM

	answer, err := s.querier.Query(c.UserContext(), req.Prompt, req.History, useTools)
	if err != nil {
		slog.ErrorContext(c.UserContext(), "Query failed",
			"mode", req.Mode,
			"error", err,
		)
		answer = "Assistant error: " + err.Error()
	}

	return c.JSON(QueryResponse{Answer: answer})
}

func (s *Service) handleSessions(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"keys": s.assistant.Sessions()})
}

func (s *Service) handleDump(c *fiber.Ctx) error {
	dump, ok := s.assistant.Dump(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(problem(model.CodeNotFound, "session not found: "+c.Params("id")))
	}

	return c.JSON(dump)
}

func (s *Service) handleClear(c *fiber.Ctx) error {
	s.assistant.Clear(c.Params("id"))

	return c.SendStatus(fiber.StatusNoContent)
}

func problem(code, message string) fiber.Map {
	return fiber.Map{
		"code":    code,
		"message": message,
	}
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}

	label := model.CodeInternal
	switch {
	case code == fiber.StatusBadRequest:
		label = model.CodeValidation
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		code = fiber.StatusServiceUnavailable
	}

	if code >= fiber.StatusInternalServerError {
		slog.Error("Request failed",
			"method", c.Method(),
			"path", c.Path(),
			"error", err,
		)
	}

	return c.Status(code).JSON(problem(label, err.Error()))
}
