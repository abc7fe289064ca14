package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"flightdesk/app/client/profiles"
	"flightdesk/app/config"
	"flightdesk/app/service/booking"
	"flightdesk/app/service/catalog"
	"flightdesk/app/service/session"

	_ "embed"

	"github.com/google/uuid"
	"github.com/samber/do"
	"github.com/tmc/langchaingo/llms"
)

//go:embed system_prompt.txt
var systemPromptTemplate string

const (
	maxReasonDuration = 2 * time.Minute
	maxListedFlights  = 5
)

var unsupportedToolsMarkers = []string{
	"does not support tools",
	"tools are not supported",
	"tool use is not supported",
	"support tool use",
	"tool calling is not supported",
	"unsupported parameter: 'tools'",
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one earlier turn handed to Query.
type Message struct {
	Role    string `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"max=4000"`
}

type Options struct {
	ToolsEnabled bool
	MaxToolSteps int
	Temperature  float64
}

// Service answers messages the deterministic rules did not recognize. It
// runs a tool loop over the session-bound tools.
type Service struct {
	model    llms.Model
	catalog  *catalog.Service
	sessions *session.Store
	booking  *booking.Service
	profiles *profiles.Client
	opts     Options
}

func New(di *do.Injector) (*Service, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return NewService(
		do.MustInvoke[llms.Model](di),
		do.MustInvoke[*catalog.Service](di),
		do.MustInvoke[*session.Store](di),
		do.MustInvoke[*booking.Service](di),
		do.MustInvoke[*profiles.Client](di),
		Options{
			ToolsEnabled: *cfg.LLM.ToolsEnabled,
			MaxToolSteps: cfg.LLM.MaxToolSteps,
			Temperature:  cfg.LLM.Temperature,
		},
	), nil
}

func NewService(
	model llms.Model,
	catalogSvc *catalog.Service,
	sessions *session.Store,
	bookingSvc *booking.Service,
	profilesClient *profiles.Client,
	opts Options,
) *Service {
	if opts.MaxToolSteps <= 0 {
		opts.MaxToolSteps = 5
	}

	return &Service{
		model:    model,
		catalog:  catalogSvc,
		sessions: sessions,
		booking:  bookingSvc,
		profiles: profilesClient,
		opts:     opts,
	}
}

// Ask answers a message for a session. When the model rejects tool calling
// the question is asked again as plain text.
func (s *Service) Ask(ctx context.Context, sessionID, text string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, s.systemPrompt(sessionID)),
		llms.TextParts(llms.ChatMessageTypeHuman, text),
	}

	return s.answer(ctx, sessionID, messages, s.opts.ToolsEnabled)
}

// Query answers a prompt outside of any conversation. history carries the
// earlier turns; tool state lives in a throwaway session dropped afterwards.
func (s *Service) Query(ctx context.Context, prompt string, history []Message, useTools bool) (string, error) {
	sessionID := "query-" + uuid.NewString()
	defer s.sessions.Delete(sessionID)

	messages := make([]llms.MessageContent, 0, len(history)+2)
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, s.systemPrompt(sessionID)))

	for _, msg := range history {
		role := llms.ChatMessageTypeHuman
		if msg.Role == RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, msg.Content))
	}

	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, prompt))

	return s.answer(ctx, sessionID, messages, useTools && s.opts.ToolsEnabled)
}

func (s *Service) answer(ctx context.Context, sessionID string, messages []llms.MessageContent, useTools bool) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, maxReasonDuration)
	defer cancel()

	if !useTools {
		return s.generate(ctx, messages)
	}

	reply, err := s.runTools(ctx, sessionID, messages)
	if err != nil && toolsUnsupported(err) {
		slog.WarnContext(ctx, "Model does not support tools, falling back to plain text",
			"session_id", sessionID,
			"error", err,
		)
		return s.generate(ctx, messages)
	}

	return reply, err
}

func (s *Service) runTools(ctx context.Context, sessionID string, messages []llms.MessageContent) (string, error) {
	registry := s.sessionTools(sessionID)

	byName := make(map[string]*agentTool, len(registry))
	definitions := make([]llms.Tool, 0, len(registry))
	for _, tool := range registry {
		byName[tool.name] = tool
		definitions = append(definitions, tool.definition())
	}

	for step := 0; step < s.opts.MaxToolSteps; step++ {
		resp, err := s.model.GenerateContent(ctx, messages,
			llms.WithTools(definitions),
			llms.WithTemperature(s.opts.Temperature),
		)
		if err != nil {
			return "", fmt.Errorf("failed to generate content: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", errors.New("no completion choices")
		}

		choice := resp.Choices[0]
		if len(choice.ToolCalls) == 0 {
			return strings.TrimSpace(choice.Content), nil
		}

		assistant := llms.MessageContent{Role: llms.ChatMessageTypeAI}
		for _, call := range choice.ToolCalls {
			assistant.Parts = append(assistant.Parts, call)
		}
		messages = append(messages, assistant)

		for _, call := range choice.ToolCalls {
			messages = append(messages, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{
					llms.ToolCallResponse{
						ToolCallID: call.ID,
						Name:       toolName(call),
						Content:    s.execute(ctx, sessionID, byName, call),
					},
				},
			})
		}
	}

	slog.WarnContext(ctx, "Tool step limit reached", "session_id", sessionID, "steps", s.opts.MaxToolSteps)

	return s.generate(ctx, messages)
}

func (s *Service) execute(ctx context.Context, sessionID string, byName map[string]*agentTool, call llms.ToolCall) string {
	name := toolName(call)

	tool, ok := byName[name]
	if !ok {
		return failure(fmt.Errorf("unknown tool %q", name))
	}

	var arguments string
	if call.FunctionCall != nil {
		arguments = call.FunctionCall.Arguments
	}

	slog.DebugContext(ctx, "Tool call",
		"session_id", sessionID,
		"tool", name,
		"arguments", arguments,
	)

	output, err := tool.Call(ctx, arguments)
	if err != nil {
		return failure(err)
	}

	return output
}

func (s *Service) generate(ctx context.Context, messages []llms.MessageContent) (string, error) {
	resp, err := s.model.GenerateContent(ctx, messages, llms.WithTemperature(s.opts.Temperature))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no completion choices")
	}

	return strings.TrimSpace(resp.Choices[0].Content), nil
}

func (s *Service) systemPrompt(sessionID string) string {
	state := s.sessions.Get(sessionID)

	templateValues := map[string]any{
		"today":   s.catalog.Today(),
		"session": describeState(state),
		"history": session.FormatTurns(s.sessions.Turns(sessionID)),
	}

	prompt := systemPromptTemplate
	for key, value := range templateValues {
		prompt = strings.ReplaceAll(prompt, "{"+key+"}", fmt.Sprint(value))
	}

	return prompt
}

func describeState(state session.State) string {
	var lines []string

	if state.ActiveUserID != "" {
		lines = append(lines, "Active user: "+state.ActiveUserID)
	} else {
		lines = append(lines, "Active user: unknown")
	}

	if n := len(state.LastSearchResults); n > 0 {
		lines = append(lines, fmt.Sprintf("Last search: %d flights", n))
		for i, f := range state.LastSearchResults {
			if i == maxListedFlights {
				lines = append(lines, fmt.Sprintf("  (+%d more)", n-maxListedFlights))
				break
			}
			lines = append(lines, fmt.Sprintf("  %d. %s [%s]", i+1, f.Summary(), f.TripID()))
		}
	}

	if state.LastChosenFlight != nil {
		lines = append(lines, "Chosen flight: "+state.LastChosenFlight.Summary()+" ["+state.LastChosenFlight.TripID()+"]")
	}

	if state.LastBookingID != "" {
		lines = append(lines, "Last booking: "+state.LastBookingID)
	}

	if state.RescheduleTargetBookingID != "" {
		lines = append(lines, fmt.Sprintf("Rescheduling booking %s, new date: %s", state.RescheduleTargetBookingID, orUnknown(state.RescheduleNewDate)))
	}

	return strings.Join(lines, "\n")
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}

	return s
}

func toolName(call llms.ToolCall) string {
	if call.FunctionCall == nil {
		return ""
	}

	return call.FunctionCall.Name
}

func toolsUnsupported(err error) bool {
	msg := strings.ToLower(err.Error())

	for _, marker := range unsupportedToolsMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}

	return false
}
