package llm

import (
	"context"
	"log/slog"

	"github.com/tmc/langchaingo/callbacks"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

var _ callbacks.Handler = (*LogCallbackHandler)(nil)

// LogCallbackHandler logs model failures and, at debug level, token usage.
type LogCallbackHandler struct{}

func (l LogCallbackHandler) HandleText(ctx context.Context, text string) {}

func (l LogCallbackHandler) HandleLLMStart(ctx context.Context, prompts []string) {}

func (l LogCallbackHandler) HandleLLMGenerateContentStart(ctx context.Context, ms []llms.MessageContent) {
	slog.DebugContext(ctx, "LLM request", "messages", len(ms))
}

func (l LogCallbackHandler) HandleLLMGenerateContentEnd(ctx context.Context, res *llms.ContentResponse) {
	if res == nil || len(res.Choices) == 0 {
		return
	}

	choice := res.Choices[0]
	slog.DebugContext(ctx, "LLM response",
		"stop_reason", choice.StopReason,
		"tool_calls", len(choice.ToolCalls),
		"completion_tokens", choice.GenerationInfo["CompletionTokens"],
	)
}

func (l LogCallbackHandler) HandleLLMError(ctx context.Context, err error) {
	slog.ErrorContext(ctx, "LLM error", "error", err)
}

func (l LogCallbackHandler) HandleChainStart(ctx context.Context, inputs map[string]any) {}

func (l LogCallbackHandler) HandleChainEnd(ctx context.Context, outputs map[string]any) {}

func (l LogCallbackHandler) HandleChainError(ctx context.Context, err error) {
	slog.ErrorContext(ctx, "Chain error", "error", err)
}

func (l LogCallbackHandler) HandleToolStart(ctx context.Context, input string) {
	slog.DebugContext(ctx, "Tool start", "input", input)
}

func (l LogCallbackHandler) HandleToolEnd(ctx context.Context, output string) {
	slog.DebugContext(ctx, "Tool end", "output", output)
}

func (l LogCallbackHandler) HandleToolError(ctx context.Context, err error) {
	slog.ErrorContext(ctx, "Tool error", "error", err)
}

func (l LogCallbackHandler) HandleAgentAction(ctx context.Context, action schema.AgentAction) {}

func (l LogCallbackHandler) HandleAgentFinish(ctx context.Context, finish schema.AgentFinish) {}

func (l LogCallbackHandler) HandleRetrieverStart(ctx context.Context, query string) {}

func (l LogCallbackHandler) HandleRetrieverEnd(ctx context.Context, query string, documents []schema.Document) {
}

func (l LogCallbackHandler) HandleStreamingFunc(ctx context.Context, chunk []byte) {}
