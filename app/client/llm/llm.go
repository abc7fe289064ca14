package llm

import (
	"fmt"
	"net/http"

	"flightdesk/app/config"

	"github.com/samber/do"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// New builds the OpenAI-compatible chat model shared by date extraction and
// the assistant.
func New(di *do.Injector) (llms.Model, error) {
	cfg := do.MustInvoke[*config.Config](di)

	model, err := openai.New(
		openai.WithToken(cfg.LLM.Token),
		openai.WithBaseURL(cfg.LLM.BaseURL),
		openai.WithModel(cfg.LLM.Model),
		openai.WithHTTPClient(&http.Client{
			Timeout: cfg.LLM.Timeout,
		}),
		openai.WithCallback(LogCallbackHandler{}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}

	return model, nil
}
