package intent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"flightdesk/app/config"
	"flightdesk/app/service/catalog"

	_ "embed"

	"github.com/samber/do"
	"github.com/tmc/langchaingo/llms"
	"golang.org/x/sync/singleflight"
)

//go:embed date_prompt.txt
var datePromptTemplate string

var strictDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

type dateResponse struct {
	HasDate    bool    `json:"hasDate"`
	Date       string  `json:"date"`
	Confidence float64 `json:"confidence"`
}

// DateExtractor asks the model to resolve free-form dates. Identical
// concurrent requests share one model call.
type DateExtractor struct {
	model         llms.Model
	minConfidence float64
	timeout       time.Duration
	now           func() time.Time

	group singleflight.Group
}

func NewDateExtractorService(di *do.Injector) (*DateExtractor, error) {
	cfg := do.MustInvoke[*config.Config](di)
	catalogSvc := do.MustInvoke[*catalog.Service](di)

	return NewDateExtractor(
		do.MustInvoke[llms.Model](di),
		cfg.Date.MinConfidence,
		cfg.LLM.Timeout,
		catalogSvc.Now,
	), nil
}

func NewDateExtractor(model llms.Model, minConfidence float64, timeout time.Duration, now func() time.Time) *DateExtractor {
	if now == nil {
		now = time.Now
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &DateExtractor{
		model:         model,
		minConfidence: minConfidence,
		timeout:       timeout,
		now:           now,
	}
}

func (d *DateExtractor) Normalize(ctx context.Context, text string) (string, error) {
	today := d.now()
	key := today.Format(time.DateOnly) + "|" + text

	result, err, _ := d.group.Do(key, func() (any, error) {
		return d.extract(ctx, today, text)
	})
	if err != nil {
		return "", err
	}

	return result.(string), nil
}

func (d *DateExtractor) extract(ctx context.Context, today time.Time, text string) (string, error) {
	templateValues := map[string]any{
		"today":   today.Format(time.DateOnly),
		"weekday": today.Weekday().String(),
		"text":    text,
	}

	prompt := datePromptTemplate
	for key, value := range templateValues {
		prompt = strings.ReplaceAll(prompt, "{"+key+"}", fmt.Sprint(value))
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	result, err := llms.GenerateFromSinglePrompt(ctx, d.model, prompt,
		llms.WithJSONMode(),
		llms.WithTemperature(0),
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate date: %w", err)
	}

	result = strings.Trim(result, "`")
	result = strings.TrimSpace(result)
	result = strings.TrimPrefix(result, "json")
	result = strings.TrimSpace(result)

	var response dateResponse
	if err = json.Unmarshal([]byte(result), &response); err != nil {
		return "", fmt.Errorf("failed to unmarshal date response: %w", err)
	}

	if !response.HasDate || !strictDatePattern.MatchString(response.Date) || response.Confidence < d.minConfidence {
		slog.DebugContext(ctx, "Date rejected",
			"text", text,
			"date", response.Date,
			"confidence", response.Confidence,
		)
		return "", nil
	}

	return response.Date, nil
}
