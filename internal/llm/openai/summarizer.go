package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"servicedocs-backend/internal/llm"
	"servicedocs-backend/internal/shared/telemetry"
)

const (
	summaryTemperature = 0.3
	summaryMaxTokens   = 200
)

// Summarizer implements llm.Summarizer with a langchaingo chat model.
type Summarizer struct {
	model llms.Model
}

// NewSummarizer constructs a summarizer for the chat model. baseURL is
// optional and a non-positive timeout means DefaultTimeout.
func NewSummarizer(apiKey, model, baseURL string, timeout time.Duration) (*Summarizer, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithModel(model),
		openai.WithHTTPClient(httpClient(timeout)),
	}
	if base := strings.TrimSpace(baseURL); base != "" {
		opts = append(opts, openai.WithBaseURL(base))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("openai chat client: %w", err)
	}
	return &Summarizer{model: client}, nil
}

// Summarize condenses a problem description. Provider failures and empty
// output fall back to the original text so a summary is always available.
func (s *Summarizer) Summarize(ctx context.Context, problem string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	resp, err := s.model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, llm.SummarySystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, llm.SummaryPrompt(problem)),
	}, llms.WithTemperature(summaryTemperature), llms.WithMaxTokens(summaryMaxTokens))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		telemetry.Warn("llm.summary_failed", map[string]any{"error": err.Error()})
		return problem, nil
	}
	if len(resp.Choices) == 0 {
		telemetry.Warn("llm.summary_empty", nil)
		return problem, nil
	}
	summary := strings.TrimSpace(resp.Choices[0].Content)
	if summary == "" {
		telemetry.Warn("llm.summary_empty", nil)
		return problem, nil
	}
	return summary, nil
}

var _ llm.Summarizer = (*Summarizer)(nil)
