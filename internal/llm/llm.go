package llm

import (
	"context"
	"errors"
)

// FixExtractor turns the text of a service report into raw structured JSON.
type FixExtractor interface {
	ExtractFixes(ctx context.Context, text string) ([]byte, error)
}

// Embedder produces vectors for the semantic search strategies.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// Summarizer condenses a problem description into a search-friendly summary.
type Summarizer interface {
	Summarize(ctx context.Context, problem string) (string, error)
}

// ErrNotConfigured is returned when no provider credentials are available.
var ErrNotConfigured = errors.New("llm provider not configured: set OPENAI_API_KEY")

// Unconfigured satisfies every provider interface and always fails. It keeps
// the pipeline runnable locally; documents fail with a readable message.
type Unconfigured struct{}

func (Unconfigured) ExtractFixes(context.Context, string) ([]byte, error) {
	return nil, ErrNotConfigured
}

func (Unconfigured) Embed(context.Context, string) ([]float32, error) {
	return nil, ErrNotConfigured
}

func (Unconfigured) Model() string { return "" }

func (Unconfigured) Summarize(context.Context, string) (string, error) {
	return "", ErrNotConfigured
}

var (
	_ FixExtractor = Unconfigured{}
	_ Embedder     = Unconfigured{}
	_ Summarizer   = Unconfigured{}
)
