package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"servicedocs-backend/internal/llm"
)

// Embedder implements llm.Embedder with the langchaingo OpenAI embeddings client.
type Embedder struct {
	embedder embeddings.Embedder
	model    string
}

// NewEmbedder constructs an embedder for model. baseURL is optional and a
// non-positive timeout means DefaultTimeout.
func NewEmbedder(apiKey, model, baseURL string, timeout time.Duration) (*Embedder, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("EMBEDDING_MODEL is required")
	}
	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithEmbeddingModel(model),
		openai.WithHTTPClient(httpClient(timeout)),
	}
	if base := strings.TrimSpace(baseURL); base != "" {
		opts = append(opts, openai.WithBaseURL(base))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}
	return &Embedder{embedder: embedder, model: model}, nil
}

// Embed returns the embedding of a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("embed text: empty embedding from %s", e.model)
	}
	return vectors[0], nil
}

// Model names the embedding model recorded on every fix.
func (e *Embedder) Model() string {
	return e.model
}

var _ llm.Embedder = (*Embedder)(nil)

func httpClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}
