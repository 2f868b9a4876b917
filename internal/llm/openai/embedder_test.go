package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// stalledServer accepts requests and never answers until the test ends.
func stalledServer(t *testing.T) *httptest.Server {
	t.Helper()
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })
	return server
}

func TestEmbedderEmbedsSingleText(t *testing.T) {
	var gotModel string
	var gotInput []any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/embeddings") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		gotModel, _ = payload["model"].(string)
		gotInput, _ = payload["input"].([]any)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small","data":[{"object":"embedding","index":0,"embedding":[0.25,-0.5,1]}],"usage":{"prompt_tokens":3,"total_tokens":3}}`))
	}))
	defer server.Close()

	embedder, err := NewEmbedder("test-key", "text-embedding-3-small", server.URL, time.Second)
	if err != nil {
		t.Fatalf("NewEmbedder: %v", err)
	}
	vec, err := embedder.Embed(context.Background(), "Compressor\noverheating")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 || vec[1] != -0.5 {
		t.Fatalf("unexpected vector %v", vec)
	}
	if gotModel != "text-embedding-3-small" {
		t.Fatalf("unexpected model %q", gotModel)
	}
	if len(gotInput) != 1 || gotInput[0] != "Compressor overheating" {
		t.Fatalf("expected newline-stripped input, got %v", gotInput)
	}
	if embedder.Model() != "text-embedding-3-small" {
		t.Fatalf("unexpected model name %q", embedder.Model())
	}
}

func TestNewEmbedderRequiresKey(t *testing.T) {
	if _, err := NewEmbedder("", "text-embedding-3-small", "", 0); err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestEmbedderGivesUpAfterTimeout(t *testing.T) {
	server := stalledServer(t)
	embedder, err := NewEmbedder("test-key", "text-embedding-3-small", server.URL, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("NewEmbedder: %v", err)
	}

	start := time.Now()
	if _, err := embedder.Embed(context.Background(), "Compressor overheating"); err == nil {
		t.Fatalf("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("expected the call to stop after the timeout, took %s", elapsed)
	}
}
