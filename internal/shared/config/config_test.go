package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{"ENV", "PORT", "EMBEDDING_DIMENSIONS", "OBJECT_STORE", "SEARCH_TIMEOUT_SECONDS", "LLM_MODEL"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Env != "dev" {
		t.Fatalf("expected env dev, got %q", cfg.Env)
	}
	if cfg.Port != "8080" {
		t.Fatalf("expected port 8080, got %q", cfg.Port)
	}
	if cfg.EmbeddingDimensions != 1536 {
		t.Fatalf("expected 1536 dimensions, got %d", cfg.EmbeddingDimensions)
	}
	if cfg.ObjectStoreType != "local" {
		t.Fatalf("expected local store, got %q", cfg.ObjectStoreType)
	}
	if cfg.SearchTimeout != 15*time.Second {
		t.Fatalf("expected 15s search timeout, got %s", cfg.SearchTimeout)
	}
	if !cfg.IsDevLike() {
		t.Fatalf("expected dev-like config")
	}
}

func TestLoadReadsDotEnvWithoutOverriding(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	content := "LLM_MODEL=from-file\nWORKER_CONCURRENCY=9\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("LLM_MODEL", "from-env")
	t.Setenv("WORKER_CONCURRENCY", "")
	os.Unsetenv("WORKER_CONCURRENCY")

	cfg := Load()
	if cfg.LLMModel != "from-env" {
		t.Fatalf("expected env to win, got %q", cfg.LLMModel)
	}
	if cfg.WorkerConcurrency != 9 {
		t.Fatalf("expected concurrency from file, got %d", cfg.WorkerConcurrency)
	}
}

func TestNormalizeEnv(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{raw: "prod", want: "production"},
		{raw: " Production ", want: "production"},
		{raw: "staging", want: "staging"},
		{raw: "local", want: "local"},
		{raw: "whatever", want: "dev"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			if got := normalizeEnv(tt.raw); got != tt.want {
				t.Fatalf("normalizeEnv(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}
