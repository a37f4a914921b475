package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFile_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 3001 {
		t.Errorf("expected Port=3001, got %d", cfg.Server.Port)
	}
	if cfg.Retrieval.TopK != 3 {
		t.Errorf("expected TopK=3, got %d", cfg.Retrieval.TopK)
	}
	if cfg.Retrieval.MaxChunkSize != 1000 {
		t.Errorf("expected MaxChunkSize=1000, got %d", cfg.Retrieval.MaxChunkSize)
	}
	if cfg.Conversation.Backend != "json" {
		t.Errorf("expected json backend, got %q", cfg.Conversation.Backend)
	}
	if cfg.LLM.EmbeddingModel != "text-embedding-ada-002" {
		t.Errorf("unexpected embedding model %q", cfg.LLM.EmbeddingModel)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected level from file, got %q", cfg.Logging.Level)
	}
	if cfg.Persona == "" {
		t.Error("expected default persona")
	}
}

func TestLoadFile_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
retrieval:
  topK: 5
  contextBudget: 2000
conversation:
  backend: sqlite
  path: /tmp/log.db
rateLimit:
  maxRequestsPerMinute: 10
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Retrieval.TopK != 5 {
		t.Errorf("expected TopK=5, got %d", cfg.Retrieval.TopK)
	}
	if cfg.Retrieval.ContextBudget != 2000 {
		t.Errorf("expected ContextBudget=2000, got %d", cfg.Retrieval.ContextBudget)
	}
	if cfg.Conversation.Backend != "sqlite" || cfg.Conversation.Path != "/tmp/log.db" {
		t.Errorf("unexpected conversation config %+v", cfg.Conversation)
	}
	if cfg.RateLimit.MaxRequestsPerMinute != 10 {
		t.Errorf("expected 10 requests/min, got %d", cfg.RateLimit.MaxRequestsPerMinute)
	}
}

func TestLoadFile_Env(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("{}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("PORT", "8088")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.LLM.APIKey != "sk-test" {
		t.Errorf("expected api key from OPENAI_API_KEY, got %q", cfg.LLM.APIKey)
	}
	if cfg.Server.Port != 8088 {
		t.Errorf("expected Port=8088 from PORT, got %d", cfg.Server.Port)
	}
}

func TestLoadFile_InvalidBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("conversation:\n  backend: mongo\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}
