package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"DATABASE_URL", "MEMORY_STORE", "CHARACTER_SOURCE", "DEBUG", "LOG_LEVEL", "BACKEND_TIMEOUT", "OPENAI_MODEL"} {
		t.Setenv(key, "")
	}
	cfg := Load()

	if cfg.BindAddr != ":8000" {
		t.Fatalf("bind addr = %q", cfg.BindAddr)
	}
	if cfg.MemoryStore != MemoryStoreInMemory {
		t.Fatalf("memory store = %q, want in-memory without DATABASE_URL", cfg.MemoryStore)
	}
	if cfg.CharacterSource != CharacterSourceHTTP {
		t.Fatalf("character source = %q", cfg.CharacterSource)
	}
	if cfg.HistoryLimit != 50 || cfg.BackendTimeout != 60*time.Second || cfg.EvaluatorTimeout != 15*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("log level = %v", cfg.LogLevel)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/rolechat")
	t.Setenv("MEMORY_STORE", "")
	t.Setenv("OPENAI_MODEL", "gpt-4o-mini")
	t.Setenv("CLAUDE_BASE_URL", "http://proxy.local/v1")
	t.Setenv("BACKEND_TIMEOUT", "5s")
	t.Setenv("MEMORY_WORKERS", "not-a-number")
	t.Setenv("DEBUG", "true")
	t.Setenv("LOG_LEVEL", "")

	cfg := Load()
	if cfg.MemoryStore != MemoryStorePostgres {
		t.Fatalf("memory store = %q, want postgres when DATABASE_URL is set", cfg.MemoryStore)
	}
	if cfg.ModelNames["openai"] != "gpt-4o-mini" || cfg.BaseURLs["claude"] != "http://proxy.local/v1" {
		t.Fatalf("provider overrides not read: %v %v", cfg.ModelNames, cfg.BaseURLs)
	}
	if cfg.BackendTimeout != 5*time.Second {
		t.Fatalf("backend timeout = %v", cfg.BackendTimeout)
	}
	if cfg.MemoryWorkers != 4 {
		t.Fatalf("invalid int should fall back to default, got %d", cfg.MemoryWorkers)
	}
	if !cfg.Debug || cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("debug not applied: %v %v", cfg.Debug, cfg.LogLevel)
	}
	if !cfg.NeedsPostgres() {
		t.Fatalf("expected postgres to be needed")
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		MemoryStore:     MemoryStoreInMemory,
		CharacterSource: CharacterSourceHTTP,
		FrontendAPIURL:  "http://localhost:3000/api",
		MemoryExtractor: ExtractorKeyword,
		MemoryWorkers:   1,
		MemoryQueueSize: 1,
		HistoryLimit:    50,
	}
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"postgres without url", func(c *Config) { c.MemoryStore = MemoryStorePostgres }, "DATABASE_URL"},
		{"database characters without url", func(c *Config) { c.CharacterSource = CharacterSourceDatabase }, "DATABASE_URL"},
		{"file without path", func(c *Config) { c.CharacterSource = CharacterSourceFile }, "CHARACTERS_FILE"},
		{"unknown store", func(c *Config) { c.MemoryStore = "redis" }, "MEMORY_STORE"},
		{"unknown extractor", func(c *Config) { c.MemoryExtractor = "nlp" }, "MEMORY_EXTRACTOR"},
		{"zero workers", func(c *Config) { c.MemoryWorkers = 0 }, "MEMORY_WORKERS"},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should validate: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %s, got %v", tt.want, err)
			}
		})
	}
}
