package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PabloGalante/needlingo/internal/domain"
)

// clearEnv blanks every variable Load reads so the host environment cannot
// leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"NEEDLINGO_CONFIG",
		"NEEDLINGO_MODE",
		"NEEDLINGO_PORT",
		"PORT",
		"NEEDLINGO_LOG_LEVEL",
		"NEEDLINGO_MODEL_NAME",
		"NEEDLINGO_GEMINI_API_KEY",
		"GEMINI_API_KEY",
		"NEEDLINGO_GCP_PROJECT",
		"NEEDLINGO_GCP_LOCATION",
		"NEEDLINGO_ANTHROPIC_API_KEY",
		"ANTHROPIC_API_KEY",
		"NEEDLINGO_OPENAI_API_KEY",
		"OPENAI_API_KEY",
		"NEEDLINGO_STORAGE_BACKEND",
		"NEEDLINGO_SQLITE_PATH",
		"NEEDLINGO_DEFAULT_LANGUAGE",
		"NEEDLINGO_MAX_TURNS",
		"NEEDLINGO_GATEWAY_TIMEOUT",
		"NEEDLINGO_LLM_PROVIDER",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLMProvider != ProviderMock || cfg.StorageBackend != StorageMemory {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.MaxTurns != domain.DefaultMaxTurns || cfg.DefaultLanguage != domain.LanguageChinese {
		t.Fatalf("unexpected session defaults: %+v", cfg)
	}
	if cfg.GatewayTimeout != 60*time.Second {
		t.Fatalf("unexpected timeout: %s", cfg.GatewayTimeout)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "needlingo.yaml")
	content := `
port: "9090"
llm_provider: anthropic
anthropic_api_key: from-file
storage_backend: sqlite
sqlite_path: /tmp/needlingo-test.db
max_turns: 5
gateway_timeout: 15s
default_language: en
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	clearEnv(t)
	t.Setenv("NEEDLINGO_CONFIG", path)
	t.Setenv("NEEDLINGO_MAX_TURNS", "7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9090" || cfg.LLMProvider != ProviderAnthropic || cfg.AnthropicAPIKey != "from-file" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.MaxTurns != 7 {
		t.Fatalf("env should win over file, got %d", cfg.MaxTurns)
	}
	if cfg.GatewayTimeout != 15*time.Second || cfg.DefaultLanguage != domain.LanguageEnglish {
		t.Fatalf("unexpected values: %+v", cfg)
	}
}

func TestLoadProviderKeyFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("NEEDLINGO_LLM_PROVIDER", ProviderAnthropic)
	t.Setenv("ANTHROPIC_API_KEY", "from-env")
	t.Setenv("PORT", "7070")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AnthropicAPIKey != "from-env" || cfg.Port != "7070" {
		t.Fatalf("fallback env vars not applied: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"ok", func(c *Config) { c.LLMProvider = ProviderMock }, ""},
		{"unknown provider", func(c *Config) { c.LLMProvider = "llama" }, "unknown llm provider"},
		{"gemini without key", func(c *Config) { c.LLMProvider = ProviderGemini }, "GEMINI_API_KEY"},
		{"openai without key", func(c *Config) { c.LLMProvider = ProviderOpenAI }, "OPENAI_API_KEY"},
		{"vertex without project", func(c *Config) { c.LLMProvider = ProviderVertex }, "GCP_PROJECT"},
		{"firestore without project", func(c *Config) {
			c.LLMProvider = ProviderMock
			c.StorageBackend = StorageFirestore
		}, "Firestore"},
		{"zero turns", func(c *Config) {
			c.LLMProvider = ProviderMock
			c.MaxTurns = 0
		}, "max turns"},
		{"bad log level", func(c *Config) {
			c.LLMProvider = ProviderMock
			c.LogLevel = "loud"
		}, "log level"},
		{"bad language", func(c *Config) {
			c.LLMProvider = ProviderMock
			c.DefaultLanguage = "fr"
		}, "default language"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
