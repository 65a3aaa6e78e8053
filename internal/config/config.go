package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/PabloGalante/needlingo/internal/domain"
)

type Mode string

const (
	ModeLocal Mode = "local"
	ModeGCP   Mode = "gcp"
)

// LLM providers.
const (
	ProviderMock      = "mock"
	ProviderGemini    = "gemini"
	ProviderVertex    = "vertex"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Storage backends.
const (
	StorageMemory    = "memory"
	StorageSQLite    = "sqlite"
	StorageFirestore = "firestore"
)

type Config struct {
	Mode Mode `yaml:"mode"`

	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	LLMProvider     string        `yaml:"llm_provider"`
	ModelName       string        `yaml:"model_name"`
	GeminiAPIKey    string        `yaml:"gemini_api_key"`
	GCPProjectID    string        `yaml:"gcp_project"`
	GCPLocation     string        `yaml:"gcp_location"`
	AnthropicAPIKey string        `yaml:"anthropic_api_key"`
	OpenAIAPIKey    string        `yaml:"openai_api_key"`
	GatewayTimeout  time.Duration `yaml:"gateway_timeout"`

	StorageBackend string `yaml:"storage_backend"` // "memory", "sqlite" o "firestore"
	SQLitePath     string `yaml:"sqlite_path"`

	DefaultLanguage domain.Language `yaml:"default_language"`
	MaxTurns        int             `yaml:"max_turns"`
}

func defaults() *Config {
	return &Config{
		Mode:            ModeLocal,
		Port:            "8080",
		LogLevel:        "info",
		GCPLocation:     "us-central1",
		GatewayTimeout:  60 * time.Second,
		StorageBackend:  StorageMemory,
		SQLitePath:      "needlingo.db",
		DefaultLanguage: domain.LanguageChinese,
		MaxTurns:        domain.DefaultMaxTurns,
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getDurationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// Load builds the config from defaults, the optional YAML file named by
// NEEDLINGO_CONFIG, and NEEDLINGO_* env vars, in that order of precedence
// (env wins).
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("NEEDLINGO_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.Mode = Mode(getEnv("NEEDLINGO_MODE", string(cfg.Mode)))
	cfg.Port = getEnv("NEEDLINGO_PORT", getEnv("PORT", cfg.Port))
	cfg.LogLevel = getEnv("NEEDLINGO_LOG_LEVEL", cfg.LogLevel)

	cfg.ModelName = getEnv("NEEDLINGO_MODEL_NAME", cfg.ModelName)
	cfg.GeminiAPIKey = getEnv("NEEDLINGO_GEMINI_API_KEY", getEnv("GEMINI_API_KEY", cfg.GeminiAPIKey))
	cfg.GCPProjectID = getEnv("NEEDLINGO_GCP_PROJECT", cfg.GCPProjectID)
	cfg.GCPLocation = getEnv("NEEDLINGO_GCP_LOCATION", cfg.GCPLocation)
	cfg.AnthropicAPIKey = getEnv("NEEDLINGO_ANTHROPIC_API_KEY", getEnv("ANTHROPIC_API_KEY", cfg.AnthropicAPIKey))
	cfg.OpenAIAPIKey = getEnv("NEEDLINGO_OPENAI_API_KEY", getEnv("OPENAI_API_KEY", cfg.OpenAIAPIKey))

	cfg.StorageBackend = getEnv("NEEDLINGO_STORAGE_BACKEND", cfg.StorageBackend)
	cfg.SQLitePath = getEnv("NEEDLINGO_SQLITE_PATH", cfg.SQLitePath)
	cfg.DefaultLanguage = domain.Language(getEnv("NEEDLINGO_DEFAULT_LANGUAGE", string(cfg.DefaultLanguage)))

	var err error
	if cfg.MaxTurns, err = getIntEnv("NEEDLINGO_MAX_TURNS", cfg.MaxTurns); err != nil {
		return nil, err
	}
	if cfg.GatewayTimeout, err = getDurationEnv("NEEDLINGO_GATEWAY_TIMEOUT", cfg.GatewayTimeout); err != nil {
		return nil, err
	}

	// local mode defaults to the mock gateway
	def := cfg.LLMProvider
	if def == "" {
		def = ProviderMock
		if cfg.Mode == ModeGCP {
			def = ProviderVertex
		}
	}
	cfg.LLMProvider = getEnv("NEEDLINGO_LLM_PROVIDER", def)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// Validate rejects settings the binary cannot start with.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeLocal, ModeGCP:
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}

	switch c.LLMProvider {
	case ProviderMock:
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("NEEDLINGO_GEMINI_API_KEY must be set for the gemini provider")
		}
	case ProviderVertex:
		if c.GCPProjectID == "" || c.GCPLocation == "" {
			return fmt.Errorf("NEEDLINGO_GCP_PROJECT and NEEDLINGO_GCP_LOCATION must be set for the vertex provider")
		}
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("NEEDLINGO_ANTHROPIC_API_KEY must be set for the anthropic provider")
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("NEEDLINGO_OPENAI_API_KEY must be set for the openai provider")
		}
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLMProvider)
	}

	switch c.StorageBackend {
	case StorageMemory:
	case StorageSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("NEEDLINGO_SQLITE_PATH must be set for sqlite storage")
		}
	case StorageFirestore:
		if c.GCPProjectID == "" {
			return fmt.Errorf("NEEDLINGO_GCP_PROJECT is required for Firestore storage backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.StorageBackend)
	}

	if c.MaxTurns < 1 {
		return fmt.Errorf("max turns must be at least 1, got %d", c.MaxTurns)
	}
	if _, err := domain.ParseLanguage(string(c.DefaultLanguage)); err != nil {
		return fmt.Errorf("default language %q: %w", c.DefaultLanguage, err)
	}
	return nil
}
