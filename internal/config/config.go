package config

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
)

// Provider names accepted for the title and speech backends.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderGroq   = "groq"
)

// Error policies shared by both pipeline stages.
const (
	PolicyFailFast = "fail-fast"
	PolicyFallback = "fallback"
)

// Config holds runtime configuration values for the Speechwriter processes.
// It is built once at startup and treated as read-only afterwards.
type Config struct {
	ServerPort     int           `env:"SERVER_PORT" envDefault:"8080" validate:"min=1,max=65535"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	Environment    string        `env:"ENV" envDefault:"development"`
	SentryDSN      string        `env:"SENTRY_DSN"`
	DBPath         string        `env:"DB_PATH" envDefault:"./data/speechwriter.db" validate:"required"`
	ShutdownGrace  time.Duration `env:"SHUTDOWN_GRACE" envDefault:"10s"`
	StageTimeout   time.Duration `env:"STAGE_TIMEOUT" envDefault:"0s"`
	ErrorPolicy    string        `env:"PIPELINE_ERROR_POLICY" envDefault:"fail-fast" validate:"oneof=fail-fast fallback"`
	PromptsPath    string        `env:"PROMPTS_PATH"`
	ResponseFormat string        `env:"RESPONSE_FORMAT" envDefault:"json_object" validate:"oneof=json_object json_schema"`
	LLMAPIKey      string        `env:"LLM_API_KEY"`
	OpenAIAPIKey   string        `env:"OPENAI_API_KEY"`
	GroqAPIKey     string        `env:"GROQ_API_KEY"`
	Title          Backend       `envPrefix:"TITLE_"`
	Speech         Backend       `envPrefix:"SPEECH_"`
	RateLimit      RateLimit     `envPrefix:"RATE_LIMIT_"`
}

// Backend selects the text-generation service used by one pipeline stage.
type Backend struct {
	Provider string `env:"PROVIDER" validate:"oneof=openai ollama groq"`
	Model    string `env:"MODEL" validate:"required"`
	Endpoint string `env:"ENDPOINT" validate:"omitempty,url"`
}

// RateLimit configures the per-client HTTP limiter.
type RateLimit struct {
	RequestsPerSecond float64       `env:"RPS" envDefault:"1" validate:"gt=0"`
	Burst             int           `env:"BURST" envDefault:"5" validate:"gt=0"`
	ClientTTL         time.Duration `env:"CLIENT_TTL" envDefault:"10m"`
}

const (
	defaultTitleProvider  = ProviderOpenAI
	defaultSpeechProvider = ProviderOllama
)

var defaultModels = map[string]string{
	ProviderOpenAI: "gpt-4o",
	ProviderOllama: "gemma:2b",
	ProviderGroq:   "llama-3.1-8b-instant",
}

var validate = validator.New()

// Load reads configuration values from environment variables, applying defaults where necessary.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, eris.Wrap(err, "parsing environment")
	}

	applyBackendDefaults(&cfg.Title, defaultTitleProvider)
	applyBackendDefaults(&cfg.Speech, defaultSpeechProvider)
	cfg.ErrorPolicy = strings.ToLower(strings.TrimSpace(cfg.ErrorPolicy))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the loaded values for consistency.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return eris.Wrap(err, "validating configuration")
	}

	if c.StageTimeout < 0 {
		return eris.Errorf("invalid STAGE_TIMEOUT value: %s", c.StageTimeout)
	}
	if c.ShutdownGrace <= 0 {
		return eris.Errorf("invalid SHUTDOWN_GRACE value: %s", c.ShutdownGrace)
	}
	if c.RateLimit.ClientTTL <= 0 {
		return eris.Errorf("invalid RATE_LIMIT_CLIENT_TTL value: %s", c.RateLimit.ClientTTL)
	}

	return nil
}

// DefaultAPIKey returns the process-wide hosted backend credential, if any.
// LLM_API_KEY wins over OPENAI_API_KEY.
func (c *Config) DefaultAPIKey() string {
	if key := strings.TrimSpace(c.LLMAPIKey); key != "" {
		return key
	}
	return strings.TrimSpace(c.OpenAIAPIKey)
}

// RequiresCredential reports whether any stage talks to a hosted backend that needs the
// session credential. Local Ollama stages do not, and Groq stages only do when
// GROQ_API_KEY is unset.
func (c *Config) RequiresCredential() bool {
	for _, b := range []Backend{c.Title, c.Speech} {
		switch b.Provider {
		case ProviderOpenAI:
			return true
		case ProviderGroq:
			if strings.TrimSpace(c.GroqAPIKey) == "" {
				return true
			}
		}
	}
	return false
}

func applyBackendDefaults(b *Backend, provider string) {
	b.Provider = strings.ToLower(strings.TrimSpace(b.Provider))
	if b.Provider == "" {
		b.Provider = provider
	}

	b.Model = strings.TrimSpace(b.Model)
	if b.Model == "" {
		b.Model = defaultModels[b.Provider]
	}

	b.Endpoint = strings.TrimSpace(b.Endpoint)
}
