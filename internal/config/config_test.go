package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

var configKeys = []string{
	"SERVER_PORT", "LOG_LEVEL", "ENV", "SENTRY_DSN", "DB_PATH", "SHUTDOWN_GRACE",
	"STAGE_TIMEOUT", "PIPELINE_ERROR_POLICY", "PROMPTS_PATH", "RESPONSE_FORMAT",
	"LLM_API_KEY", "OPENAI_API_KEY", "GROQ_API_KEY",
	"TITLE_PROVIDER", "TITLE_MODEL", "TITLE_ENDPOINT",
	"SPEECH_PROVIDER", "SPEECH_MODEL", "SPEECH_ENDPOINT",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "RATE_LIMIT_CLIENT_TTL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("unsetting %s: %v", key, err)
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.DBPath != "./data/speechwriter.db" {
		t.Errorf("expected default DB path, got %q", cfg.DBPath)
	}

	if cfg.ServerPort != 8080 {
		t.Errorf("expected default server port 8080, got %d", cfg.ServerPort)
	}

	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level info, got %q", cfg.LogLevel)
	}

	if cfg.Environment != "development" {
		t.Errorf("expected default environment development, got %q", cfg.Environment)
	}

	if cfg.ShutdownGrace != 10*time.Second {
		t.Errorf("expected shutdown grace 10s, got %s", cfg.ShutdownGrace)
	}

	if cfg.StageTimeout != 0 {
		t.Errorf("expected no stage timeout, got %s", cfg.StageTimeout)
	}

	if cfg.ErrorPolicy != PolicyFailFast {
		t.Errorf("expected fail-fast policy, got %q", cfg.ErrorPolicy)
	}

	if cfg.Title.Provider != ProviderOpenAI || cfg.Title.Model != "gpt-4o" {
		t.Errorf("expected title backend openai/gpt-4o, got %s/%s", cfg.Title.Provider, cfg.Title.Model)
	}

	if cfg.Speech.Provider != ProviderOllama || cfg.Speech.Model != "gemma:2b" {
		t.Errorf("expected speech backend ollama/gemma:2b, got %s/%s", cfg.Speech.Provider, cfg.Speech.Model)
	}

	if cfg.DefaultAPIKey() != "" {
		t.Errorf("expected empty API key, got %q", cfg.DefaultAPIKey())
	}

	if !cfg.RequiresCredential() {
		t.Errorf("expected hosted title backend to require a credential")
	}

	if cfg.RateLimit.Burst != 5 || cfg.RateLimit.RequestsPerSecond != 1 {
		t.Errorf("unexpected rate limit defaults: %+v", cfg.RateLimit)
	}
}

func TestLoadWithExplicitValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_PATH", "/tmp/speechwriter.db")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("ENV", "production")
	t.Setenv("STAGE_TIMEOUT", "45s")
	t.Setenv("PIPELINE_ERROR_POLICY", "fallback")
	t.Setenv("OPENAI_API_KEY", "openai-secret")
	t.Setenv("LLM_API_KEY", "secret")
	t.Setenv("TITLE_PROVIDER", "groq")
	t.Setenv("SPEECH_PROVIDER", "openai")
	t.Setenv("SPEECH_MODEL", "gpt-4o-mini")
	t.Setenv("SPEECH_ENDPOINT", "https://example.com/v1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.DBPath != "/tmp/speechwriter.db" {
		t.Errorf("expected DB path /tmp/speechwriter.db, got %q", cfg.DBPath)
	}

	if cfg.ServerPort != 9090 {
		t.Errorf("expected server port 9090, got %d", cfg.ServerPort)
	}

	if cfg.StageTimeout != 45*time.Second {
		t.Errorf("expected stage timeout 45s, got %s", cfg.StageTimeout)
	}

	if cfg.ErrorPolicy != PolicyFallback {
		t.Errorf("expected fallback policy, got %q", cfg.ErrorPolicy)
	}

	if cfg.DefaultAPIKey() != "secret" {
		t.Errorf("expected LLM_API_KEY to win, got %q", cfg.DefaultAPIKey())
	}

	if cfg.Title.Provider != ProviderGroq || cfg.Title.Model != "llama-3.1-8b-instant" {
		t.Errorf("expected groq title backend with its default model, got %s/%s", cfg.Title.Provider, cfg.Title.Model)
	}

	if cfg.Speech.Model != "gpt-4o-mini" || cfg.Speech.Endpoint != "https://example.com/v1" {
		t.Errorf("unexpected speech backend %+v", cfg.Speech)
	}
}

func TestRequiresCredentialForLocalOnlyBackends(t *testing.T) {
	clearEnv(t)
	t.Setenv("TITLE_PROVIDER", "ollama")
	t.Setenv("GROQ_API_KEY", "groq-secret")
	t.Setenv("SPEECH_PROVIDER", "groq")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.RequiresCredential() {
		t.Fatalf("expected no session credential when backends are local or keyed by GROQ_API_KEY")
	}
}

func TestLoadInvalidPort(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_PORT", "invalid")

	_, err := Load()
	if err == nil {
		t.Fatalf("expected error for invalid port, got nil")
	}

	if !strings.Contains(err.Error(), "parsing environment") {
		t.Fatalf("expected error to mention parsing environment, got %v", err)
	}
}

func TestLoadRejectsUnknownPolicy(t *testing.T) {
	clearEnv(t)
	t.Setenv("PIPELINE_ERROR_POLICY", "retry-forever")

	_, err := Load()
	if err == nil {
		t.Fatalf("expected error for unknown error policy")
	}

	if !strings.Contains(err.Error(), "validating configuration") {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	clearEnv(t)
	t.Setenv("SPEECH_PROVIDER", "carrier-pigeon")

	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestLoadRejectsNegativeStageTimeout(t *testing.T) {
	clearEnv(t)
	t.Setenv("STAGE_TIMEOUT", "-5s")

	_, err := Load()
	if err == nil {
		t.Fatalf("expected error for negative stage timeout")
	}

	if !strings.Contains(err.Error(), "STAGE_TIMEOUT") {
		t.Fatalf("expected error to mention STAGE_TIMEOUT, got %v", err)
	}
}
