package llm

import (
	"net/http"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
)

// Provider identifiers understood by NewCompleter.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderGroq   = "groq"
)

// BackendSettings selects and configures one text-generation backend.
type BackendSettings struct {
	Provider    string
	Model       string
	Endpoint    string
	APIKey      string
	Format      ResponseFormat
	Temperature float64
	HTTPClient  *http.Client
	Logger      *logrus.Logger
}

// NewCompleter builds the Completer for settings.Provider.
func NewCompleter(settings BackendSettings) (Completer, error) {
	provider := strings.ToLower(strings.TrimSpace(settings.Provider))

	switch provider {
	case ProviderOpenAI, ProviderOllama:
		local := provider == ProviderOllama
		apiKey := settings.APIKey
		if local {
			// The hosted session credential is never forwarded to a local server.
			apiKey = ""
		}

		client, err := NewClient(ClientOptions{
			APIKey:     apiKey,
			BaseURL:    settings.Endpoint,
			Local:      local,
			HTTPClient: settings.HTTPClient,
			Logger:     settings.Logger,
		})
		if err != nil {
			return nil, eris.Wrapf(err, "creating %s client", provider)
		}

		return NewChatCompleter(ChatOptions{
			Client:      client,
			Model:       settings.Model,
			Temperature: settings.Temperature,
			Format:      settings.Format,
			Label:       provider,
		})
	case ProviderGroq:
		return NewGroqCompleter(GroqOptions{
			APIKey: settings.APIKey,
			Model:  settings.Model,
			Logger: settings.Logger,
		})
	default:
		return nil, eris.Errorf("unsupported llm provider: %q", settings.Provider)
	}
}
