package llm

import (
	"context"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
)

const (
	openAIBaseURL = "https://api.openai.com/v1"
	ollamaBaseURL = "http://localhost:11434/v1"

	// Ollama's OpenAI-compatible endpoint ignores the bearer token but the SDK
	// still sends one.
	ollamaPlaceholderKey = "ollama"
)

// ClientOptions controls how an OpenAI-compatible client is initialised.
type ClientOptions struct {
	APIKey     string
	BaseURL    string
	Local      bool
	HTTPClient *http.Client
	Logger     *logrus.Logger
}

// Client wraps the OpenAI SDK chat service shared by the hosted and local completers.
type Client struct {
	chat    chatCompletionClient
	logger  *logrus.Logger
	baseURL string
}

type chatCompletionClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// NewClient constructs a Client. Hosted clients require an API key; local clients
// (Ollama) default to the loopback endpoint and a placeholder key.
func NewClient(opts ClientOptions) (*Client, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	baseURL := strings.TrimSpace(opts.BaseURL)

	if opts.Local {
		if apiKey == "" {
			apiKey = ollamaPlaceholderKey
		}
		if baseURL == "" {
			baseURL = ollamaBaseURL
		}
	}

	if apiKey == "" {
		return nil, eris.New("llm api key is required")
	}
	if baseURL == "" {
		baseURL = openAIBaseURL
	}

	requestOptions := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0),
	}

	if opts.HTTPClient != nil {
		requestOptions = append(requestOptions, option.WithHTTPClient(opts.HTTPClient))
	}

	apiClient := openai.NewClient(requestOptions...)

	return &Client{
		chat:    &apiClient.Chat.Completions,
		logger:  opts.Logger,
		baseURL: baseURL,
	}, nil
}

// Logger exposes the logger associated with the client.
func (c *Client) Logger() *logrus.Logger {
	return c.logger
}

// BaseURL returns the configured base URL for outbound requests.
func (c *Client) BaseURL() string {
	return c.baseURL
}
