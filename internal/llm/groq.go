package llm

import (
	"context"
	"strings"

	"github.com/conneroisu/groq-go"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
)

// GroqOptions configures the Groq-hosted completer.
type GroqOptions struct {
	APIKey string
	Model  string
	Logger *logrus.Logger
}

type groqCompleter struct {
	send   func(ctx context.Context, req groq.ChatCompletionRequest) (string, error)
	logger *logrus.Logger
	model  string
}

// NewGroqCompleter constructs a Completer that calls Groq in JSON mode.
func NewGroqCompleter(opts GroqOptions) (Completer, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, eris.New("groq api key is required")
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		return nil, eris.New("groq model is required")
	}

	client, err := groq.NewClient(apiKey)
	if err != nil {
		return nil, eris.Wrap(err, "creating groq client")
	}

	send := func(ctx context.Context, req groq.ChatCompletionRequest) (string, error) {
		resp, err := client.ChatCompletion(ctx, req)
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", nil
		}
		return resp.Choices[0].Message.Content, nil
	}

	return &groqCompleter{send: send, logger: opts.Logger, model: model}, nil
}

func (g *groqCompleter) Name() string {
	return "groq:" + g.model
}

func (g *groqCompleter) Complete(ctx context.Context, req Request) (string, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "", eris.New("prompt is required")
	}

	fields := logrus.Fields{"backend": g.Name()}

	messages := make([]groq.ChatCompletionMessage, 0, 2)
	if system := strings.TrimSpace(req.System); system != "" {
		messages = append(messages, groq.ChatCompletionMessage{Role: groq.RoleSystem, Content: system})
	}
	messages = append(messages, groq.ChatCompletionMessage{Role: groq.RoleUser, Content: prompt})

	content, err := g.send(ctx, groq.ChatCompletionRequest{
		Model:          groq.ChatModel(g.model),
		Messages:       messages,
		ResponseFormat: &groq.ChatResponseFormat{Type: "json_object"},
	})
	if err != nil {
		logError(g.logger, fields, err, "requesting groq completion")
		return "", eris.Wrapf(ErrRequestFailed, "requesting completion from %s: %v", g.Name(), err)
	}

	content = strings.TrimSpace(content)
	if content == "" {
		err := eris.Wrap(ErrUnusableReply, "groq response content is empty")
		logError(g.logger, fields, err, "empty groq response")
		return "", err
	}

	return content, nil
}
