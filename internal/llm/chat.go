package llm

import (
	"context"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/shared"
	"github.com/openai/openai-go/v2/shared/constant"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
)

// ResponseFormat selects how JSON output is requested from OpenAI-compatible backends.
type ResponseFormat string

const (
	// FormatJSONObject asks for any JSON object; the key is enforced by the prompt.
	// Ollama and most OpenAI-compatible servers support it.
	FormatJSONObject ResponseFormat = "json_object"
	// FormatJSONSchema sends the reflected schema in strict mode.
	FormatJSONSchema ResponseFormat = "json_schema"
)

// ChatOptions configures the OpenAI-compatible completer.
type ChatOptions struct {
	Client      *Client
	Model       string
	Temperature float64
	Format      ResponseFormat
	Label       string
}

type chatCompleter struct {
	client      *Client
	logger      *logrus.Logger
	model       string
	temperature float64
	format      ResponseFormat
	label       string
}

const defaultChatTemperature = 0.7

// NewChatCompleter constructs a Completer backed by chat completions.
func NewChatCompleter(opts ChatOptions) (Completer, error) {
	if opts.Client == nil {
		return nil, eris.New("llm client is required")
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		return nil, eris.New("chat model is required")
	}

	temperature := opts.Temperature
	if temperature <= 0 {
		temperature = defaultChatTemperature
	}

	format := opts.Format
	switch format {
	case "":
		format = FormatJSONObject
	case FormatJSONObject, FormatJSONSchema:
	default:
		return nil, eris.Errorf("unsupported response format: %s", format)
	}

	label := strings.TrimSpace(opts.Label)
	if label == "" {
		label = "openai"
	}

	return &chatCompleter{
		client:      opts.Client,
		logger:      opts.Client.logger,
		model:       model,
		temperature: temperature,
		format:      format,
		label:       label,
	}, nil
}

func (c *chatCompleter) Name() string {
	return c.label + ":" + c.model
}

func (c *chatCompleter) Complete(ctx context.Context, req Request) (string, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "", eris.New("prompt is required")
	}

	fields := logrus.Fields{"backend": c.Name()}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if system := strings.TrimSpace(req.System); system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(prompt))

	params := openai.ChatCompletionNewParams{
		Model:          shared.ChatModel(c.model),
		Messages:       messages,
		ResponseFormat: c.responseFormat(req.Schema),
		Temperature:    openai.Float(c.temperature),
	}

	completion, err := c.client.chat.New(ctx, params)
	if err != nil {
		logError(c.logger, fields, err, "requesting chat completion")
		return "", eris.Wrapf(ErrRequestFailed, "requesting chat completion from %s: %v", c.Name(), err)
	}

	if completion == nil || len(completion.Choices) == 0 {
		err := eris.Wrap(ErrUnusableReply, "llm completion returned no choices")
		logError(c.logger, fields, err, "processing chat completion")
		return "", err
	}

	choice := completion.Choices[0]
	if reason := strings.TrimSpace(choice.FinishReason); strings.EqualFold(reason, "content_filter") {
		err := eris.Wrap(ErrUnusableReply, "llm blocked the request via content filter")
		logError(c.logger, fields, err, "completion blocked")
		return "", err
	}

	if refusal := strings.TrimSpace(choice.Message.Refusal); refusal != "" {
		err := eris.Wrapf(ErrUnusableReply, "llm refused to answer: %s", refusal)
		logError(c.logger, fields, err, "completion refused")
		return "", err
	}

	content := strings.TrimSpace(choice.Message.Content)
	if content == "" {
		err := eris.Wrap(ErrUnusableReply, "llm response content is empty")
		logError(c.logger, fields, err, "empty llm response")
		return "", err
	}

	return content, nil
}

func (c *chatCompleter) responseFormat(schema *Schema) openai.ChatCompletionNewParamsResponseFormatUnion {
	if c.format == FormatJSONSchema && schema != nil {
		jsonSchema := openai.ResponseFormatJSONSchemaJSONSchemaParam{
			Name:   schema.Name,
			Strict: openai.Bool(true),
			Schema: schema.Definition,
		}
		if schema.Description != "" {
			jsonSchema.Description = openai.String(schema.Description)
		}

		return openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: jsonSchema,
				Type:       constant.ValueOf[constant.JSONSchema](),
			},
		}
	}

	return openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONObject: &shared.ResponseFormatJSONObjectParam{
			Type: constant.ValueOf[constant.JSONObject](),
		},
	}
}
