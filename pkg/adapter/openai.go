package adapter

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAI is the interface for OpenAI chat completion client
type OpenAI interface {
	// Generate sends a single user prompt with a system instruction and returns the text reply
	Generate(ctx context.Context, system, prompt string) (string, error)
}

type openaiClient struct {
	client    *openai.Client
	model     string
	maxTokens int64
}

// OpenAIOption is a functional option for OpenAI client
type OpenAIOption func(*openaiClient)

func WithOpenAIModel(model string) OpenAIOption {
	return func(c *openaiClient) {
		c.model = model
	}
}

// NewOpenAI creates a new OpenAI client. An empty apiKey falls back to OPENAI_API_KEY.
func NewOpenAI(apiKey string, opts ...OpenAIOption) OpenAI {
	var clientOpts []option.RequestOption
	if apiKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(apiKey))
	}
	client := openai.NewClient(clientOpts...)

	c := &openaiClient{
		client:    &client,
		model:     openai.ChatModelGPT4oMini,
		maxTokens: 1024,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *openaiClient) Generate(ctx context.Context, system, prompt string) (string, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(prompt))

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               c.model,
		MaxCompletionTokens: openai.Int(c.maxTokens),
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to call openai", goerr.V("model", c.model))
	}
	if len(resp.Choices) == 0 {
		return "", goerr.New("no choices returned", goerr.V("model", c.model))
	}

	return resp.Choices[0].Message.Content, nil
}
