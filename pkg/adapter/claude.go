package adapter

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/m-mizutani/goerr/v2"
)

// Claude is the interface for Claude API client
type Claude interface {
	// Generate sends a single user prompt with a system instruction and returns the text reply
	Generate(ctx context.Context, system, prompt string) (string, error)
}

type claudeClient struct {
	client    *anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// ClaudeOption is a functional option for Claude client
type ClaudeOption func(*claudeClient)

func WithClaudeModel(model string) ClaudeOption {
	return func(c *claudeClient) {
		c.model = anthropic.Model(model)
	}
}

func WithClaudeMaxTokens(n int64) ClaudeOption {
	return func(c *claudeClient) {
		c.maxTokens = n
	}
}

// NewClaude creates a new Claude API client
func NewClaude(apiKey string, opts ...ClaudeOption) Claude {
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)
	c := &claudeClient{
		client:    &client,
		model:     anthropic.ModelClaude3_5Sonnet20241022,
		maxTokens: 1024,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *claudeClient) Generate(ctx context.Context, system, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return "", goerr.Wrap(err, "failed to call claude", goerr.V("model", c.model))
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.AsText().Text)
		}
	}
	return b.String(), nil
}
