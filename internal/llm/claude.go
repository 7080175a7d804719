package llm

import (
	"context"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"

	"github.com/agenthands/eventgraph/internal/config"
)

// ClaudeClient only generates text; the vector index then falls back to
// the hash embedder.
type ClaudeClient struct {
	client *anthropic.Client
	model  string
}

func NewClaudeClient(cfg config.LLMConfig) *ClaudeClient {
	var opts []anthropic.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}
	return &ClaudeClient{
		client: anthropic.NewClient(cfg.APIKey, opts...),
		model:  cfg.Model,
	}
}

func (c *ClaudeClient) Generate(ctx context.Context, prompt string) (string, error) {
	temperature := float32(generationTemperature)
	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(c.model),
		System:      analystInstruction,
		Temperature: &temperature,
		MaxTokens:   maxOutputTokens,
		Messages: []anthropic.Message{
			anthropic.NewUserTextMessage(prompt),
		},
	})
	if err != nil {
		return "", providerError("claude", "generate", err)
	}

	var b strings.Builder
	for _, content := range resp.Content {
		if content.Text != nil {
			b.WriteString(*content.Text)
		}
	}
	if b.Len() == 0 {
		return "", providerError("claude", "generate", errEmptyCompletion)
	}
	return b.String(), nil
}

func (c *ClaudeClient) Embed(context.Context, string) ([]float32, error) {
	return nil, ErrEmbeddingsUnsupported
}
