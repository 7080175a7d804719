package llm

import (
	"context"

	"github.com/sashabaranov/go-openai"

	"github.com/agenthands/eventgraph/internal/config"
)

// OpenAIClient talks to OpenAI or any OpenAI-compatible endpoint (Ollama).
type OpenAIClient struct {
	client         *openai.Client
	name           string
	model          string
	embeddingModel openai.EmbeddingModel
}

func NewOpenAIClient(cfg config.LLMConfig) *OpenAIClient {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	em := openai.SmallEmbedding3
	if cfg.EmbeddingModel != "" {
		em = openai.EmbeddingModel(cfg.EmbeddingModel)
	}
	name := cfg.Provider
	if name == "" {
		name = "openai"
	}
	return &OpenAIClient{
		client:         openai.NewClientWithConfig(oc),
		name:           name,
		model:          cfg.Model,
		embeddingModel: em,
	}
}

func (c *OpenAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: generationTemperature,
		MaxTokens:   maxOutputTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: analystInstruction},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", providerError(c.name, "generate", err)
	}
	for _, choice := range resp.Choices {
		if choice.Message.Content != "" {
			return choice.Message.Content, nil
		}
	}
	return "", providerError(c.name, "generate", errEmptyCompletion)
}

func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: c.embeddingModel,
	})
	if err != nil {
		return nil, providerError(c.name, "embed", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, providerError(c.name, "embed", errEmptyEmbedding)
	}
	return resp.Data[0].Embedding, nil
}
