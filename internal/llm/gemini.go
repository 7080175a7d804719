package llm

import (
	"context"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/agenthands/eventgraph/internal/config"
)

const defaultGeminiEmbeddingModel = "text-embedding-004"

type GeminiClient struct {
	client   *genai.Client
	gen      *genai.GenerativeModel
	embedder *genai.EmbeddingModel
}

func NewGeminiClient(ctx context.Context, cfg config.LLMConfig) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, providerError("gemini", "connect", err)
	}
	em := cfg.EmbeddingModel
	if em == "" {
		em = defaultGeminiEmbeddingModel
	}

	gen := client.GenerativeModel(cfg.Model)
	gen.SetTemperature(generationTemperature)
	gen.SetMaxOutputTokens(maxOutputTokens)
	gen.SystemInstruction = genai.NewUserContent(genai.Text(analystInstruction))

	embedder := client.EmbeddingModel(em)
	embedder.TaskType = genai.TaskTypeSemanticSimilarity

	return &GeminiClient{client: client, gen: gen, embedder: embedder}, nil
}

func (c *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.gen.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", providerError("gemini", "generate", err)
	}

	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				b.WriteString(string(txt))
			}
		}
		if b.Len() > 0 {
			return b.String(), nil
		}
	}
	return "", providerError("gemini", "generate", errEmptyCompletion)
}

func (c *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := c.embedder.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, providerError("gemini", "embed", err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, providerError("gemini", "embed", errEmptyEmbedding)
	}
	return res.Embedding.Values, nil
}

func (c *GeminiClient) Close() error {
	return c.client.Close()
}
