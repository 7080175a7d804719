// Package llm adapts hosted language models to the two jobs the pattern
// layer gives them: naming learnt patterns and re-ranking semantic search
// hits. Embedders feed the vector index.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrEmbeddingsUnsupported is returned by providers without an embeddings API.
var ErrEmbeddingsUnsupported = errors.New("embeddings not supported by provider")

// analystInstruction is sent as the system message of every generation.
const analystInstruction = "You analyse recurring patterns in business and world events. " +
	"Answer tersely and follow the requested output format exactly."

const (
	generationTemperature = 0.2
	maxOutputTokens       = 1024
)

type LLMClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type EmbedderClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type RerankerClient interface {
	Rank(ctx context.Context, query string, documents []string) ([]int, error)
}

// Provider bundles the capabilities one configured backend offers. Either
// field may be nil when the backend lacks it.
type Provider struct {
	Name     string
	Generate LLMClient
	Embed    EmbedderClient
}

// Close releases the provider's connections when its client holds any.
func (p *Provider) Close() error {
	if c, ok := p.Generate.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

func providerError(provider, op string, err error) error {
	return fmt.Errorf("%s %s: %w", provider, op, err)
}

var (
	errEmptyCompletion = errors.New("empty completion")
	errEmptyEmbedding  = errors.New("empty embedding")
)
