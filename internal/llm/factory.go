package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/agenthands/eventgraph/internal/config"
	"github.com/agenthands/eventgraph/internal/logging"
)

const defaultOllamaURL = "http://localhost:11434"

// NewProvider builds the generator and embedder for cfg.Provider. An empty
// provider returns (nil, nil): the system runs without an LLM.
func NewProvider(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (*Provider, error) {
	logger = logging.OrNop(logger)
	name := strings.ToLower(cfg.Provider)

	switch name {
	case "":
		return nil, nil

	case "openai":
		cfg.Provider = name
		c := NewOpenAIClient(cfg)
		return &Provider{Name: name, Generate: c, Embed: c}, nil

	case "gemini":
		c, err := NewGeminiClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &Provider{Name: name, Generate: c, Embed: c}, nil

	case "claude":
		c := NewClaudeClient(cfg)
		return &Provider{Name: name, Generate: c}, nil

	case "ollama":
		if cfg.BaseURL == "" {
			cfg.BaseURL = defaultOllamaURL
		}
		if !strings.HasSuffix(cfg.BaseURL, "/v1") {
			cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/") + "/v1"
		}
		// Ollama ignores the key but the client requires one
		if cfg.APIKey == "" {
			cfg.APIKey = "ollama"
		}
		cfg.Provider = name
		logger.Info("using ollama through its OpenAI-compatible API", zap.String("base_url", cfg.BaseURL))
		c := NewOpenAIClient(cfg)
		return &Provider{Name: name, Generate: c, Embed: c}, nil

	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", name)
	}
}
