package ai

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/invoiceai/invoiceai-server/internal/config"
)

// Provider bundles extraction and chat behind one implementation.
type Provider interface {
	Extractor
	Chatter
}

// NewProvider builds the configured AI provider. Config validation has
// already guaranteed the selected provider carries an API key.
func NewProvider(cfg *config.AIConfig, logger *zap.Logger) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIProvider(cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.Timeout, logger), nil
	case "claude":
		return NewClaudeProvider(cfg.Claude.APIKey, cfg.Claude.Model, cfg.Timeout, logger), nil
	case "gemini":
		return NewGeminiProvider(cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.Timeout, logger), nil
	default:
		return nil, fmt.Errorf("unknown ai provider: %s", cfg.Provider)
	}
}
