package llm

import (
	"fmt"

	"go.uber.org/zap"
)

// Provider names accepted by NewClassifier.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// NewClassifier creates a Classifier for the configured provider.
// "openai" covers any OpenAI-compatible endpoint (including self-hosted ones).
func NewClassifier(provider string, cfg *Config, logger *zap.Logger) (Classifier, error) {
	switch provider {
	case ProviderOpenAI, "":
		return NewClient(cfg, logger)
	case ProviderAnthropic:
		return NewAnthropicClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", provider)
	}
}
