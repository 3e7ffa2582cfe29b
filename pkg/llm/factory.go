package llm

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/text2sql/pkg/config"
)

// NewFromConfig creates the LLM client selected by the provider setting.
// Returns LLMClient interface to enable dependency injection of mocks.
func NewFromConfig(cfg *config.LLMConfig, logger *zap.Logger) (LLMClient, error) {
	clientCfg := &Config{
		Endpoint:          cfg.BaseURL,
		Model:             cfg.Model,
		APIKey:            cfg.APIKey,
		MaxTokens:         cfg.MaxTokens,
		Timeout:           time.Duration(cfg.TimeoutSeconds) * time.Second,
		BreakerThreshold:  cfg.BreakerThreshold,
		BreakerResetAfter: time.Duration(cfg.BreakerResetAfterSeconds) * time.Second,
	}

	switch cfg.Provider {
	case "openai":
		client, err := NewClient(clientCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}
		return client, nil
	case "anthropic":
		client, err := NewAnthropicClient(clientCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("create anthropic client: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}
