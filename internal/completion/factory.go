package completion

import (
	"fmt"
	"time"

	"github.com/hyperjump/tanya/internal/config"
	"go.uber.org/zap"
)

const (
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// mockReply is returned by the mock provider.
const mockReply = "This is a canned reply from the mock completion provider."

// New creates the completer selected by cfg.Provider.
func New(cfg config.CompletionConfig, logger *zap.Logger) (Completer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Provider {
	case ProviderOpenAI, "":
		return NewOpenAICompleter(OpenAIConfig{
			APIKey:  config.APIKey(cfg.APIKeyEnv),
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: time.Duration(cfg.TimeoutSecs) * time.Second,
			Logger:  logger.Named("completion"),
		})
	case ProviderMock:
		return &MockCompleter{Reply: mockReply}, nil
	default:
		return nil, fmt.Errorf("unknown completion provider: %s (supported: openai, mock)", cfg.Provider)
	}
}
