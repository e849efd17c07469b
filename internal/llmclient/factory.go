// File: internal/llmclient/factory.go
package llmclient

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/loupe-sh/loupe-cli/api/schemas"
	"github.com/loupe-sh/loupe-cli/internal/config"
)

// NewClient is a factory function that creates a CompletionClient for the
// given provider, using the provider's section of the LLM configuration with
// the supplied credential.
func NewClient(provider schemas.Provider, credential string, cfg config.LLMConfig, logger *zap.Logger) (schemas.CompletionClient, error) {
	switch provider {
	case schemas.ProviderGemini:
		gc := cfg.Gemini
		gc.APIKey = credential
		return NewGeminiClient(gc, logger)
	case schemas.ProviderGateway:
		gw := cfg.Gateway
		gw.APIKey = credential
		return NewGatewayClient(gw, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: %q. Supported: [%s, %s]",
			provider, schemas.ProviderGemini, schemas.ProviderGateway)
	}
}
