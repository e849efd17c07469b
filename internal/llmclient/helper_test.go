// File: internal/llmclient/helper_test.go
package llmclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/loupe-sh/loupe-cli/api/schemas"
	"github.com/loupe-sh/loupe-cli/internal/config"
)

// setupTestLogger provides a logger wired into the test's lifecycle.
func setupTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	return zaptest.NewLogger(t)
}

// MockCompletionClient is a testify mock of schemas.CompletionClient.
type MockCompletionClient struct {
	mock.Mock
	Name string
}

func (m *MockCompletionClient) GenerateCompletion(ctx context.Context, systemPrompt, userPrompt, model string) (schemas.CompletionResult, error) {
	args := m.Called(ctx, systemPrompt, userPrompt, model)
	return args.Get(0).(schemas.CompletionResult), args.Error(1)
}

func (m *MockCompletionClient) GenerateCompletionStream(ctx context.Context, systemPrompt, userPrompt, model string) (<-chan string, <-chan error) {
	args := m.Called(ctx, systemPrompt, userPrompt, model)
	return args.Get(0).(<-chan string), args.Get(1).(<-chan error)
}

// staticStream builds a pre-closed chunk/error channel pair for mocks.
func staticStream(chunks ...string) (<-chan string, <-chan error) {
	contentChan := make(chan string, len(chunks))
	errorChan := make(chan error, 1)
	for _, c := range chunks {
		contentChan <- c
	}
	close(contentChan)
	close(errorChan)
	return contentChan, errorChan
}

// testLLMConfig returns an LLM configuration pointing both providers at the
// given base URL (an httptest server in practice).
func testLLMConfig(baseURL string) config.LLMConfig {
	cfg := config.NewDefaultConfig().LLM
	cfg.Gemini.Endpoint = baseURL
	cfg.Gateway.BaseURL = baseURL
	cfg.Gateway.RequestsPerSecond = 1000 // Keep tests fast.
	return cfg
}

// drainStream collects a full chunk stream and its terminal error.
func drainStream(contentChan <-chan string, errorChan <-chan error) ([]string, error) {
	var chunks []string
	for c := range contentChan {
		chunks = append(chunks, c)
	}
	return chunks, <-errorChan
}
