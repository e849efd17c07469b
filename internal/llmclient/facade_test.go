// File: internal/llmclient/facade_test.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/loupe-sh/loupe-cli/api/schemas"
	"github.com/loupe-sh/loupe-cli/internal/config"
)

// setupFacade builds a facade whose factory hands out the given mock client
// regardless of provider, so routing and normalization can be tested without
// a network.
func setupFacade(t *testing.T, cfg config.LLMConfig, client schemas.CompletionClient) *Facade {
	t.Helper()
	f := NewFacade(cfg, setupTestLogger(t))
	f.factory = func(schemas.Provider, string, config.LLMConfig, *zap.Logger) (schemas.CompletionClient, error) {
		return client, nil
	}
	return f
}

func TestFacade_CompletionBeforeInitialize(t *testing.T) {
	f := NewFacade(testLLMConfig("http://unused"), setupTestLogger(t))

	_, err := f.GenerateCompletion(context.Background(), "s", "u", "")
	require.ErrorIs(t, err, ErrNotInitialized)

	contentChan, errorChan := f.GenerateCompletionStream(context.Background(), "s", "u", "")
	chunks, err := drainStream(contentChan, errorChan)
	assert.Empty(t, chunks)
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestFacade_InitializeAndRoute(t *testing.T) {
	mockClient := new(MockCompletionClient)
	cfg := testLLMConfig("http://unused")
	f := setupFacade(t, cfg, mockClient)

	require.False(t, f.IsInitialized(""))
	require.NoError(t, f.Initialize("", "secret"))
	require.True(t, f.IsInitialized(""))
	require.True(t, f.IsInitialized(schemas.ProviderGemini), "empty provider resolves to the configured active provider")
	assert.False(t, f.IsInitialized(schemas.ProviderGateway))

	mockClient.On("GenerateCompletion", mock.Anything, "sys", "user", "gemini-2.5-flash").
		Return(schemas.CompletionResult{Content: "routed"}, nil).Once()

	result, err := f.GenerateCompletion(context.Background(), "sys", "user", "")
	require.NoError(t, err)
	assert.Equal(t, "routed", result.Content)
	mockClient.AssertExpectations(t)
}

// Gateway-convention model ids carry a vendor prefix that the direct provider
// never uses; the facade strips it when dispatching to Gemini.
func TestFacade_ModelNormalization(t *testing.T) {
	mockClient := new(MockCompletionClient)
	cfg := testLLMConfig("http://unused")
	f := setupFacade(t, cfg, mockClient)
	require.NoError(t, f.Initialize("", "secret"))

	mockClient.On("GenerateCompletion", mock.Anything, "", "u", "gemini-2.0-flash-001").
		Return(schemas.CompletionResult{Content: "ok"}, nil).Once()

	_, err := f.GenerateCompletion(context.Background(), "", "u", "google/gemini-2.0-flash-001")
	require.NoError(t, err)
	mockClient.AssertExpectations(t)
}

func TestFacade_ModelNormalization_GatewayKeepsPrefix(t *testing.T) {
	mockClient := new(MockCompletionClient)
	cfg := testLLMConfig("http://unused")
	cfg.Provider = schemas.ProviderGateway
	f := setupFacade(t, cfg, mockClient)
	require.NoError(t, f.Initialize("", "secret"))

	mockClient.On("GenerateCompletion", mock.Anything, "", "u", "google/gemini-2.0-flash-001").
		Return(schemas.CompletionResult{Content: "ok"}, nil).Once()

	_, err := f.GenerateCompletion(context.Background(), "", "u", "google/gemini-2.0-flash-001")
	require.NoError(t, err)
	mockClient.AssertExpectations(t)
}

func TestFacade_ValidateAPIKey(t *testing.T) {
	var gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-goog-api-key")
		if gotKey != "good-key" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":{"message":"bad key"}}`)
			return
		}
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"pong"}]}}]}`)
	}))
	defer server.Close()

	f := NewFacade(testLLMConfig(server.URL), setupTestLogger(t))

	assert.True(t, f.ValidateAPIKey(context.Background(), schemas.ProviderGemini, "good-key"))
	assert.False(t, f.ValidateAPIKey(context.Background(), schemas.ProviderGemini, "bad-key"))
	assert.Equal(t, "bad-key", gotKey)

	// A dead endpoint yields false, never an error or panic.
	dead := NewFacade(testLLMConfig("http://127.0.0.1:1"), setupTestLogger(t))
	assert.False(t, dead.ValidateAPIKey(context.Background(), schemas.ProviderGemini, "any"))
}

func TestFacade_GenerateThemes_ParsesJSONArray(t *testing.T) {
	mockClient := new(MockCompletionClient)
	f := setupFacade(t, testLLMConfig("http://unused"), mockClient)
	require.NoError(t, f.Initialize("", "secret"))

	mockClient.On("GenerateCompletion", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(schemas.CompletionResult{Content: "Sure! Here you go:\n```json\n[\"Budget\", \"Hiring\"]\n```"}, nil).Once()

	themes := f.GenerateThemes(context.Background(), "transcript", "")
	assert.Equal(t, []string{"Budget", "Hiring"}, themes)
}

func TestFacade_GenerateThemes_FallbackOnGarbage(t *testing.T) {
	mockClient := new(MockCompletionClient)
	f := setupFacade(t, testLLMConfig("http://unused"), mockClient)
	require.NoError(t, f.Initialize("", "secret"))

	mockClient.On("GenerateCompletion", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(schemas.CompletionResult{Content: "I could not find any themes, sorry."}, nil).Once()

	themes := f.GenerateThemes(context.Background(), "transcript", "")
	assert.Equal(t, fallbackThemes, themes, "unparseable output degrades to the fixed 3-item fallback")
}

func TestFacade_GenerateThemes_FallbackOnTransportError(t *testing.T) {
	mockClient := new(MockCompletionClient)
	f := setupFacade(t, testLLMConfig("http://unused"), mockClient)
	require.NoError(t, f.Initialize("", "secret"))

	mockClient.On("GenerateCompletion", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(schemas.CompletionResult{}, errors.New("connection reset")).Once()

	themes := f.GenerateThemes(context.Background(), "transcript", "")
	assert.Equal(t, fallbackThemes, themes)
}

func TestFacade_AnalyzeTheme_PropagatesError(t *testing.T) {
	mockClient := new(MockCompletionClient)
	f := setupFacade(t, testLLMConfig("http://unused"), mockClient)
	require.NoError(t, f.Initialize("", "secret"))

	mockClient.On("GenerateCompletion", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(schemas.CompletionResult{}, errors.New("boom")).Once()

	_, err := f.AnalyzeTheme(context.Background(), "t", "Budget", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestFacade_StreamRouting(t *testing.T) {
	mockClient := new(MockCompletionClient)
	f := setupFacade(t, testLLMConfig("http://unused"), mockClient)
	require.NoError(t, f.Initialize("", "secret"))

	contentChan, errorChan := staticStream("a", "b", "c")
	mockClient.On("GenerateCompletionStream", mock.Anything, "s", "u", "gemini-2.5-flash").
		Return(contentChan, errorChan).Once()

	gotContent, gotErrs := f.GenerateCompletionStream(context.Background(), "s", "u", "")
	chunks, err := drainStream(gotContent, gotErrs)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, chunks)
	mockClient.AssertExpectations(t)
}

func TestNewClient_Factory(t *testing.T) {
	cfg := testLLMConfig("http://unused")
	logger := setupTestLogger(t)

	gemini, err := NewClient(schemas.ProviderGemini, "k", cfg, logger)
	require.NoError(t, err)
	assert.IsType(t, (*GeminiClient)(nil), gemini)

	gateway, err := NewClient(schemas.ProviderGateway, "k", cfg, logger)
	require.NoError(t, err)
	assert.IsType(t, (*GatewayClient)(nil), gateway)

	_, err = NewClient("openrouter", "k", cfg, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported LLM provider")
}
