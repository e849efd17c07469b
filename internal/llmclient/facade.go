// File: internal/llmclient/facade.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/loupe-sh/loupe-cli/api/schemas"
	"github.com/loupe-sh/loupe-cli/internal/config"
)

// ErrNotInitialized is returned when a completion is requested before any
// credential has been configured for the resolved provider.
var ErrNotInitialized = errors.New("llm facade: provider not initialized, call Initialize first")

// clientFactory builds a concrete provider client. Swappable for tests.
type clientFactory func(provider schemas.Provider, credential string, cfg config.LLMConfig, logger *zap.Logger) (schemas.CompletionClient, error)

// Facade is the provider-agnostic completion/streaming entry point used by
// all agents. It selects the active provider client from configuration,
// normalizes model identifiers, and exposes the theme convenience operations.
type Facade struct {
	cfg     config.LLMConfig
	logger  *zap.Logger
	factory clientFactory

	mu      sync.RWMutex
	clients map[schemas.Provider]schemas.CompletionClient
}

// fallbackThemes is returned by GenerateThemes whenever the model's output
// cannot be parsed as a JSON array of strings.
var fallbackThemes = []string{
	"Key Discussion Points",
	"Decisions and Outcomes",
	"Open Questions and Risks",
}

// NewFacade creates an uninitialized facade. Completion calls fail with
// ErrNotInitialized until a credential is supplied via Initialize.
func NewFacade(cfg config.LLMConfig, logger *zap.Logger) *Facade {
	return &Facade{
		cfg:     cfg,
		logger:  logger.Named("llm_facade"),
		factory: NewClient,
		clients: make(map[schemas.Provider]schemas.CompletionClient),
	}
}

// Initialize configures the client for the given provider with the supplied
// credential. An empty provider initializes the configured active provider.
func (f *Facade) Initialize(provider schemas.Provider, credential string) error {
	provider = f.resolveProvider(provider)

	client, err := f.factory(provider, credential, f.cfg, f.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize %s client: %w", provider, err)
	}

	f.mu.Lock()
	f.clients[provider] = client
	f.mu.Unlock()

	f.logger.Info("LLM provider initialized", zap.String("provider", string(provider)))
	return nil
}

// IsInitialized reports whether a client exists for the given provider (or
// the active provider when empty).
func (f *Facade) IsInitialized(provider schemas.Provider) bool {
	provider = f.resolveProvider(provider)
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.clients[provider]
	return ok
}

// ValidateAPIKey performs one minimal live generation call against the given
// provider using the supplied credential. It reports success only if the
// provider accepts the call; network or auth failure yields false, never an
// error to the caller.
func (f *Facade) ValidateAPIKey(ctx context.Context, provider schemas.Provider, credential string) bool {
	provider = f.resolveProvider(provider)

	client, err := f.factory(provider, credential, f.cfg, f.logger)
	if err != nil {
		f.logger.Warn("API key validation failed to construct client",
			zap.String("provider", string(provider)), zap.Error(err))
		return false
	}

	model := f.normalizeModel(provider, f.defaultModel(provider))
	if _, err := client.GenerateCompletion(ctx, "", "ping", model); err != nil {
		f.logger.Warn("API key validation call rejected",
			zap.String("provider", string(provider)), zap.Error(err))
		return false
	}
	return true
}

// GenerateCompletion routes a single completion to the active provider.
func (f *Facade) GenerateCompletion(ctx context.Context, systemPrompt, userPrompt, model string) (schemas.CompletionResult, error) {
	provider, client, err := f.activeClient()
	if err != nil {
		return schemas.CompletionResult{}, err
	}
	return client.GenerateCompletion(ctx, systemPrompt, userPrompt, f.resolveModel(provider, model))
}

// GenerateCompletionStream routes a streaming completion to the active
// provider. Chunk ordering within the returned stream matches production
// order; the stream is finite and not restartable.
func (f *Facade) GenerateCompletionStream(ctx context.Context, systemPrompt, userPrompt, model string) (<-chan string, <-chan error) {
	provider, client, err := f.activeClient()
	if err != nil {
		contentChan := make(chan string)
		errorChan := make(chan error, 1)
		errorChan <- err
		close(contentChan)
		close(errorChan)
		return contentChan, errorChan
	}
	return client.GenerateCompletionStream(ctx, systemPrompt, userPrompt, f.resolveModel(provider, model))
}

// GenerateThemes extracts top-level themes from a transcript. The model is
// asked for a JSON array of strings; any failure (transport, auth, or parse)
// degrades to the fixed fallback theme set. This operation never errors.
func (f *Facade) GenerateThemes(ctx context.Context, transcript, model string) []string {
	const systemPrompt = "You extract the main themes from meeting and interview transcripts. " +
		"Respond with a JSON array of short theme titles and nothing else."
	userPrompt := fmt.Sprintf("Identify 3 to 6 major themes in this transcript:\n\n%s", transcript)

	result, err := f.GenerateCompletion(ctx, systemPrompt, userPrompt, model)
	if err != nil {
		f.logger.Warn("Theme extraction failed, using fallback themes", zap.Error(err))
		return append([]string(nil), fallbackThemes...)
	}

	themes, err := parseThemeArray(result.Content)
	if err != nil {
		f.logger.Warn("Theme extraction returned unparseable output, using fallback themes", zap.Error(err))
		return append([]string(nil), fallbackThemes...)
	}
	return themes
}

// AnalyzeTheme produces a short analysis of a single theme within the
// transcript. Unlike GenerateThemes, failures propagate.
func (f *Facade) AnalyzeTheme(ctx context.Context, transcript, theme, model string) (string, error) {
	const systemPrompt = "You are a qualitative analyst. Analyze the requested theme using only " +
		"evidence present in the transcript."
	userPrompt := fmt.Sprintf("Theme: %s\n\nTranscript:\n%s\n\nSummarize what the transcript says about this theme.", theme, transcript)

	result, err := f.GenerateCompletion(ctx, systemPrompt, userPrompt, model)
	if err != nil {
		return "", fmt.Errorf("theme analysis failed: %w", err)
	}
	return strings.TrimSpace(result.Content), nil
}

// -- internals --

func (f *Facade) resolveProvider(provider schemas.Provider) schemas.Provider {
	if provider == "" {
		return f.cfg.Provider
	}
	return provider
}

func (f *Facade) activeClient() (schemas.Provider, schemas.CompletionClient, error) {
	provider := f.cfg.Provider
	f.mu.RLock()
	client, ok := f.clients[provider]
	f.mu.RUnlock()
	if !ok {
		return provider, nil, ErrNotInitialized
	}
	return provider, client, nil
}

func (f *Facade) defaultModel(provider schemas.Provider) string {
	if provider == schemas.ProviderGateway {
		return f.cfg.Gateway.Model
	}
	return f.cfg.Gemini.Model
}

func (f *Facade) resolveModel(provider schemas.Provider, model string) string {
	if model == "" {
		model = f.defaultModel(provider)
	}
	return f.normalizeModel(provider, model)
}

// normalizeModel strips the gateway's "vendor/" model id prefix when routing
// to the direct provider, which never uses that convention.
func (f *Facade) normalizeModel(provider schemas.Provider, model string) string {
	if provider != schemas.ProviderGemini {
		return model
	}
	if idx := strings.Index(model, "/"); idx >= 0 {
		return model[idx+1:]
	}
	return model
}

// parseThemeArray expects a JSON array of strings, possibly wrapped in a
// fenced code block or surrounding prose.
func parseThemeArray(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)

	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array found in response")
	}

	var themes []string
	if err := json.Unmarshal([]byte(raw[start:end+1]), &themes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal theme array: %w", err)
	}
	if len(themes) == 0 {
		return nil, fmt.Errorf("theme array is empty")
	}
	return themes, nil
}

// Statically assert that Facade implements the agent-facing surface.
var _ schemas.LLMFacade = (*Facade)(nil)
