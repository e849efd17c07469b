// File: api/schemas/interfaces.go
package schemas

import (
	"context"
)

// Provider identifies one upstream LLM backend.
type Provider string

const (
	// ProviderGemini is the direct Google Generative Language REST API.
	ProviderGemini Provider = "gemini"
	// ProviderGateway is an OpenAI-chat-compatible aggregation gateway.
	ProviderGateway Provider = "gateway"
)

// CompletionClient wraps one upstream LLM HTTP API. Implementations are
// responsible for request construction, response shape normalization, and
// low-level error translation. Clients never retry automatically; retry
// policy belongs to the caller.
type CompletionClient interface {
	// GenerateCompletion produces a single completion. Token usage is
	// surfaced when the provider reports it, otherwise left nil.
	GenerateCompletion(ctx context.Context, systemPrompt, userPrompt, model string) (CompletionResult, error)

	// GenerateCompletionStream opens an incremental generation. Chunks are
	// delivered strictly in production order on the first channel; the second
	// channel delivers at most one transport error. Both channels are closed
	// when the generation ends. The sequence is finite and not restartable.
	GenerateCompletionStream(ctx context.Context, systemPrompt, userPrompt, model string) (<-chan string, <-chan error)
}

// LLMFacade is the provider-agnostic completion/streaming surface used by all
// agents. It selects the active provider client from configuration and
// normalizes model identifiers before dispatch.
type LLMFacade interface {
	GenerateCompletion(ctx context.Context, systemPrompt, userPrompt, model string) (CompletionResult, error)
	GenerateCompletionStream(ctx context.Context, systemPrompt, userPrompt, model string) (<-chan string, <-chan error)

	// GenerateThemes extracts top-level themes from a transcript. It never
	// returns an error: any failure degrades to a fixed generic theme set.
	GenerateThemes(ctx context.Context, transcript, model string) []string

	// AnalyzeTheme produces a short analysis of a single theme.
	AnalyzeTheme(ctx context.Context, transcript, theme, model string) (string, error)
}

// InstructionResolver supplies user overrides for agent system prompts. It is
// the settings collaborator boundary: each agent operation looks up
// (role, method) before falling back to its compiled-in default.
type InstructionResolver interface {
	// Instruction returns the custom system instruction for the given
	// (role, method) pair and whether one is configured.
	Instruction(role AgentRole, method AgentMethod) (string, bool)
}
