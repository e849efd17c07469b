// File: internal/llmclient/gemini_client.go
package llmclient

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/loupe-sh/loupe-cli/api/schemas"
	"github.com/loupe-sh/loupe-cli/internal/config"
)

// GeminiClient implements schemas.CompletionClient against the Google
// Generative Language REST API. The client never retries: a failed call is
// surfaced to the invoking agent, which owns retry policy.
type GeminiClient struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

// -- Gemini API Request/Response Structures (internal to this file) --

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiSystemInstruction struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequestPayload struct {
	Contents          []geminiContent          `json:"contents"`
	SystemInstruction *geminiSystemInstruction `json:"system_instruction,omitempty"`
}

type geminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type geminiResponsePayload struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata *geminiUsageMetadata `json:"usageMetadata"`
}

// NewGeminiClient initializes the client.
func NewGeminiClient(cfg config.GeminiConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	endpoint := strings.TrimSuffix(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = "https://generativelanguage.googleapis.com/v1beta"
	}

	timeout := cfg.APITimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	return &GeminiClient{
		apiKey:     cfg.APIKey,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.Named("llm_client.gemini"),
	}, nil
}

// GenerateCompletion sends the prompts to the generateContent endpoint and
// returns the completed text with token usage when the provider reports it.
func (c *GeminiClient) GenerateCompletion(ctx context.Context, systemPrompt, userPrompt, model string) (schemas.CompletionResult, error) {
	body, err := json.Marshal(buildGeminiPayload(systemPrompt, userPrompt))
	if err != nil {
		return schemas.CompletionResult{}, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.endpoint, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return schemas.CompletionResult{}, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	startTime := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return schemas.CompletionResult{}, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return schemas.CompletionResult{}, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("Gemini API returned error status",
			zap.Int("status", resp.StatusCode),
			zap.String("response", string(respBody)))
		return schemas.CompletionResult{}, fmt.Errorf("gemini API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var payload geminiResponsePayload
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return schemas.CompletionResult{}, fmt.Errorf("failed to decode response payload: %w", err)
	}

	if len(payload.Candidates) == 0 {
		return schemas.CompletionResult{}, fmt.Errorf("gemini API returned no candidates")
	}
	candidate := payload.Candidates[0]
	if len(candidate.Content.Parts) == 0 {
		return schemas.CompletionResult{}, fmt.Errorf("gemini API returned empty content parts (reason: %s)", candidate.FinishReason)
	}

	result := schemas.CompletionResult{Content: candidate.Content.Parts[0].Text}
	if payload.UsageMetadata != nil {
		result.Usage = &schemas.TokenUsage{
			PromptTokens:     payload.UsageMetadata.PromptTokenCount,
			CompletionTokens: payload.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      payload.UsageMetadata.TotalTokenCount,
		}
	}

	c.logger.Info("LLM generation complete (Gemini)",
		zap.String("model", model),
		zap.Duration("duration", time.Since(startTime)),
		zap.Int("response_len", len(result.Content)))
	return result, nil
}

// GenerateCompletionStream opens the streamGenerateContent SSE transport and
// decodes partial-content frames. Malformed frames are logged and skipped;
// the stream terminates cleanly on transport close.
func (c *GeminiClient) GenerateCompletionStream(ctx context.Context, systemPrompt, userPrompt, model string) (<-chan string, <-chan error) {
	contentChan := make(chan string, streamChunkBuffer)
	errorChan := make(chan error, 1)

	go func() {
		defer close(contentChan)
		defer close(errorChan)

		body, err := json.Marshal(buildGeminiPayload(systemPrompt, userPrompt))
		if err != nil {
			errorChan <- fmt.Errorf("failed to marshal request payload: %w", err)
			return
		}

		url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", c.endpoint, model)
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			errorChan <- fmt.Errorf("failed to create HTTP request: %w", err)
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-goog-api-key", c.apiKey)
		httpReq.Header.Set("Accept", "text/event-stream")

		startTime := time.Now()
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			errorChan <- fmt.Errorf("failed to execute HTTP request: %w", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			c.logger.Error("Gemini API returned error status on stream open",
				zap.Int("status", resp.StatusCode),
				zap.String("response", string(respBody)))
			errorChan <- fmt.Errorf("gemini API error: status %d, body: %s", resp.StatusCode, string(respBody))
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLineBytes)

		for scanner.Scan() {
			data, ok := sseDataLine(scanner.Text())
			if !ok {
				continue
			}

			var frame geminiResponsePayload
			if err := json.Unmarshal([]byte(data), &frame); err != nil {
				c.logger.Warn("Skipping malformed stream frame", zap.Error(err))
				continue
			}
			if len(frame.Candidates) == 0 || len(frame.Candidates[0].Content.Parts) == 0 {
				continue
			}
			chunk := frame.Candidates[0].Content.Parts[0].Text
			if chunk == "" {
				continue
			}

			select {
			case contentChan <- chunk:
			case <-ctx.Done():
				errorChan <- ctx.Err()
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errorChan <- fmt.Errorf("stream read failed: %w", err)
			return
		}

		c.logger.Info("LLM streaming generation complete (Gemini)",
			zap.String("model", model),
			zap.Duration("duration", time.Since(startTime)))
	}()

	return contentChan, errorChan
}

func buildGeminiPayload(systemPrompt, userPrompt string) geminiRequestPayload {
	payload := geminiRequestPayload{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: userPrompt}}},
		},
	}
	if systemPrompt != "" {
		payload.SystemInstruction = &geminiSystemInstruction{
			Parts: []geminiPart{{Text: systemPrompt}},
		}
	}
	return payload
}

// Statically assert the interface.
var _ schemas.CompletionClient = (*GeminiClient)(nil)
