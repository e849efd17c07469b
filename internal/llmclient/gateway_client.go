// File: internal/llmclient/gateway_client.go
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
	"golang.org/x/time/rate"

	"github.com/loupe-sh/loupe-cli/api/schemas"
	"github.com/loupe-sh/loupe-cli/internal/config"
)

// GatewayClient implements schemas.CompletionClient against an
// OpenAI-chat-compatible gateway (POST /chat/completions). Request starts are
// paced by a rate limiter; individual calls are never retried.
type GatewayClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// -- Gateway API Request/Response Structures (internal to this file) --

type gatewayMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type gatewayRequest struct {
	Model    string           `json:"model"`
	Messages []gatewayMessage `json:"messages"`
	Stream   bool             `json:"stream,omitempty"`
}

type gatewayUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type gatewayChoice struct {
	Message *gatewayMessage `json:"message,omitempty"`
	Delta   *gatewayMessage `json:"delta,omitempty"`
}

type gatewayResponse struct {
	Choices []gatewayChoice `json:"choices"`
	Usage   *gatewayUsage   `json:"usage,omitempty"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewGatewayClient initializes the client.
func NewGatewayClient(cfg config.GatewayConfig, logger *zap.Logger) (*GatewayClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gateway API key is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("gateway base URL is required")
	}

	timeout := cfg.APITimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2.0
	}

	return &GatewayClient{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		logger:     logger.Named("llm_client.gateway"),
	}, nil
}

func (c *GatewayClient) newRequest(ctx context.Context, body []byte, streaming bool) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if streaming {
		req.Header.Set("Accept", "text/event-stream")
	}
	return req, nil
}

// GenerateCompletion performs a single non-streaming chat completion.
func (c *GatewayClient) GenerateCompletion(ctx context.Context, systemPrompt, userPrompt, model string) (schemas.CompletionResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return schemas.CompletionResult{}, fmt.Errorf("rate limiter wait aborted: %w", err)
	}

	body, err := json.Marshal(gatewayRequest{
		Model:    model,
		Messages: gatewayMessages(systemPrompt, userPrompt),
	})
	if err != nil {
		return schemas.CompletionResult{}, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	httpReq, err := c.newRequest(ctx, body, false)
	if err != nil {
		return schemas.CompletionResult{}, err
	}

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
		c.logger.Error("Gateway API returned error status",
			zap.Int("status", resp.StatusCode),
			zap.String("response", string(respBody)))
		return schemas.CompletionResult{}, fmt.Errorf("gateway API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var payload gatewayResponse
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return schemas.CompletionResult{}, fmt.Errorf("failed to decode response payload: %w", err)
	}
	if payload.Error != nil {
		return schemas.CompletionResult{}, fmt.Errorf("gateway API error: %s", payload.Error.Message)
	}
	if len(payload.Choices) == 0 || payload.Choices[0].Message == nil {
		return schemas.CompletionResult{}, fmt.Errorf("gateway API returned no choices")
	}

	result := schemas.CompletionResult{Content: payload.Choices[0].Message.Content}
	if payload.Usage != nil {
		result.Usage = &schemas.TokenUsage{
			PromptTokens:     payload.Usage.PromptTokens,
			CompletionTokens: payload.Usage.CompletionTokens,
			TotalTokens:      payload.Usage.TotalTokens,
		}
	}

	c.logger.Info("LLM generation complete (Gateway)",
		zap.String("model", model),
		zap.Duration("duration", time.Since(startTime)),
		zap.Int("response_len", len(result.Content)))
	return result, nil
}

// GenerateCompletionStream opens an SSE chat completion. Each data line
// carries a delta; the literal "data: [DONE]" line terminates the stream.
// Malformed data lines are logged and skipped without aborting the stream.
func (c *GatewayClient) GenerateCompletionStream(ctx context.Context, systemPrompt, userPrompt, model string) (<-chan string, <-chan error) {
	contentChan := make(chan string, streamChunkBuffer)
	errorChan := make(chan error, 1)

	go func() {
		defer close(contentChan)
		defer close(errorChan)

		if err := c.limiter.Wait(ctx); err != nil {
			errorChan <- fmt.Errorf("rate limiter wait aborted: %w", err)
			return
		}

		body, err := json.Marshal(gatewayRequest{
			Model:    model,
			Messages: gatewayMessages(systemPrompt, userPrompt),
			Stream:   true,
		})
		if err != nil {
			errorChan <- fmt.Errorf("failed to marshal request payload: %w", err)
			return
		}

		httpReq, err := c.newRequest(ctx, body, true)
		if err != nil {
			errorChan <- err
			return
		}

		startTime := time.Now()
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			errorChan <- fmt.Errorf("failed to execute HTTP request: %w", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			c.logger.Error("Gateway API returned error status on stream open",
				zap.Int("status", resp.StatusCode),
				zap.String("response", string(respBody)))
			errorChan <- fmt.Errorf("gateway API error: status %d, body: %s", resp.StatusCode, string(respBody))
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxStreamLineBytes)

		for scanner.Scan() {
			data, ok := sseDataLine(scanner.Text())
			if !ok {
				continue
			}
			if data == "[DONE]" {
				c.logger.Info("LLM streaming generation complete (Gateway)",
					zap.String("model", model),
					zap.Duration("duration", time.Since(startTime)))
				return
			}

			var frame gatewayResponse
			if err := json.Unmarshal([]byte(data), &frame); err != nil {
				c.logger.Warn("Skipping malformed stream frame", zap.Error(err))
				continue
			}
			if frame.Error != nil {
				errorChan <- fmt.Errorf("gateway API error: %s", frame.Error.Message)
				return
			}
			if len(frame.Choices) == 0 || frame.Choices[0].Delta == nil {
				continue
			}
			chunk := frame.Choices[0].Delta.Content
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

		// Transport closed without an explicit [DONE] marker; treat as a
		// clean end of stream.
		c.logger.Info("LLM streaming generation complete (Gateway)",
			zap.String("model", model),
			zap.Duration("duration", time.Since(startTime)))
	}()

	return contentChan, errorChan
}

func gatewayMessages(systemPrompt, userPrompt string) []gatewayMessage {
	messages := make([]gatewayMessage, 0, 2)
	if systemPrompt != "" {
		// The gateway has no dedicated system instruction field; synthesize a
		// system-role message instead.
		messages = append(messages, gatewayMessage{Role: "system", Content: systemPrompt})
	}
	return append(messages, gatewayMessage{Role: "user", Content: userPrompt})
}

// Statically assert the interface.
var _ schemas.CompletionClient = (*GatewayClient)(nil)
