package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"forgeloop/internal/config"
	"forgeloop/internal/forgeerr"
	"forgeloop/internal/logging"
)

// HTTPClient is the default Client implementation: a chat-style JSON API
// over HTTP with retry/backoff on transient failures (§6.1, §7).
type HTTPClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	timeouts   config.LLMTimeouts
}

// NewHTTPClient builds a client from LLM and timeout configuration.
func NewHTTPClient(cfg config.LLMConfig, timeouts config.LLMTimeouts) *HTTPClient {
	return &HTTPClient{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: timeouts.HTTPClientTimeout,
		},
		timeouts: timeouts,
	}
}

// Chat sends req to the endpoint, retrying transient failures with
// exponential backoff up to timeouts.MaxRetries.
func (c *HTTPClient) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeouts.PerCallTimeout)
		defer cancel()
	}

	if req.Model == "" {
		req.Model = c.model
	}

	var lastErr error
	backoff := c.timeouts.RetryBackoffBase

	for attempt := 0; attempt <= c.timeouts.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ChatResponse{}, forgeerr.Classify(forgeerr.Cancellation, "", ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > c.timeouts.RetryBackoffMax {
				backoff = c.timeouts.RetryBackoffMax
			}
		}

		resp, err := c.doOnce(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !isRetryable(err) {
			break
		}
		logging.LLM("chat attempt %d/%d failed, retrying: %v", attempt+1, c.timeouts.MaxRetries+1, err)
	}

	logging.Audit().LLMCall(0, 0, false, lastErr.Error())
	return ChatResponse{}, forgeerr.Classify(forgeerr.TransientExternal, "check the LLM endpoint is reachable and the model name is valid", lastErr)
}

func (c *HTTPClient) doOnce(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return ChatResponse{}, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("read chat response: %w", err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return ChatResponse{}, fmt.Errorf("chat endpoint returned %d: %s", resp.StatusCode, string(respBody))
	}
	if resp.StatusCode >= 400 {
		return ChatResponse{}, forgeerr.Classify(forgeerr.InvariantViolation, "fix the request before retrying; retrying will not help", fmt.Errorf("chat endpoint returned %d: %s", resp.StatusCode, string(respBody)))
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return ChatResponse{}, fmt.Errorf("parse chat response: %w", err)
	}
	if chatResp.Error != "" {
		return ChatResponse{}, fmt.Errorf("chat endpoint error: %s", chatResp.Error)
	}

	duration := time.Since(start)
	logging.LLM("chat model=%s prompt_tokens=%d completion_tokens=%d duration=%s",
		req.Model, chatResp.PromptTokens, chatResp.CompletionTokens, duration)
	logging.Audit().LLMCall(chatResp.PromptTokens+chatResp.CompletionTokens, duration.Milliseconds(), true, "")

	return chatResp, nil
}

// isRetryable reports whether err came from a 5xx/429 response or a
// transport failure, as opposed to a 4xx client error that retrying
// cannot fix.
func isRetryable(err error) bool {
	return forgeerr.KindOf(err) != forgeerr.InvariantViolation
}
