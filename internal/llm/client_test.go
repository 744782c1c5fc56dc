package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"forgeloop/internal/config"
)

func testTimeouts() config.LLMTimeouts {
	t := config.DefaultLLMTimeouts()
	t.RetryBackoffBase = time.Millisecond
	t.RetryBackoffMax = 5 * time.Millisecond
	t.MaxRetries = 2
	t.PerCallTimeout = time.Second
	t.HTTPClientTimeout = time.Second
	return t
}

func TestChatSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ChatResponse{
			Message: ChatMessage{Role: "assistant", Content: "hello"},
			Done:    true,
		})
	}))
	defer srv.Close()

	client := NewHTTPClient(config.LLMConfig{BaseURL: srv.URL, Model: "test-model"}, testTimeouts())
	resp, err := client.Chat(context.Background(), ChatRequest{Messages: []ChatMessage{{Role: "user", Content: "hi"}}})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message.Content != "hello" {
		t.Errorf("expected hello, got %s", resp.Message.Content)
	}
}

func TestChatRetriesOn5xx(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(ChatResponse{Message: ChatMessage{Content: "ok"}, Done: true})
	}))
	defer srv.Close()

	client := NewHTTPClient(config.LLMConfig{BaseURL: srv.URL}, testTimeouts())
	resp, err := client.Chat(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message.Content != "ok" {
		t.Errorf("expected ok after retries, got %s", resp.Message.Content)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestChatDoesNotRetryOn4xx(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(config.LLMConfig{BaseURL: srv.URL}, testTimeouts())
	_, err := client.Chat(context.Background(), ChatRequest{})
	if err == nil {
		t.Fatal("expected an error for a 4xx response")
	}
	if attempts != 1 {
		t.Errorf("expected exactly 1 attempt for a non-retryable error, got %d", attempts)
	}
}
