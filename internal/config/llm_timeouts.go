package config

import "time"

// LLMTimeouts centralizes timeout configuration for LLM operations and the
// phase loops that drive them.
//
// KEY INSIGHT: the shortest timeout in the chain wins — a long HTTP client
// timeout wrapped in a short context still fails on the context's deadline.
// These are the canonical timeouts every LLM call and phase loop should use.
type LLMTimeouts struct {
	// HTTPClientTimeout bounds a single HTTP round trip including body read.
	HTTPClientTimeout time.Duration `json:"http_client_timeout"`

	// PerCallTimeout wraps the context passed to a single LLM call; should
	// match HTTPClientTimeout to avoid the context cutting a call short.
	PerCallTimeout time.Duration `json:"per_call_timeout"`

	// StreamingTimeout bounds a streamed response, concatenated client-side.
	StreamingTimeout time.Duration `json:"streaming_timeout"`

	RetryBackoffBase time.Duration `json:"retry_backoff_base"`
	RetryBackoffMax  time.Duration `json:"retry_backoff_max"`
	MaxRetries       int           `json:"max_retries"`

	// PhaseTimeout bounds a full phase run (chat/tool loop, §4.3).
	PhaseTimeout time.Duration `json:"phase_timeout"`

	// BusRequestTimeout is the default request-response wait (§4.9) when a
	// caller does not supply its own.
	BusRequestTimeout time.Duration `json:"bus_request_timeout"`
}

// DefaultLLMTimeouts returns sensible defaults for a chat endpoint serving
// large-context phases such as refactoring.
func DefaultLLMTimeouts() LLMTimeouts {
	return LLMTimeouts{
		HTTPClientTimeout: 5 * time.Minute,
		PerCallTimeout:    5 * time.Minute,
		StreamingTimeout:  8 * time.Minute,
		RetryBackoffBase:  1 * time.Second,
		RetryBackoffMax:   30 * time.Second,
		MaxRetries:        3,
		PhaseTimeout:      20 * time.Minute,
		BusRequestTimeout: 30 * time.Second,
	}
}

var globalLLMTimeouts = DefaultLLMTimeouts()

// GetLLMTimeouts returns the global LLM timeout configuration.
func GetLLMTimeouts() LLMTimeouts {
	return globalLLMTimeouts
}

// SetLLMTimeouts updates the global LLM timeout configuration. Call early in
// application startup.
func SetLLMTimeouts(t LLMTimeouts) {
	globalLLMTimeouts = t
}
