package config

// LLMConfig configures the orchestrator's LLM endpoint client (spec §6.1: a
// chat-style JSON API over HTTP).
type LLMConfig struct {
	APIKey  string `yaml:"api_key" json:"api_key"`
	Model   string `yaml:"model" json:"model"`
	BaseURL string `yaml:"base_url" json:"base_url"`
	Timeout string `yaml:"timeout" json:"timeout"`

	// ContextLength is sent as options.context_length on every request.
	ContextLength int `yaml:"context_length" json:"context_length"`
}
