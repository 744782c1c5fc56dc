package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ConversationBounds caps a phase's working conversation before pruning
// kicks in (§4.5). Refactoring is deliberately far larger than the rest:
// it must hold a whole-codebase context across many tool calls.
type ConversationBounds struct {
	MaxMessages     int `yaml:"max_messages" json:"max_messages"`
	MaxTokens       int `yaml:"max_tokens" json:"max_tokens"`
	PreservedRecent int `yaml:"preserved_recent" json:"preserved_recent"`
	PreservedSystem int `yaml:"preserved_system" json:"preserved_system"`
	MaxAgeMinutes   int `yaml:"max_age_minutes" json:"max_age_minutes"`
}

// DefaultConversationBounds returns the fallback ConversationBoundsFor gives
// a phase with no override. Phase threads take their bounds from
// conversation.BoundsForPhase, which does not read these values.
func DefaultConversationBounds() ConversationBounds {
	return ConversationBounds{
		MaxMessages:     100,
		MaxTokens:       60000,
		PreservedRecent: 10,
		PreservedSystem: 1,
		MaxAgeMinutes:   120,
	}
}

// RefactoringConversationBounds returns the documented override for the
// refactoring phase, which must see the whole codebase at once (§4.5).
func RefactoringConversationBounds() ConversationBounds {
	return ConversationBounds{
		MaxMessages:     500,
		MaxTokens:       1000000,
		PreservedRecent: 100,
		PreservedSystem: 1,
		MaxAgeMinutes:   240,
	}
}

// LifecycleThresholds govern how the coordinator's two-layer decision
// engine routes QA results by project maturity stage (§4.2).
type LifecycleThresholds struct {
	FoundationFileThreshold   int     `yaml:"foundation_file_threshold" json:"foundation_file_threshold"`
	IntegrationFileThreshold  int     `yaml:"integration_file_threshold" json:"integration_file_threshold"`
	ConsolidationCoverage     float64 `yaml:"consolidation_coverage" json:"consolidation_coverage"`
	CompletionCoverage        float64 `yaml:"completion_coverage" json:"completion_coverage"`
	MinQARunsBeforeCompletion int     `yaml:"min_qa_runs_before_completion" json:"min_qa_runs_before_completion"`
}

// DefaultLifecycleThresholds returns the staged maturity gates of §4.2.
func DefaultLifecycleThresholds() LifecycleThresholds {
	return LifecycleThresholds{
		FoundationFileThreshold:   5,
		IntegrationFileThreshold:  20,
		ConsolidationCoverage:     0.60,
		CompletionCoverage:        0.85,
		MinQARunsBeforeCompletion: 0,
	}
}

// LoopGuardThresholds configure the fingerprint-based repetition detector
// (§4.10).
type LoopGuardThresholds struct {
	PatternRepeatCount  int `yaml:"pattern_repeat_count" json:"pattern_repeat_count"`
	CycleWindow         int `yaml:"cycle_window" json:"cycle_window"`
	ActionLoopThreshold int `yaml:"action_loop_threshold" json:"action_loop_threshold"`
	NoProgressThreshold int `yaml:"no_progress_threshold" json:"no_progress_threshold"`
	FingerprintHistory  int `yaml:"fingerprint_history" json:"fingerprint_history"`
}

// DefaultLoopGuardThresholds returns the documented escalation thresholds.
func DefaultLoopGuardThresholds() LoopGuardThresholds {
	return LoopGuardThresholds{
		PatternRepeatCount:  3,
		CycleWindow:         6,
		ActionLoopThreshold: 3,
		NoProgressThreshold: 3,
		FingerprintHistory:  50,
	}
}

// CoordinatorConfig toggles the outer-loop decision strategy.
type CoordinatorConfig struct {
	// UseArbiter switches phase selection to the Mangle-backed arbiter
	// instead of the default plain-Go selector. Off by default: no .mg
	// rule files ship with this module, so the arbiter only evaluates
	// facts asserted through the Go Fact API. See DESIGN.md Open Question
	// decisions.
	UseArbiter bool `yaml:"use_arbiter" json:"use_arbiter"`
}

// SpecializedConfig governs when an on-demand specialized phase (a narrow
// subagent invoked outside the main phase rotation) activates.
type SpecializedConfig struct {
	// FailureThreshold is the task failure_count at which specialist
	// consultation triggers, ahead of the loop guard's own escalation
	// ladder.
	FailureThreshold int `yaml:"failure_threshold" json:"failure_threshold"`
}

// Config holds all forgeloop configuration.
type Config struct {
	Name    string `yaml:"name" json:"name"`
	Version string `yaml:"version" json:"version"`

	LLM         LLMConfig           `yaml:"llm" json:"llm"`
	CoreLimits  CoreLimits          `yaml:"core_limits" json:"core_limits"`
	Logging     LoggingConfig       `yaml:"logging" json:"logging"`
	Lifecycle   LifecycleThresholds `yaml:"lifecycle" json:"lifecycle"`
	LoopGuard   LoopGuardThresholds `yaml:"loop_guard" json:"loop_guard"`
	Coordinator CoordinatorConfig   `yaml:"coordinator" json:"coordinator"`
	Specialized SpecializedConfig   `yaml:"specialized" json:"specialized"`

	// Conversation maps phase name to its bounds. Phases absent from the
	// map fall back to DefaultConversationBounds().
	Conversation map[string]ConversationBounds `yaml:"conversation" json:"conversation"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "forgeloop",
		Version: "0.1.0",

		LLM: LLMConfig{
			Model:         "glm-4.7",
			BaseURL:       "http://localhost:11434/v1/chat/completions",
			Timeout:       "120s",
			ContextLength: 128000,
		},

		CoreLimits: DefaultCoreLimits(),

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "forgeloop.log",
		},

		Lifecycle:   DefaultLifecycleThresholds(),
		LoopGuard:   DefaultLoopGuardThresholds(),
		Coordinator: CoordinatorConfig{UseArbiter: false},
		Specialized: SpecializedConfig{FailureThreshold: 3},

		Conversation: map[string]ConversationBounds{
			"refactoring": RefactoringConversationBounds(),
		},
	}
}

// ConversationBoundsFor returns the bounds configured for a phase, falling
// back to the default bounds when the phase has no override.
func (c *Config) ConversationBoundsFor(phase string) ConversationBounds {
	if b, ok := c.Conversation[phase]; ok {
		return b
	}
	return DefaultConversationBounds()
}

// Load loads configuration from a JSON file at .autonomy/config.json. A
// missing file is not an error: defaults are returned instead.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save persists configuration to path, creating parent directories as
// needed. Uses a plain write: the config file is operator-edited, not a
// concurrently-written runtime artifact, so the temp-file-plus-rename
// idiom used by the state store (internal/state) is not needed here.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("FORGELOOP_LLM_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if url := os.Getenv("FORGELOOP_LLM_BASE_URL"); url != "" {
		c.LLM.BaseURL = url
	}
	if model := os.Getenv("FORGELOOP_LLM_MODEL"); model != "" {
		c.LLM.Model = model
	}
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set FORGELOOP_LLM_API_KEY or llm.api_key in .autonomy/config.json)")
	}
	if c.LLM.BaseURL == "" {
		return fmt.Errorf("llm.base_url must be set")
	}
	if err := c.CoreLimits.Validate(); err != nil {
		return fmt.Errorf("core_limits: %w", err)
	}
	if c.Specialized.FailureThreshold < 1 {
		return fmt.Errorf("specialized.failure_threshold must be >= 1")
	}
	return nil
}
