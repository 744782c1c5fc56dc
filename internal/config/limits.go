package config

import "fmt"

// CoreLimits enforces system-wide resource constraints on the coordinator loop.
type CoreLimits struct {
	MaxTurnsPerPhase   int `yaml:"max_turns_per_phase" json:"max_turns_per_phase"`     // §4.3 step 7
	DefaultFailureCeil int `yaml:"default_failure_ceil" json:"default_failure_ceil"`   // §5 retry budget, most phases
	RefactoringFailureCeil int `yaml:"refactoring_failure_ceil" json:"refactoring_failure_ceil"` // §5 retry budget, refactoring
	MaxHistoryPerPhase int `yaml:"max_history_per_phase" json:"max_history_per_phase"` // PhaseState.run_history cap, §3
	MaxBusHistory      int `yaml:"max_bus_history" json:"max_bus_history"`             // §4.9 default 10,000
	CheckpointInterval int `yaml:"checkpoint_interval" json:"checkpoint_interval"`     // SPEC_FULL §6.2, default 25
}

// DefaultCoreLimits returns the documented defaults from spec.md §5 and §3.
func DefaultCoreLimits() CoreLimits {
	return CoreLimits{
		MaxTurnsPerPhase:       10,
		DefaultFailureCeil:     3,
		RefactoringFailureCeil: 999,
		MaxHistoryPerPhase:     20,
		MaxBusHistory:          10000,
		CheckpointInterval:     25,
	}
}

// Validate checks that core limits are within acceptable ranges.
func (c CoreLimits) Validate() error {
	if c.MaxTurnsPerPhase < 1 {
		return fmt.Errorf("max_turns_per_phase must be >= 1")
	}
	if c.DefaultFailureCeil < 1 {
		return fmt.Errorf("default_failure_ceil must be >= 1")
	}
	if c.MaxHistoryPerPhase < 1 {
		return fmt.Errorf("max_history_per_phase must be >= 1")
	}
	if c.MaxBusHistory < 1 {
		return fmt.Errorf("max_bus_history must be >= 1")
	}
	return nil
}
