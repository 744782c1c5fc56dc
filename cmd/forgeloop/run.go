package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"forgeloop/internal/bus"
	"forgeloop/internal/config"
	"forgeloop/internal/coordinator"
	"forgeloop/internal/coordinator/arbiter"
	"forgeloop/internal/llm"
	"forgeloop/internal/logging"
	"forgeloop/internal/objective"
	"forgeloop/internal/phase"
	"forgeloop/internal/phases"
	"forgeloop/internal/state"
	"forgeloop/internal/tools"
	"forgeloop/internal/tools/core"
)

const (
	reasonMaxIterations = "max iterations reached"
	reasonCancelled     = "context cancelled"
)

// RunOptions configures one invocation of the coordinator against a
// project workspace.
type RunOptions struct {
	Workspace     string
	FreshStart    bool
	DryRun        bool
	MaxIterations int
	Logger        *zap.Logger
}

// Run wires every package built under internal/ into one coordinator and
// drives it to termination (or to MaxIterations/cancellation). This is
// the CLI's entrypoint wiring; SPEC_FULL has no "wiring" module of its
// own to ground this on, so it follows §4.2's own component list in
// dependency order (store, objectives, tools, LLM client, bus, phases,
// coordinator) rather than any one teacher file.
func Run(ctx context.Context, opts RunOptions) (coordinator.RunOutcome, error) {
	autonomyDir := filepath.Join(opts.Workspace, ".autonomy")
	statePath := filepath.Join(autonomyDir, "state.json")
	configPath := filepath.Join(autonomyDir, "config.json")
	planPath := filepath.Join(opts.Workspace, "MASTER_PLAN.md")

	if opts.FreshStart {
		if err := os.Remove(statePath); err != nil && !os.IsNotExist(err) {
			return coordinator.RunOutcome{}, fmt.Errorf("fresh start: remove %s: %w", statePath, err)
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return coordinator.RunOutcome{}, fmt.Errorf("load config: %w", err)
	}

	runID := uuid.NewString()
	store, err := state.Open(statePath, runID)
	if err != nil {
		return coordinator.RunOutcome{}, fmt.Errorf("open state store: %w", err)
	}

	objMgr, err := loadObjectives(planPath)
	if err != nil {
		return coordinator.RunOutcome{}, fmt.Errorf("load objectives: %w", err)
	}

	registry := tools.NewRegistry()
	if err := core.RegisterAll(registry); err != nil {
		return coordinator.RunOutcome{}, fmt.Errorf("register tools: %w", err)
	}

	llmClient := llm.NewHTTPClient(cfg.LLM, config.GetLLMTimeouts())
	messageBus := bus.New()

	deps := phase.Deps{Registry: registry, LLM: llmClient, Bus: messageBus}
	phaseMap := buildPhases(deps, objMgr)

	if opts.DryRun {
		return runDryRun(ctx, store, objMgr, cfg)
	}

	coord := coordinator.New(store, objMgr, phaseMap, cfg)
	coord.MaxIterations = opts.MaxIterations

	if cfg.Coordinator.UseArbiter {
		plainSelector := coordinator.NewSelector(cfg.Lifecycle)
		arb, err := arbiter.New(plainSelector)
		if err != nil {
			return coordinator.RunOutcome{}, fmt.Errorf("build arbiter: %w", err)
		}
		coord.Selector = arb
	}

	if opts.Logger != nil {
		opts.Logger.Info("starting run",
			zap.String("run_id", runID), zap.String("workspace", opts.Workspace),
			zap.Bool("arbiter", cfg.Coordinator.UseArbiter), zap.Int("max_iterations", opts.MaxIterations))
	}
	logging.Coordinator("starting run %s against %s (arbiter=%v, max_iterations=%d)",
		runID, opts.Workspace, cfg.Coordinator.UseArbiter, opts.MaxIterations)

	return coord.Run(ctx)
}

// buildPhases constructs all twelve phase.Phase instances and keys them
// by the name the selector/arbiter use to look them up.
func buildPhases(deps phase.Deps, objMgr *objective.Manager) map[string]phase.Phase {
	return map[string]phase.Phase{
		"planning":                    phases.NewPlanning(deps, objMgr),
		"coding":                      phases.NewCoding(deps, objMgr),
		"qa":                          phases.NewQA(deps, objMgr),
		"debugging":                   phases.NewDebugging(deps, objMgr),
		"investigation":               phases.NewInvestigation(deps, objMgr),
		"refactoring":                 phases.NewRefactoring(deps, objMgr),
		"documentation":               phases.NewDocumentation(deps, objMgr),
		"project_planning":            phases.NewProjectPlanning(deps, objMgr),
		"prompt_design":               phases.NewPromptDesign(deps, objMgr),
		"role_design":                 phases.NewRoleDesign(deps, objMgr),
		"tool_design":                 phases.NewToolDesign(deps, objMgr),
		"application_troubleshooting": phases.NewApplicationTroubleshooting(deps, objMgr),
	}
}

// loadObjectives parses MASTER_PLAN.md if present. A missing plan is not
// fatal: the coordinator's tactical layer runs off task state alone until
// a plan is authored, and the strategic layer is simply skipped (an empty
// objective.Manager).
func loadObjectives(planPath string) (*objective.Manager, error) {
	f, err := os.Open(planPath)
	if err != nil {
		if os.IsNotExist(err) {
			return objective.NewManager(nil), nil
		}
		return nil, err
	}
	defer f.Close()

	parsed, err := objective.ParseMarkdown(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", planPath, err)
	}
	return objective.NewManager(parsed), nil
}

// runDryRun reports the single next decision the selector would make
// against the current on-disk state, without executing it or mutating
// anything — since nothing runs, the decision can't change on a second
// iteration, so unlike Run this does not loop.
func runDryRun(ctx context.Context, store *state.Store, objMgr *objective.Manager, cfg *config.Config) (coordinator.RunOutcome, error) {
	select {
	case <-ctx.Done():
		return coordinator.RunOutcome{Reason: reasonCancelled}, ctx.Err()
	default:
	}

	st := store.Load()
	if coordinator.Termination(st, objMgr) {
		return coordinator.RunOutcome{Reason: "all tasks and objectives completed"}, nil
	}

	selector := coordinator.NewSelector(cfg.Lifecycle)
	decision := selector.Decide(st, objMgr)
	logging.Coordinator("[DRY RUN] would run phase=%s task=%s reason=%s", decision.Phase, decision.TaskID, decision.Reason)
	return coordinator.RunOutcome{Iterations: 1, Reason: fmt.Sprintf("dry run: next phase would be %s", decision.Phase)}, nil
}
