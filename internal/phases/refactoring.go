package phases

import (
	"context"

	"forgeloop/internal/objective"
	"forgeloop/internal/phase"
	"forgeloop/internal/state"
)

const refactoringSystemPrompt = `You are the refactoring phase of an autonomous software development pipeline.
You are invoked for specialized structural-cleanup tasks (task metadata task_type=refactoring) or
at the strategic layer when an objective needs architectural work beyond a normal coding task. Use
the available merge/cleanup/compare/validate-architecture tools. Make sure the codebase still
satisfies every task currently marked COMPLETED before finishing.`

// Refactoring implements the refactoring phase. §4.5 requires it to run
// with a 1,000,000-token, 500-message conversation window — far beyond
// every other phase's default — because a narrower bound previously
// caused the assistant to lose track of its own prior attempt and retry
// the same failing approach indefinitely; it also runs through the
// isolated SubagentRunner so that huge window doesn't leak into the
// calling phase's own thread.
type Refactoring struct {
	ObjMgr *objective.Manager
	Runner *phase.SubagentRunner
}

// NewRefactoring constructs the refactoring phase.
func NewRefactoring(deps phase.Deps, objMgr *objective.Manager) *Refactoring {
	return &Refactoring{ObjMgr: objMgr, Runner: phase.NewSubagentRunner(deps, "refactoring")}
}

func (r *Refactoring) Name() string { return "refactoring" }

// Execute runs the refactor; refactoring's objective context spans all
// three levels (§4.3).
func (r *Refactoring) Execute(ctx context.Context, st *state.PipelineState, task *state.Task) (phase.Result, error) {
	userMsg := buildUserMessage(task, r.ObjMgr, state.ObjectivePrimary, state.ObjectiveSecondary, state.ObjectiveTertiary)

	response, created, modified, err := r.Runner.Run(ctx, refactoringSystemPrompt, userMsg)
	if err != nil {
		return phase.Result{Success: false, Message: err.Error()}, err
	}

	result := phase.Result{
		Success:       true,
		Message:       response,
		FilesCreated:  created,
		FilesModified: modified,
	}
	if task != nil {
		result.Data = dataWithStatus(state.TaskQAPending)
	}
	return result, nil
}
