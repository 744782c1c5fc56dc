package phases

import (
	"context"

	"forgeloop/internal/objective"
	"forgeloop/internal/phase"
	"forgeloop/internal/state"
)

const investigationSystemPrompt = `You are the investigation phase of an autonomous software development pipeline.
You are invoked when an objective is CRITICAL (blocking issues or repeated failures) or when the
loop detector has escalated. Use the available read/search/analysis tools to find the root cause of
the problem; do not attempt a fix yourself. Conclude with a clear written diagnosis and, if the fix
requires a specialized phase outside normal coding/debugging (prompt design, role design, tool
design, or general application troubleshooting), name it explicitly in your final message as
"RECOMMEND_SPECIALIZED: <phase-name>".`

// Investigation implements the investigation phase (§4.4's CRITICAL ->
// investigation health-based recommendation; also reachable directly via
// the loop detector's specialist-consultation escalation, §4.10).
//
// Grounded structurally on phase.Base's subagent-style isolation need
// described by SPEC_FULL.md for refactoring/investigation: both phases
// route through phase.SubagentRunner for an isolated investigative
// sub-conversation rather than polluting the calling phase's own thread.
type Investigation struct {
	ObjMgr *objective.Manager
	Runner *phase.SubagentRunner
}

// NewInvestigation constructs the investigation phase.
func NewInvestigation(deps phase.Deps, objMgr *objective.Manager) *Investigation {
	return &Investigation{
		ObjMgr: objMgr,
		Runner: phase.NewSubagentRunner(deps, "investigation"),
	}
}

func (i *Investigation) Name() string { return "investigation" }

// Execute runs the investigation loop in an isolated subagent
// conversation (SPEC_FULL.md's subagent_runner) so a long diagnostic
// back-and-forth never grows the calling task's own conversation
// history. Investigation touches all three objective levels (§4.3).
func (i *Investigation) Execute(ctx context.Context, st *state.PipelineState, task *state.Task) (phase.Result, error) {
	userMsg := buildUserMessage(task, i.ObjMgr, state.ObjectivePrimary, state.ObjectiveSecondary, state.ObjectiveTertiary)

	response, created, modified, err := i.Runner.Run(ctx, investigationSystemPrompt, userMsg)
	if err != nil {
		return phase.Result{Success: false, Message: err.Error()}, err
	}

	result := phase.Result{
		Success:       true,
		Message:       response,
		FilesCreated:  created,
		FilesModified: modified,
	}
	if rec := extractRecommendation(response); rec != "" {
		result.Data = map[string]interface{}{"recommend_specialized": rec}
	}
	return result, nil
}
