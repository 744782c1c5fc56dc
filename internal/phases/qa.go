package phases

import (
	"context"
	"strings"

	"forgeloop/internal/objective"
	"forgeloop/internal/phase"
	"forgeloop/internal/state"
)

const qaSystemPrompt = `You are the QA phase of an autonomous software development pipeline.
Review the assigned task's target file(s) for correctness against the task description. Use the
available read/search/analysis tools; do not modify files yourself unless a fix is trivial and
clearly in scope. Conclude your final message with exactly one of:
  QA_RESULT: PASS
  QA_RESULT: FAIL: <concise reason>
This line must be the last line of your final response.`

// QA implements the qa phase (§4.2 tactical step 2, gated by lifecycle
// maturity — see coordinator.Selector.qaEligible).
type QA struct {
	base   *phase.Base
	ObjMgr *objective.Manager
}

// NewQA constructs the qa phase.
func NewQA(deps phase.Deps, objMgr *objective.Manager) *QA {
	return &QA{base: phase.NewBase("qa", deps, qaSystemPrompt), ObjMgr: objMgr}
}

func (q *QA) Name() string { return "qa" }

// Execute reviews the task and transitions it to COMPLETED or
// NEEDS_FIXES based on the trailing QA_RESULT marker (§4.3, §4.1). qa's
// objective context is secondary+tertiary only (§4.3 step 3).
func (q *QA) Execute(ctx context.Context, st *state.PipelineState, task *state.Task) (phase.Result, error) {
	userMsg := buildUserMessage(task, q.ObjMgr, state.ObjectiveSecondary, state.ObjectiveTertiary)

	response, created, modified, err := q.base.Run(ctx, userMsg)
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
		if qaPassed(response) {
			result.Data = dataWithStatus(state.TaskCompleted)
		} else {
			result.Data = dataWithStatus(state.TaskNeedsFixes)
		}
	}
	return result, nil
}

// qaPassed inspects the phase's final response for the trailing
// QA_RESULT marker the system prompt requires. Absence of a PASS marker
// is treated conservatively as a failure, not a pass.
func qaPassed(response string) bool {
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "QA_RESULT:") {
			return strings.Contains(line, "PASS")
		}
	}
	return false
}
