package phases

import (
	"context"

	"forgeloop/internal/objective"
	"forgeloop/internal/phase"
	"forgeloop/internal/state"
)

const debuggingSystemPrompt = `You are the debugging phase of an autonomous software development pipeline.
The assigned task failed QA. Its prior errors are listed in the task description; use the available
tools to locate and fix the root cause, not just the symptom. When the fix is complete, send the
task back to QA rather than marking it complete yourself.`

// Debugging implements the debugging phase (§4.2 tactical step 1:
// NEEDS_FIXES tasks always route here first).
type Debugging struct {
	base   *phase.Base
	ObjMgr *objective.Manager
}

// NewDebugging constructs the debugging phase.
func NewDebugging(deps phase.Deps, objMgr *objective.Manager) *Debugging {
	return &Debugging{base: phase.NewBase("debugging", deps, debuggingSystemPrompt), ObjMgr: objMgr}
}

func (d *Debugging) Name() string { return "debugging" }

// Execute attempts a fix; debugging's objective context is
// secondary+tertiary (§4.3 step 3).
func (d *Debugging) Execute(ctx context.Context, st *state.PipelineState, task *state.Task) (phase.Result, error) {
	userMsg := buildUserMessage(task, d.ObjMgr, state.ObjectiveSecondary, state.ObjectiveTertiary)

	response, created, modified, err := d.base.Run(ctx, userMsg)
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
