package phases

import (
	"context"

	"forgeloop/internal/objective"
	"forgeloop/internal/phase"
	"forgeloop/internal/state"
)

const codingSystemPrompt = `You are the coding phase of an autonomous software development pipeline.
Implement the assigned task using the available file tools. Make the smallest change that fully
satisfies the task description. When finished, mark the task ready for QA rather than declaring it
complete yourself.`

// Coding implements the coding phase (§4.2 tactical step 3: NEW/
// IN_PROGRESS tasks route here).
type Coding struct {
	base   *phase.Base
	ObjMgr *objective.Manager
}

// NewCoding constructs the coding phase.
func NewCoding(deps phase.Deps, objMgr *objective.Manager) *Coding {
	return &Coding{base: phase.NewBase("coding", deps, codingSystemPrompt), ObjMgr: objMgr}
}

func (c *Coding) Name() string { return "coding" }

// Execute implements the task: coding's objective context is primary
// objectives only (§4.3 step 3).
func (c *Coding) Execute(ctx context.Context, st *state.PipelineState, task *state.Task) (phase.Result, error) {
	userMsg := buildUserMessage(task, c.ObjMgr, state.ObjectivePrimary)

	response, created, modified, err := c.base.Run(ctx, userMsg)
	if err != nil {
		return phase.Result{Success: false, Message: err.Error()}, err
	}

	result := phase.Result{
		Success:       true,
		Message:       response,
		FilesCreated:  created,
		FilesModified: modified,
	}
	if task != nil && (len(created) > 0 || len(modified) > 0) {
		result.Data = dataWithStatus(state.TaskQAPending)
	}
	return result, nil
}
