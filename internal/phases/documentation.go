package phases

import (
	"context"

	"forgeloop/internal/objective"
	"forgeloop/internal/phase"
	"forgeloop/internal/state"
)

const documentationSystemPrompt = `You are the documentation phase of an autonomous software development pipeline.
You are invoked when every task is COMPLETED (§4.2 tactical step 4) or an objective reaches 100%
completion (§4.4). Update README/API/changelog documentation to reflect the work done this run. Do
not modify source files; only documentation.`

// Documentation implements the documentation phase (§4.2 tactical step
// 4's all-COMPLETED routing, and §4.4's 100%-completion action
// recommendation).
type Documentation struct {
	base   *phase.Base
	ObjMgr *objective.Manager
}

// NewDocumentation constructs the documentation phase.
func NewDocumentation(deps phase.Deps, objMgr *objective.Manager) *Documentation {
	return &Documentation{base: phase.NewBase("documentation", deps, documentationSystemPrompt), ObjMgr: objMgr}
}

func (d *Documentation) Name() string { return "documentation" }

// Execute writes documentation; documentation's objective context is
// primary only (§4.3 step 3).
func (d *Documentation) Execute(ctx context.Context, st *state.PipelineState, task *state.Task) (phase.Result, error) {
	userMsg := buildUserMessage(task, d.ObjMgr, state.ObjectivePrimary)

	response, created, modified, err := d.base.Run(ctx, userMsg)
	if err != nil {
		return phase.Result{Success: false, Message: err.Error()}, err
	}

	return phase.Result{
		Success:       true,
		Message:       response,
		FilesCreated:  created,
		FilesModified: modified,
	}, nil
}
