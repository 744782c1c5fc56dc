package phases

import (
	"context"

	"forgeloop/internal/objective"
	"forgeloop/internal/phase"
	"forgeloop/internal/state"
)

const planningSystemPrompt = `You are the planning phase of an autonomous software development pipeline.
Your job is to decompose the active objective (or the overall project goal, if none is active)
into concrete, independently completable tasks. Use the available tools to inspect the current
codebase before proposing tasks, then create task records with clear descriptions, target files,
and dependencies. Prefer several small tasks over one large one. Do not write production code in
this phase; your output is a task breakdown, not an implementation.`

// Planning implements the planning phase (§4.3, §4.4's "else planning"
// completion-based fallback): decomposes the active objective, or the
// project as a whole when none is active, into tasks.
type Planning struct {
	base   *phase.Base
	ObjMgr *objective.Manager
}

// NewPlanning constructs the planning phase.
func NewPlanning(deps phase.Deps, objMgr *objective.Manager) *Planning {
	return &Planning{base: phase.NewBase("planning", deps, planningSystemPrompt), ObjMgr: objMgr}
}

func (p *Planning) Name() string { return "planning" }

// Execute runs the planning loop. Planning never targets a single task
// (it creates them), so task is typically nil; when a coordinator does
// pass one (e.g. "expand task X into subtasks"), its description is
// folded into the user message like any other phase.
func (p *Planning) Execute(ctx context.Context, st *state.PipelineState, task *state.Task) (phase.Result, error) {
	userMsg := buildUserMessage(task, p.ObjMgr, state.ObjectivePrimary, state.ObjectiveSecondary, state.ObjectiveTertiary)

	response, created, modified, err := p.base.Run(ctx, userMsg)
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
