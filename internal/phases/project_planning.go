package phases

import (
	"context"

	"forgeloop/internal/objective"
	"forgeloop/internal/phase"
	"forgeloop/internal/state"
)

const projectPlanningSystemPrompt = `You are the project_planning phase of an autonomous software development pipeline.
You are invoked in three situations: (1) an objective is BLOCKED on a dependency, (2) the loop
detector has escalated after specialist consultation was already tried, or (3) the run has reached
100% task completion and documentation has already run, making this the final strategic pass before
termination. Review the overall objective hierarchy, resolve blockers where possible (re-order
dependencies, split or merge objectives), and record any new tasks needed. If the run is genuinely
finished, say so explicitly; do not invent unnecessary follow-up work.`

// ProjectPlanning implements the project_planning phase (§4.2 tactical
// step 5's post-documentation pass; §4.4's BLOCKED health recommendation;
// §4.10's second-priority intervention; and the "no eligible task"
// fallback of decideTactical).
type ProjectPlanning struct {
	base   *phase.Base
	ObjMgr *objective.Manager
}

// NewProjectPlanning constructs the project_planning phase.
func NewProjectPlanning(deps phase.Deps, objMgr *objective.Manager) *ProjectPlanning {
	return &ProjectPlanning{base: phase.NewBase("project_planning", deps, projectPlanningSystemPrompt), ObjMgr: objMgr}
}

func (p *ProjectPlanning) Name() string { return "project_planning" }

// Execute runs the strategic review; project_planning spans all three
// objective levels, same as refactoring and investigation (§4.3).
func (p *ProjectPlanning) Execute(ctx context.Context, st *state.PipelineState, task *state.Task) (phase.Result, error) {
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
