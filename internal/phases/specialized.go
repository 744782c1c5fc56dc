package phases

import (
	"context"

	"forgeloop/internal/objective"
	"forgeloop/internal/phase"
	"forgeloop/internal/state"
)

// specializedPhase is the shared shape for the four §4.11 on-demand
// phases: each differs only in name and system prompt, and none
// participates in the tactical status rules (§4.11: "they do not
// participate in the tactical status rules").
type specializedPhase struct {
	name   string
	base   *phase.Base
	ObjMgr *objective.Manager
}

func newSpecializedPhase(name, systemPrompt string, deps phase.Deps, objMgr *objective.Manager) *specializedPhase {
	return &specializedPhase{name: name, base: phase.NewBase(name, deps, systemPrompt), ObjMgr: objMgr}
}

func (s *specializedPhase) Name() string { return s.name }

func (s *specializedPhase) Execute(ctx context.Context, st *state.PipelineState, task *state.Task) (phase.Result, error) {
	userMsg := buildUserMessage(task, s.ObjMgr, state.ObjectivePrimary, state.ObjectiveSecondary, state.ObjectiveTertiary)

	response, created, modified, err := s.base.Run(ctx, userMsg)
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

const promptDesignSystemPrompt = `You are the prompt_design specialized phase, activated on demand (§4.11) when a
task has failed repeatedly or another phase flagged a missing capability tied to how a phase's own
system prompt is worded. Review the system prompt of the phase that struggled and propose a revised
version using the available prompt-inspection tools. You design and improve prompts; you do not
write application code.`

// NewPromptDesign constructs the prompt_design specialized phase.
func NewPromptDesign(deps phase.Deps, objMgr *objective.Manager) phase.Phase {
	return newSpecializedPhase("prompt_design", promptDesignSystemPrompt, deps, objMgr)
}

const roleDesignSystemPrompt = `You are the role_design specialized phase, activated on demand (§4.11) when the
coordinator determines that no existing phase's role definition covers a needed capability. Propose
a role boundary change (what a phase should and should not be responsible for) rather than
implementing the capability yourself.`

// NewRoleDesign constructs the role_design specialized phase.
func NewRoleDesign(deps phase.Deps, objMgr *objective.Manager) phase.Phase {
	return newSpecializedPhase("role_design", roleDesignSystemPrompt, deps, objMgr)
}

const toolDesignSystemPrompt = `You are the tool_design specialized phase, activated on demand (§4.11) when a
phase's result indicates the Tool Handler Registry lacks an operation it needed. Evaluate whether an
existing tool can be parameterized to cover the gap before proposing a new one; a new tool should be
the last resort, not the first.`

// NewToolDesign constructs the tool_design specialized phase.
func NewToolDesign(deps phase.Deps, objMgr *objective.Manager) phase.Phase {
	return newSpecializedPhase("tool_design", toolDesignSystemPrompt, deps, objMgr)
}

const applicationTroubleshootingSystemPrompt = `You are the application_troubleshooting specialized phase, the general-purpose
fallback of §4.11 activated when a trigger fires but none of prompt_design/role_design/tool_design
is a clear fit. Diagnose the failing task end-to-end using every available tool category and apply
or recommend a fix.`

// NewApplicationTroubleshooting constructs the application_troubleshooting
// specialized phase.
func NewApplicationTroubleshooting(deps phase.Deps, objMgr *objective.Manager) phase.Phase {
	return newSpecializedPhase("application_troubleshooting", applicationTroubleshootingSystemPrompt, deps, objMgr)
}
