// Package coordinator implements the outer control loop and the
// tactical/strategic phase-selection engine (§4.2): "the Phase
// Coordinator" spec.md names as component #1.
//
// Grounded structurally on internal/campaign/orchestrator_phases.go's
// plain-Go, no-Mangle loop-and-short-circuit style (getCurrentPhase,
// getEligibleTasks, getNextTask, isCampaignComplete), with the decision
// rules themselves reimplemented from spec.md §4.2's tactical/strategic
// tables rather than ported from any one teacher function — the teacher
// drives this from Mangle kernel facts, and no `.mg` rule files are
// retrievable anywhere in the pack, so the default selector here is
// plain Go (spec.md §9 anticipates this as the expected default).
package coordinator

import (
	"sort"

	"forgeloop/internal/config"
	"forgeloop/internal/objective"
	"forgeloop/internal/state"
)

// Decision is the outcome of one decide_next_action call (§4.2): which
// phase to run next, and which task (if any) that phase should target.
type Decision struct {
	Phase  string
	TaskID string
	Reason string
}

// Selector is the default plain-Go two-layer decision engine. An
// optional Mangle-backed arbiter (internal/coordinator/arbiter) can stand
// in for Selector behind the same interface when config.Coordinator.
// UseArbiter is set.
type Selector struct {
	lifecycle config.LifecycleThresholds
}

// NewSelector constructs a Selector with the given lifecycle thresholds.
func NewSelector(lifecycle config.LifecycleThresholds) *Selector {
	return &Selector{lifecycle: lifecycle}
}

// Decide implements spec.md §4.2's decide_next_action: the tactical layer
// when no objectives exist, the strategic layer (active objective health
// plus task composition) when they do, falling back to the tactical
// rules as a refinement either way.
func (s *Selector) Decide(st *state.PipelineState, objMgr *objective.Manager) Decision {
	if objMgr != nil && len(objMgr.All()) > 0 {
		if d, ok := s.decideStrategic(st, objMgr); ok {
			return d
		}
	}
	return s.decideTactical(st)
}

// decideTactical implements the five-step tactical layer of §4.2,
// operating over every task in PipelineState regardless of objective
// assignment.
func (s *Selector) decideTactical(st *state.PipelineState) Decision {
	tasks := sortedTasks(st)

	if t := firstWithStatus(tasks, state.TaskNeedsFixes); t != nil {
		return Decision{Phase: "debugging", TaskID: t.ID, Reason: "task needs fixes"}
	}

	qaPending := withStatus(tasks, state.TaskQAPending)
	if len(qaPending) > 0 {
		if s.qaEligible(st, len(qaPending)) {
			return Decision{Phase: "qa", TaskID: qaPending[0].ID, Reason: "qa_pending tasks cleared lifecycle gating"}
		}
		// Lifecycle gating deferred QA; fall through to step 3.
	}

	if t := firstWithStatus(tasks, state.TaskNew, state.TaskInProgress); t != nil {
		return Decision{Phase: codingPhaseFor(t), TaskID: t.ID, Reason: "task ready to work"}
	}

	if len(tasks) == 0 {
		return Decision{Phase: "planning", Reason: "no tasks exist"}
	}

	if allCompleted(tasks) {
		switch lastPhase(st) {
		case "documentation":
			return Decision{Phase: "project_planning", Reason: "documentation finished; final project_planning pass before termination"}
		case "project_planning":
			return Decision{Phase: "project_planning", Reason: "awaiting termination"}
		default:
			return Decision{Phase: "documentation", Reason: "all tasks completed"}
		}
	}

	// Nothing eligible (e.g. everything BLOCKED or DEFERRED): escalate to
	// project_planning so a human-authored plan can be re-derived.
	return Decision{Phase: "project_planning", Reason: "no eligible task and not all completed"}
}

// qaEligible applies the §4.2 lifecycle-gating rule for step 2. The
// completion bucket's "always routes" is additionally conditioned on
// config.LifecycleThresholds.MinQARunsBeforeCompletion: a run that hasn't
// exercised qa at least that many times yet is treated as consolidation
// instead, so a project that races to 75% completion without ever
// running qa doesn't skip it outright. See DESIGN.md Open Question
// decisions for why this field is read here rather than the others.
func (s *Selector) qaEligible(st *state.PipelineState, qaPendingCount int) bool {
	maturity := state.MaturityFromCompletion(st.CompletionPercentage)
	if maturity == state.MaturityCompletion && s.qaRunCount(st) < s.lifecycle.MinQARunsBeforeCompletion {
		maturity = state.MaturityConsolidation
	}

	switch maturity {
	case state.MaturityFoundation:
		return false
	case state.MaturityIntegration:
		return qaPendingCount >= 5
	case state.MaturityConsolidation:
		return qaPendingCount >= 3
	default: // completion
		return true
	}
}

func (s *Selector) qaRunCount(st *state.PipelineState) int {
	if ps, ok := st.Phases["qa"]; ok && ps != nil {
		return ps.RunCount
	}
	return 0
}

// codingPhaseFor routes a task to coding unless its metadata marks it as
// a specialized documentation/refactoring task, matching §4.2 step 3's
// "(or documentation/refactoring for specialized tasks)" clause.
func codingPhaseFor(t *state.Task) string {
	if t.Metadata != nil {
		if kind := t.Metadata["task_type"]; kind == "documentation" || kind == "refactoring" {
			return kind
		}
	}
	return "coding"
}

// decideStrategic implements the strategic layer of §4.2: select the
// active objective (§4.4) and derive an action from its health and task
// composition. Returns ok=false when no objective is eligible, signaling
// the caller to fall back to the tactical layer's whole-state view.
func (s *Selector) decideStrategic(st *state.PipelineState, objMgr *objective.Manager) (Decision, bool) {
	objMgr.MergeTasks(st)
	active := objMgr.SelectActive()
	if active == nil {
		return Decision{Phase: "project_planning", Reason: "no active objective"}, true
	}

	statuses := objective.TaskStatusesFor(active, st)
	phase := objMgr.RecommendAction(active, statuses)

	taskID := ""
	if t := firstTaskForObjective(st, active, phase); t != nil {
		taskID = t.ID
	}
	return Decision{Phase: phase, TaskID: taskID, Reason: "strategic: objective " + active.ID}, true
}

// firstTaskForObjective picks a concrete task id for the recommended
// phase from an objective's assigned tasks, so the phase has something
// to act on rather than just a phase name.
func firstTaskForObjective(st *state.PipelineState, obj *state.Objective, phase string) *state.Task {
	wantStatus := map[string]state.TaskStatus{
		"debugging": state.TaskNeedsFixes,
		"qa":        state.TaskQAPending,
		"coding":    state.TaskNew,
	}
	want, ok := wantStatus[phase]
	for _, taskID := range obj.Tasks {
		t, exists := st.Tasks[taskID]
		if !exists {
			continue
		}
		if !ok || t.Status == want || t.Status == state.TaskInProgress {
			return t
		}
	}
	return nil
}

// Termination reports whether the coordinator's outer loop should stop:
// every task COMPLETED, the final documentation -> project_planning pass
// of §4.2 step 5 has run, and, when objectives exist, every objective is
// COMPLETED too.
func Termination(st *state.PipelineState, objMgr *objective.Manager) bool {
	tasks := sortedTasks(st)
	if len(tasks) == 0 {
		return false
	}
	if !allCompleted(tasks) {
		return false
	}
	if lastPhase(st) != "project_planning" {
		return false
	}
	if objMgr == nil {
		return true
	}
	for _, obj := range objMgr.All() {
		if obj.Status != state.ObjStatusCompleted && obj.Status != state.ObjStatusDocumented {
			return false
		}
	}
	return true
}

// lastPhase returns the most recently recorded phase name, or "" if
// phase_history is empty.
func lastPhase(st *state.PipelineState) string {
	if len(st.PhaseHistory) == 0 {
		return ""
	}
	return st.PhaseHistory[len(st.PhaseHistory)-1]
}

func sortedTasks(st *state.PipelineState) []*state.Task {
	out := make([]*state.Task, 0, len(st.Tasks))
	for _, t := range st.Tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func firstWithStatus(tasks []*state.Task, statuses ...state.TaskStatus) *state.Task {
	for _, t := range tasks {
		for _, s := range statuses {
			if t.Status == s {
				return t
			}
		}
	}
	return nil
}

func withStatus(tasks []*state.Task, status state.TaskStatus) []*state.Task {
	out := make([]*state.Task, 0)
	for _, t := range tasks {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out
}

func allCompleted(tasks []*state.Task) bool {
	for _, t := range tasks {
		if t.Status != state.TaskCompleted {
			return false
		}
	}
	return true
}
