// Package objective implements the Objective Manager (§4.4): parsing
// objectives from markdown at startup, merging persisted task lists back
// onto them on every load, scoring objective health, selecting the
// active objective, and recommending the next action.
//
// Grounded on internal/campaign/orchestrator_phases.go's plain status-filter
// selection shape (getEligibleTasks/isPhaseComplete/getCampaignBlockReason),
// adapted from Mangle fact queries to direct field checks over the
// already-built state.Objective/state.Task types, since SPEC_FULL carries
// no logic/Datalog kernel.
package objective

import (
	"fmt"
	"sort"

	"forgeloop/internal/state"
)

// Health is the result of analyzing one objective (§4.4).
type Health string

const (
	Healthy   Health = "HEALTHY"
	Degrading Health = "DEGRADING"
	Critical  Health = "CRITICAL"
	Blocked   Health = "BLOCKED"
)

// Analysis bundles an objective's health with the recommended next phase.
type Analysis struct {
	ObjectiveID    string
	Health         Health
	Recommendation string // phase name, or "" when healthy and no action is due
	Reason         string
}

// Manager owns the parsed objective set and answers health/selection/action
// queries against whatever PipelineState the caller hands it. It holds no
// state of its own beyond the parsed (task-less) shells produced at
// startup; state.PipelineState remains the single source of truth for
// task assignment, per §4.8.
type Manager struct {
	// parsed holds the objectives parsed from markdown, indexed by level
	// then id, with empty Tasks lists. MergeTasks fills Tasks in from a
	// PipelineState snapshot on every load.
	parsed map[state.ObjectiveLevel]map[string]*state.Objective
}

// NewManager wraps an already-parsed objective set (see ParseMarkdown).
func NewManager(parsed map[state.ObjectiveLevel]map[string]*state.Objective) *Manager {
	if parsed == nil {
		parsed = map[state.ObjectiveLevel]map[string]*state.Objective{
			state.ObjectivePrimary:   make(map[string]*state.Objective),
			state.ObjectiveSecondary: make(map[string]*state.Objective),
			state.ObjectiveTertiary:  make(map[string]*state.Objective),
		}
	}
	return &Manager{parsed: parsed}
}

// MergeTasks is the fix for the documented data-loss bug: parsed
// objectives always start with an empty Tasks list, so every load must
// copy the persisted task-id list from st.Objectives back onto the
// manager's copy before any health/selection logic runs. It also copies
// the other mutable fields (status, issues, failure/success counters)
// so the merged objective reflects the run's current state rather than
// its as-parsed defaults.
func (m *Manager) MergeTasks(st *state.PipelineState) {
	if st == nil || st.Objectives == nil {
		return
	}
	for level, byID := range m.parsed {
		persisted, ok := st.Objectives[level]
		if !ok {
			continue
		}
		for id, obj := range byID {
			p, ok := persisted[id]
			if !ok {
				continue
			}
			obj.Tasks = append([]string(nil), p.Tasks...)
			obj.Status = p.Status
			obj.CompletionPercentage = p.CompletionPercentage
			obj.OpenIssues = p.OpenIssues
			obj.CriticalIssues = p.CriticalIssues
			obj.SuccessRate = p.SuccessRate
			obj.FailureCount = p.FailureCount
			obj.StartedAt = p.StartedAt
			obj.CompletedAt = p.CompletedAt
		}
	}
}

// All returns every parsed objective across all three levels.
func (m *Manager) All() []*state.Objective {
	out := make([]*state.Objective, 0)
	for _, byID := range m.parsed {
		for _, obj := range byID {
			out = append(out, obj)
		}
	}
	return out
}

// Get looks up a single objective by level and id.
func (m *Manager) Get(level state.ObjectiveLevel, id string) (*state.Objective, bool) {
	byID, ok := m.parsed[level]
	if !ok {
		return nil, false
	}
	obj, ok := byID[id]
	return obj, ok
}

// AnalyzeHealth scores one objective's health, applying the priority
// order from §4.4: blocking dependencies, then critical blocking issues,
// then consecutive failures >= 3, then success rate < 0.5, else healthy.
func (m *Manager) AnalyzeHealth(obj *state.Objective) Analysis {
	a := Analysis{ObjectiveID: obj.ID}

	if blocker := m.firstIncompleteDependency(obj); blocker != "" {
		a.Health = Blocked
		a.Recommendation = "project_planning"
		a.Reason = fmt.Sprintf("blocked on dependency %s", blocker)
		return a
	}

	if len(obj.CriticalIssues) > 0 {
		a.Health = Critical
		a.Recommendation = "investigation"
		a.Reason = fmt.Sprintf("%d critical blocking issue(s)", len(obj.CriticalIssues))
		return a
	}

	if obj.FailureCount >= 3 {
		a.Health = Critical
		a.Recommendation = "investigation"
		a.Reason = fmt.Sprintf("%d consecutive failures", obj.FailureCount)
		return a
	}

	if obj.SuccessRate > 0 && obj.SuccessRate < 0.5 {
		a.Health = Degrading
		a.Recommendation = "debugging"
		a.Reason = fmt.Sprintf("success rate %.2f below 0.5", obj.SuccessRate)
		return a
	}

	a.Health = Healthy
	return a
}

// firstIncompleteDependency returns the id of the first dependency not in
// COMPLETED status, or "" if all dependencies (if any) are complete.
func (m *Manager) firstIncompleteDependency(obj *state.Objective) string {
	for _, depID := range obj.DependsOn {
		dep := m.findByID(depID)
		if dep == nil || dep.Status != state.ObjStatusCompleted {
			return depID
		}
	}
	return ""
}

func (m *Manager) findByID(id string) *state.Objective {
	for _, byID := range m.parsed {
		if obj, ok := byID[id]; ok {
			return obj
		}
	}
	return nil
}

// SelectActive implements §4.4's active-objective selection: first
// ACTIVE, else first IN_PROGRESS (ordered by level then id), else first
// APPROVED whose depends_on are all COMPLETED; nil signals project
// planning should run instead.
func (m *Manager) SelectActive() *state.Objective {
	ordered := m.orderedByLevelThenID()

	for _, obj := range ordered {
		if obj.Status == state.ObjStatusActive {
			return obj
		}
	}
	for _, obj := range ordered {
		if obj.Status == state.ObjStatusInProgress {
			return obj
		}
	}
	for _, obj := range ordered {
		if obj.Status != state.ObjStatusApproved {
			continue
		}
		if m.firstIncompleteDependency(obj) == "" {
			return obj
		}
	}
	return nil
}

var levelOrder = map[state.ObjectiveLevel]int{
	state.ObjectivePrimary:   0,
	state.ObjectiveSecondary: 1,
	state.ObjectiveTertiary:  2,
}

func (m *Manager) orderedByLevelThenID() []*state.Objective {
	all := m.All()
	sort.Slice(all, func(i, j int) bool {
		li, lj := levelOrder[all[i].Level], levelOrder[all[j].Level]
		if li != lj {
			return li < lj
		}
		return all[i].ID < all[j].ID
	})
	return all
}

// RecommendAction implements §4.4's action recommendation: health-based
// precedes task-based precedes completion-based. taskStatuses is the set
// of statuses held by the objective's assigned tasks (looked up by the
// caller from PipelineState.Tasks), used for the task-based tier.
func (m *Manager) RecommendAction(obj *state.Objective, taskStatuses []state.TaskStatus) string {
	health := m.AnalyzeHealth(obj)
	if health.Recommendation != "" {
		return health.Recommendation
	}

	for _, s := range taskStatuses {
		if s == state.TaskNeedsFixes {
			return "debugging"
		}
	}
	for _, s := range taskStatuses {
		if s == state.TaskQAPending {
			return "qa"
		}
	}
	for _, s := range taskStatuses {
		if s == state.TaskNew || s == state.TaskInProgress {
			return "coding"
		}
	}

	if obj.CompletionPercentage >= 100 {
		return "documentation"
	}
	return "planning"
}

// TaskStatusesFor collects the statuses of an objective's assigned tasks
// from a PipelineState, for use with RecommendAction.
func TaskStatusesFor(obj *state.Objective, st *state.PipelineState) []state.TaskStatus {
	if st == nil || st.Tasks == nil {
		return nil
	}
	out := make([]state.TaskStatus, 0, len(obj.Tasks))
	for _, taskID := range obj.Tasks {
		if t, ok := st.Tasks[taskID]; ok {
			out = append(out, t.Status)
		}
	}
	return out
}
