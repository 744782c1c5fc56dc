// Package phases implements the eight primary phase implementations
// (§4.3's "Phase Implementations" row: planning, coding, qa, debugging,
// investigation, refactoring, documentation, project_planning) plus the
// four on-demand specialized phases of §4.11, all driven by the shared
// phase.Base loop.
//
// Grounded on internal/campaign/orchestrator_phases.go, which is the
// teacher's own closest analogue (per-phase prompt construction plus a
// thin wrapper invoking the shared execution loop), generalized from the
// teacher's Mangle-fact-driven phase set to the plain-Go PipelineState
// view every phase here reads through.
package phases

import (
	"fmt"
	"strings"

	"forgeloop/internal/objective"
	"forgeloop/internal/state"
)

// objectiveContext renders the given objectives as the "objective
// context" step 3 of §4.3 requires alongside the task description. The
// specific level sets per phase are selected by each phase's
// buildUserMessage, per §4.3: primary only for coding/documentation;
// secondary+tertiary for qa/debugging; all three for refactoring.
func objectiveContext(objMgr *objective.Manager, levels ...state.ObjectiveLevel) string {
	if objMgr == nil {
		return ""
	}
	want := make(map[state.ObjectiveLevel]bool, len(levels))
	for _, l := range levels {
		want[l] = true
	}

	var b strings.Builder
	for _, obj := range objMgr.All() {
		if !want[obj.Level] {
			continue
		}
		fmt.Fprintf(&b, "- [%s/%s] %s (%s, %.0f%% complete): %s\n",
			obj.Level, obj.ID, obj.Title, obj.Status, obj.CompletionPercentage, obj.Description)
		if len(obj.CriticalIssues) > 0 {
			fmt.Fprintf(&b, "  critical issues: %s\n", strings.Join(obj.CriticalIssues, "; "))
		}
		if len(obj.OpenIssues) > 0 {
			fmt.Fprintf(&b, "  open issues: %s\n", strings.Join(obj.OpenIssues, "; "))
		}
	}
	if b.Len() == 0 {
		return "(no objectives at this level yet)"
	}
	return b.String()
}

// taskDescription renders a task's description plus its recorded error
// history, or a sentinel string when no task was assigned (phases that
// operate on the whole state rather than a single task, e.g. planning).
func taskDescription(task *state.Task) string {
	if task == nil {
		return "(no single task assigned; operate across the whole project state)"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Task %s (priority %d, attempt %d): %s\n", task.ID, task.Priority, task.Attempts+1, task.Description)
	if task.TargetFile != "" {
		fmt.Fprintf(&b, "Target file: %s\n", task.TargetFile)
	}
	if len(task.Errors) > 0 {
		b.WriteString("Prior errors on this task:\n")
		for _, e := range task.Errors {
			fmt.Fprintf(&b, "  - [%s/%s] %s: %s\n", e.Phase, e.Kind, e.Timestamp.Format("2006-01-02T15:04:05Z"), e.Details)
		}
	}
	return b.String()
}

// buildUserMessage composes the §4.3 step-3 user message: task
// description plus objective context at the levels the phase cares
// about.
func buildUserMessage(task *state.Task, objMgr *objective.Manager, levels ...state.ObjectiveLevel) string {
	var b strings.Builder
	b.WriteString(taskDescription(task))
	b.WriteString("\nRelevant objectives:\n")
	b.WriteString(objectiveContext(objMgr, levels...))
	return b.String()
}

// dataWithStatus builds the Data map a phase.Result uses to request a
// task status transition (coordinator.recordResult reads "task_status").
func dataWithStatus(status state.TaskStatus) map[string]interface{} {
	return map[string]interface{}{"task_status": string(status)}
}

// recommendationMarker is the line prefix investigationSystemPrompt asks
// the model to end its response with when it wants a specialized phase
// invoked (§4.11 trigger c).
const recommendationMarker = "RECOMMEND_SPECIALIZED:"

// extractRecommendation pulls the specialized phase name off a trailing
// RECOMMEND_SPECIALIZED marker line, or "" if none is present.
func extractRecommendation(response string) string {
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, recommendationMarker) {
			return strings.TrimSpace(strings.TrimPrefix(line, recommendationMarker))
		}
	}
	return ""
}
