package coordinator

import (
	"context"
	"strings"

	"forgeloop/internal/config"
	"forgeloop/internal/logging"
	"forgeloop/internal/phase"
	"forgeloop/internal/state"
)

// SpecializedTrigger names which of the three §4.11 conditions fired.
type SpecializedTrigger string

const (
	TriggerFailureCount                SpecializedTrigger = "failure_count"
	TriggerMissingCapability           SpecializedTrigger = "missing_capability"
	TriggerInvestigationRecommendation SpecializedTrigger = "investigation_recommendation"
)

// missingCapabilityMarkers are the phrases a phase result's message is
// checked against for trigger (b). Matching is case-insensitive and
// substring-based since phases author free-text messages, not structured
// capability codes.
var missingCapabilityMarkers = []string{
	"missing capability",
	"no tool available",
	"cannot be performed with the current tools",
	"requires a specialized",
}

// DetectTrigger implements §4.11's three trigger conditions against one
// just-completed phase result. It returns ("", "") when none fire.
//
// Grounded on spec.md §4.11's trigger list directly; there is no teacher
// equivalent since the teacher drives specialist activation from Mangle
// kernel facts rather than a Go decision function.
func DetectTrigger(cfg config.SpecializedConfig, task *state.Task, result phase.Result) (SpecializedTrigger, string) {
	if task != nil && task.FailureCount >= cfg.FailureThreshold {
		return TriggerFailureCount, "task failure_count reached threshold"
	}

	lowered := strings.ToLower(result.Message)
	for _, marker := range missingCapabilityMarkers {
		if strings.Contains(lowered, marker) {
			return TriggerMissingCapability, "phase result indicates a missing capability: " + marker
		}
	}

	if rec, ok := result.Data["recommend_specialized"].(string); ok && rec != "" {
		return TriggerInvestigationRecommendation, "investigation recommended specialized phase " + rec
	}

	return "", ""
}

// specializedPhaseFor maps a trigger plus context to the specific
// specialized phase name to invoke (spec.md §4.11 names four: prompt
// design/improve, role design/improve, tool design/evaluate, application
// troubleshooting). Investigation's own recommendation always wins when
// present since it names the phase explicitly; the other two triggers
// fall back to application_troubleshooting, the general-purpose
// specialized phase, when no more specific signal is available.
func specializedPhaseFor(trigger SpecializedTrigger, result phase.Result) string {
	if rec, ok := result.Data["recommend_specialized"].(string); ok && rec != "" {
		return rec
	}
	return "application_troubleshooting"
}

// RunSpecializedIfTriggered checks §4.11's triggers against result and,
// if one fires, runs the matching specialized phase immediately and logs
// the activation with a distinguishing marker, then returns control to
// the caller's normal selection loop. The specialized phase's own result
// is recorded the same way as any other phase run.
func (c *Coordinator) RunSpecializedIfTriggered(ctx context.Context, st *state.PipelineState, task *state.Task, decision Decision, result phase.Result) {
	trigger, reason := DetectTrigger(c.Cfg.Specialized, task, result)
	if trigger == "" {
		return
	}

	name := specializedPhaseFor(trigger, result)
	ph, ok := c.Phases[name]
	if !ok {
		logging.CoordinatorWarn("specialized trigger %s fired (%s) but phase %q is not registered", trigger, reason, name)
		return
	}

	logging.Coordinator("[SPECIALIZED] activating %s: trigger=%s reason=%s", name, trigger, reason)
	specResult, err := ph.Execute(ctx, st, task)
	if err != nil {
		logging.CoordinatorError("specialized phase %s failed: %v", name, err)
	}

	specDecision := Decision{Phase: name, TaskID: decision.TaskID, Reason: "specialized: " + reason}
	if recErr := c.recordResult(specDecision, task, specResult); recErr != nil {
		logging.CoordinatorError("specialized phase %s: recording result failed: %v", name, recErr)
	}
}
