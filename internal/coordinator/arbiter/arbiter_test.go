package arbiter

import (
	"testing"

	"forgeloop/internal/config"
	"forgeloop/internal/coordinator"
	"forgeloop/internal/objective"
	"forgeloop/internal/state"
)

func newArbiter(t *testing.T) *Arbiter {
	t.Helper()
	selector := coordinator.NewSelector(config.DefaultLifecycleThresholds())
	arb, err := New(selector)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return arb
}

func TestArbiter_Decide_NeedsFixesRoutesToDebuggingFirst(t *testing.T) {
	t.Parallel()

	st := state.NewPipelineState("run1")
	st.Tasks["t1"] = &state.Task{ID: "t1", Status: state.TaskQAPending}
	st.Tasks["t2"] = &state.Task{ID: "t2", Status: state.TaskNeedsFixes}
	st.CompletionPercentage = 80 // completion bucket: qa would otherwise always win

	d := newArbiter(t).Decide(st, nil)
	if d.Phase != "debugging" || d.TaskID != "t2" {
		t.Fatalf("expected debugging/t2, got %+v", d)
	}
}

func TestArbiter_Decide_QAPendingDeferredBelowLifecycleThreshold(t *testing.T) {
	t.Parallel()

	st := state.NewPipelineState("run1")
	st.Tasks["t1"] = &state.Task{ID: "t1", Status: state.TaskQAPending}
	st.Tasks["t2"] = &state.Task{ID: "t2", Status: state.TaskNew}
	st.CompletionPercentage = 10 // foundation: always defer qa

	d := newArbiter(t).Decide(st, nil)
	if d.Phase != "coding" || d.TaskID != "t2" {
		t.Fatalf("expected qa deferred to coding/t2, got %+v", d)
	}
}

func TestArbiter_Decide_QAPendingRoutesAtCompletion(t *testing.T) {
	t.Parallel()

	st := state.NewPipelineState("run1")
	st.Tasks["t1"] = &state.Task{ID: "t1", Status: state.TaskQAPending}
	st.CompletionPercentage = 80 // completion bucket: always qa-eligible

	d := newArbiter(t).Decide(st, nil)
	if d.Phase != "qa" || d.TaskID != "t1" {
		t.Fatalf("expected qa/t1, got %+v", d)
	}
}

func TestArbiter_Decide_ReadyTaskRoutesToCoding(t *testing.T) {
	t.Parallel()

	st := state.NewPipelineState("run1")
	st.Tasks["t1"] = &state.Task{ID: "t1", Status: state.TaskInProgress}

	d := newArbiter(t).Decide(st, nil)
	if d.Phase != "coding" || d.TaskID != "t1" {
		t.Fatalf("expected coding/t1, got %+v", d)
	}
}

func TestArbiter_Decide_NoTasksFallsBackToSelectorPlanning(t *testing.T) {
	t.Parallel()

	st := state.NewPipelineState("run1")

	d := newArbiter(t).Decide(st, nil)
	if d.Phase != "planning" {
		t.Fatalf("expected planning, got %+v", d)
	}
}

func TestArbiter_Decide_WithObjectivesDelegatesToSelector(t *testing.T) {
	t.Parallel()

	// The embedded rule set only models the no-objective tactical path
	// (§4.2 steps 1-3); as soon as any objective exists Decide delegates
	// entirely to the wrapped Selector's strategic layer, same as the
	// plain Selector would for itself.
	st := state.NewPipelineState("run1")
	st.Tasks["t1"] = &state.Task{ID: "t1", Status: state.TaskNeedsFixes}
	obj := &state.Objective{ID: "o1", Level: state.ObjectivePrimary, Title: "Ship v1", Status: state.ObjStatusActive, Tasks: []string{"t1"}}
	st.Objectives[state.ObjectivePrimary]["o1"] = obj

	selector := coordinator.NewSelector(config.DefaultLifecycleThresholds())
	arb, err := New(selector)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	parsed := map[state.ObjectiveLevel]map[string]*state.Objective{
		state.ObjectivePrimary:   {"o1": {ID: "o1", Level: state.ObjectivePrimary, Title: "Ship v1", Status: state.ObjStatusActive}},
		state.ObjectiveSecondary: {},
		state.ObjectiveTertiary:  {},
	}
	objMgr := objective.NewManager(parsed)

	got := arb.Decide(st, objMgr)
	want := selector.Decide(st, objMgr)
	if got != want {
		t.Fatalf("expected arbiter to delegate to selector when objectives exist: got %+v, want %+v", got, want)
	}
}
