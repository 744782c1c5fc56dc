package coordinator

import (
	"testing"

	"forgeloop/internal/config"
	"forgeloop/internal/objective"
	"forgeloop/internal/state"
)

func newTestState() *state.PipelineState {
	st := state.NewPipelineState("run1")
	return st
}

func TestSelector_DecideTactical_NeedsFixesRoutesToDebuggingFirst(t *testing.T) {
	t.Parallel()

	st := newTestState()
	st.Tasks["t1"] = &state.Task{ID: "t1", Status: state.TaskQAPending}
	st.Tasks["t2"] = &state.Task{ID: "t2", Status: state.TaskNeedsFixes}

	sel := NewSelector(config.DefaultLifecycleThresholds())
	d := sel.Decide(st, nil)
	if d.Phase != "debugging" || d.TaskID != "t2" {
		t.Fatalf("expected debugging/t2, got %+v", d)
	}
}

func TestSelector_DecideTactical_QAPendingDeferredBelowFoundationThreshold(t *testing.T) {
	t.Parallel()

	st := newTestState()
	st.Tasks["t1"] = &state.Task{ID: "t1", Status: state.TaskQAPending}
	st.Tasks["t2"] = &state.Task{ID: "t2", Status: state.TaskNew}
	st.CompletionPercentage = 10 // foundation: always defer qa

	sel := NewSelector(config.DefaultLifecycleThresholds())
	d := sel.Decide(st, nil)
	if d.Phase != "coding" || d.TaskID != "t2" {
		t.Fatalf("expected qa deferred to coding/t2, got %+v", d)
	}
}

func TestSelector_DecideTactical_QAPendingRoutesAtIntegrationWithFivePending(t *testing.T) {
	t.Parallel()

	st := newTestState()
	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		st.Tasks[id] = &state.Task{ID: id, Status: state.TaskQAPending}
	}
	st.CompletionPercentage = 30 // integration

	sel := NewSelector(config.DefaultLifecycleThresholds())
	d := sel.Decide(st, nil)
	if d.Phase != "qa" {
		t.Fatalf("expected qa with 5 pending at integration maturity, got %+v", d)
	}
}

func TestSelector_DecideTactical_NoTasksRoutesToPlanning(t *testing.T) {
	t.Parallel()

	sel := NewSelector(config.DefaultLifecycleThresholds())
	d := sel.Decide(newTestState(), nil)
	if d.Phase != "planning" {
		t.Fatalf("expected planning, got %+v", d)
	}
}

func TestSelector_DecideTactical_AllCompletedSequencesDocumentationThenProjectPlanning(t *testing.T) {
	t.Parallel()

	st := newTestState()
	st.Tasks["t1"] = &state.Task{ID: "t1", Status: state.TaskCompleted}
	sel := NewSelector(config.DefaultLifecycleThresholds())

	d := sel.Decide(st, nil)
	if d.Phase != "documentation" {
		t.Fatalf("expected documentation first, got %+v", d)
	}

	st.PhaseHistory = append(st.PhaseHistory, "documentation")
	d = sel.Decide(st, nil)
	if d.Phase != "project_planning" {
		t.Fatalf("expected project_planning after documentation, got %+v", d)
	}
}

func TestTermination_RequiresProjectPlanningAfterAllCompleted(t *testing.T) {
	t.Parallel()

	st := newTestState()
	st.Tasks["t1"] = &state.Task{ID: "t1", Status: state.TaskCompleted}

	if Termination(st, nil) {
		t.Fatal("expected no termination before documentation/project_planning ran")
	}

	st.PhaseHistory = []string{"documentation", "project_planning"}
	if !Termination(st, nil) {
		t.Fatal("expected termination once project_planning ran last")
	}
}

func TestSelector_DecideStrategic_UsesObjectiveRecommendation(t *testing.T) {
	t.Parallel()

	parsed := map[state.ObjectiveLevel]map[string]*state.Objective{
		state.ObjectivePrimary:   {"primary_001": {ID: "primary_001", Level: state.ObjectivePrimary, Status: state.ObjStatusActive}},
		state.ObjectiveSecondary: {},
		state.ObjectiveTertiary:  {},
	}
	objMgr := objective.NewManager(parsed)

	st := newTestState()
	st.Objectives[state.ObjectivePrimary]["primary_001"] = &state.Objective{
		ID: "primary_001", Level: state.ObjectivePrimary, Status: state.ObjStatusActive,
		Tasks: []string{"t1"},
	}
	st.Tasks["t1"] = &state.Task{ID: "t1", Status: state.TaskNeedsFixes}

	sel := NewSelector(config.DefaultLifecycleThresholds())
	d := sel.Decide(st, objMgr)
	if d.Phase != "debugging" || d.TaskID != "t1" {
		t.Fatalf("expected strategic layer to route NEEDS_FIXES task to debugging, got %+v", d)
	}
}
