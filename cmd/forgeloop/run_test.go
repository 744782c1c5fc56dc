package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"forgeloop/internal/config"
	"forgeloop/internal/objective"
	"forgeloop/internal/state"
)

func TestLoadObjectives_MissingPlanReturnsEmptyManager(t *testing.T) {
	t.Parallel()

	mgr, err := loadObjectives(filepath.Join(t.TempDir(), "MASTER_PLAN.md"))
	if err != nil {
		t.Fatalf("loadObjectives: %v", err)
	}
	if len(mgr.All()) != 0 {
		t.Errorf("expected no objectives for a missing plan, got %d", len(mgr.All()))
	}
}

func TestLoadObjectives_ParsesExistingPlan(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	planPath := filepath.Join(dir, "MASTER_PLAN.md")
	content := "## Primary: Ship v1\n- status: active\n- description: first release\n"
	if err := os.WriteFile(planPath, []byte(content), 0644); err != nil {
		t.Fatalf("write plan: %v", err)
	}

	mgr, err := loadObjectives(planPath)
	if err != nil {
		t.Fatalf("loadObjectives: %v", err)
	}
	all := mgr.All()
	if len(all) != 1 {
		t.Fatalf("expected 1 parsed objective, got %d", len(all))
	}
	if all[0].Title != "Ship v1" {
		t.Errorf("expected title %q, got %q", "Ship v1", all[0].Title)
	}
}

func TestRunDryRun_ReportsDecisionWithoutMutatingState(t *testing.T) {
	t.Parallel()

	store, err := state.Open(filepath.Join(t.TempDir(), "state.json"), "run1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Mutate(func(st *state.PipelineState) error {
		st.Tasks["t1"] = &state.Task{ID: "t1", Status: state.TaskNew}
		return nil
	}); err != nil {
		t.Fatalf("seed mutate: %v", err)
	}

	cfg := config.DefaultConfig()
	objMgr := objective.NewManager(nil)

	outcome, err := runDryRun(context.Background(), store, objMgr, cfg)
	if err != nil {
		t.Fatalf("runDryRun: %v", err)
	}
	if outcome.Iterations != 1 {
		t.Errorf("expected 1 reported iteration, got %d", outcome.Iterations)
	}

	after := store.Load()
	if after.Tasks["t1"].Status != state.TaskNew {
		t.Errorf("expected dry run to leave task status unchanged, got %s", after.Tasks["t1"].Status)
	}
}
