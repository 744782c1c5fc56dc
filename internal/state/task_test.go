package state

import (
	"testing"

	"forgeloop/internal/forgeerr"
)

func TestTask_Transition_AllowsHappyPath(t *testing.T) {
	t.Parallel()

	task := &Task{ID: "t1", Status: TaskNew}
	steps := []TaskStatus{TaskInProgress, TaskQAPending, TaskCompleted}
	for _, to := range steps {
		if err := task.Transition(to); err != nil {
			t.Fatalf("Transition(%s): %v", to, err)
		}
	}
	if task.Status != TaskCompleted {
		t.Errorf("expected final status COMPLETED, got %s", task.Status)
	}
}

func TestTask_Transition_NeedsFixesLoopsBackToInProgress(t *testing.T) {
	t.Parallel()

	task := &Task{ID: "t1", Status: TaskQAPending}
	if err := task.Transition(TaskNeedsFixes); err != nil {
		t.Fatalf("QA_PENDING -> NEEDS_FIXES: %v", err)
	}
	if err := task.Transition(TaskInProgress); err != nil {
		t.Fatalf("NEEDS_FIXES -> IN_PROGRESS: %v", err)
	}
}

func TestTask_Transition_AnyToFailedAlwaysAllowed(t *testing.T) {
	t.Parallel()

	for _, from := range []TaskStatus{TaskNew, TaskInProgress, TaskQAPending, TaskNeedsFixes, TaskBlocked, TaskDeferred} {
		task := &Task{ID: "t1", Status: from}
		if err := task.Transition(TaskFailed); err != nil {
			t.Errorf("%s -> FAILED should always be legal, got %v", from, err)
		}
	}
}

func TestTask_Transition_AnyToBlockedAlwaysAllowed(t *testing.T) {
	t.Parallel()

	task := &Task{ID: "t1", Status: TaskInProgress}
	if err := task.Transition(TaskBlocked); err != nil {
		t.Fatalf("IN_PROGRESS -> BLOCKED should be legal, got %v", err)
	}
}

func TestTask_Transition_BlockedReturnsToNew(t *testing.T) {
	t.Parallel()

	task := &Task{ID: "t1", Status: TaskBlocked}
	if err := task.Transition(TaskNew); err != nil {
		t.Fatalf("BLOCKED -> NEW: %v", err)
	}
}

func TestTask_Transition_FailedReopensToNew(t *testing.T) {
	t.Parallel()

	task := &Task{ID: "t1", Status: TaskFailed}
	if err := task.Transition(TaskNew); err != nil {
		t.Fatalf("FAILED -> NEW: %v", err)
	}
}

func TestTask_Transition_RejectsIllegalJump(t *testing.T) {
	t.Parallel()

	task := &Task{ID: "t1", Status: TaskNew}
	err := task.Transition(TaskCompleted)
	if err == nil {
		t.Fatal("expected NEW -> COMPLETED to be rejected")
	}
	if forgeerr.KindOf(err) != forgeerr.InvariantViolation {
		t.Errorf("expected InvariantViolation, got %s", forgeerr.KindOf(err))
	}
	if task.Status != TaskNew {
		t.Errorf("expected status to be left unmodified on rejection, got %s", task.Status)
	}
}

func TestTask_Transition_CompletedIsTerminal(t *testing.T) {
	t.Parallel()

	task := &Task{ID: "t1", Status: TaskCompleted}
	if err := task.Transition(TaskInProgress); err == nil {
		t.Error("expected COMPLETED -> IN_PROGRESS to be rejected")
	}
}

func TestTask_AdvanceTo_NeedsFixesToQAPendingTakesInProgressHop(t *testing.T) {
	t.Parallel()

	task := &Task{ID: "t1", Status: TaskNeedsFixes}
	if err := task.AdvanceTo(TaskQAPending); err != nil {
		t.Fatalf("AdvanceTo(QA_PENDING): %v", err)
	}
	if task.Status != TaskQAPending {
		t.Errorf("expected QA_PENDING, got %s", task.Status)
	}
}

func TestTask_AdvanceTo_RejectsUnreachableStatus(t *testing.T) {
	t.Parallel()

	task := &Task{ID: "t1", Status: TaskNew}
	err := task.AdvanceTo(TaskCompleted)
	if err == nil {
		t.Fatal("expected NEW -> COMPLETED to be unreachable in <= 2 hops")
	}
	if task.Status != TaskNew {
		t.Errorf("expected status to be left unmodified, got %s", task.Status)
	}
}

func TestTask_Transition_DeferredReturnsToNewOrQAPending(t *testing.T) {
	t.Parallel()

	fromNew := &Task{ID: "t1", Status: TaskDeferred}
	if err := fromNew.Transition(TaskNew); err != nil {
		t.Errorf("DEFERRED -> NEW: %v", err)
	}

	fromQA := &Task{ID: "t2", Status: TaskDeferred}
	if err := fromQA.Transition(TaskQAPending); err != nil {
		t.Errorf("DEFERRED -> QA_PENDING: %v", err)
	}
}
