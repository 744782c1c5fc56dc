package state

import (
	"fmt"

	"forgeloop/internal/forgeerr"
)

// transitions enumerates the status-specific edges of the task status
// machine (§4.1). "Any → FAILED" and "Any → BLOCKED" are handled
// separately in Transition rather than repeated in every entry here.
var transitions = map[TaskStatus][]TaskStatus{
	TaskNew:        {TaskInProgress},
	TaskInProgress: {TaskQAPending},
	TaskQAPending:  {TaskCompleted, TaskNeedsFixes},
	TaskNeedsFixes: {TaskInProgress},
	TaskBlocked:    {TaskNew},
	TaskFailed:     {TaskNew},
	// Only the edges out of DEFERRED are listed: a DEFERRED task may return
	// to NEW or QA_PENDING. No entry here leads into DEFERRED, so
	// Transition never moves a task into it.
	TaskDeferred:  {TaskNew, TaskQAPending},
	TaskCompleted: {},
}

// Transition moves t to `to`, enforcing the §4.1 task status DAG. "Any →
// FAILED" and "Any → BLOCKED" are always legal regardless of the current
// status; every other edge must appear in transitions. An illegal
// transition is rejected with a forgeerr.InvariantViolation and t is left
// unmodified.
func (t *Task) Transition(to TaskStatus) error {
	from := t.Status

	if to == TaskFailed || to == TaskBlocked {
		t.Status = to
		return nil
	}

	for _, allowed := range transitions[from] {
		if allowed == to {
			t.Status = to
			return nil
		}
	}

	return forgeerr.Classify(forgeerr.InvariantViolation, "",
		fmt.Errorf("task %s: illegal status transition %s -> %s", t.ID, from, to))
}

// AdvanceTo moves t toward `to`, passing through the one intermediate
// status the §4.1 DAG requires when `to` is not directly reachable (e.g.
// NEW -> IN_PROGRESS -> QA_PENDING after a coding run, and NEEDS_FIXES ->
// IN_PROGRESS -> QA_PENDING, the path a debugging fix takes on its way
// back to qa). It is a thin
// convenience over Transition, not a way around the DAG: every hop it
// takes is itself a legal edge.
func (t *Task) AdvanceTo(to TaskStatus) error {
	if err := t.Transition(to); err == nil {
		return nil
	}

	from := t.Status
	for _, mid := range transitions[from] {
		if err := t.Transition(mid); err != nil {
			continue
		}
		if err := t.Transition(to); err == nil {
			return nil
		}
		t.Status = from
	}

	return forgeerr.Classify(forgeerr.InvariantViolation, "",
		fmt.Errorf("task %s: no legal path from %s to %s", t.ID, from, to))
}
