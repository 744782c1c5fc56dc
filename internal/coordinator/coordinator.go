package coordinator

import (
	"context"
	"fmt"
	"time"

	"forgeloop/internal/config"
	"forgeloop/internal/loopguard"
	"forgeloop/internal/logging"
	"forgeloop/internal/objective"
	"forgeloop/internal/phase"
	"forgeloop/internal/state"
)

// Arbiter is the interface both the default Selector and the optional
// Mangle-backed arbiter (internal/coordinator/arbiter) satisfy, so
// Coordinator can swap between them based on config.Coordinator.
// UseArbiter without knowing which implementation it holds.
type Arbiter interface {
	Decide(st *state.PipelineState, objMgr *objective.Manager) Decision
}

// Coordinator drives the outer control loop of §4.2: load state, check
// termination, decide the next action, execute the chosen phase, record
// the result, consult the loop detector, escalate if needed, persist.
//
// Grounded on internal/campaign/orchestrator_phases.go's RunCampaign
// driver loop (load -> eligible check -> execute phase -> record ->
// persist), generalized from a single hardcoded campaign-phase sequence
// to the full §4.2 tactical/strategic decision engine plus loop-guard
// escalation, neither of which the teacher's Go loop itself implements
// (the teacher delegates selection to Mangle kernel facts instead).
type Coordinator struct {
	Store     *state.Store
	Objective *objective.Manager
	Phases    map[string]phase.Phase
	Guard     *loopguard.Tracker
	Selector  Arbiter
	Cfg       *config.Config

	// MaxIterations bounds Run's loop as a last-resort safety net beyond
	// the loop guard's own escalation ladder; 0 means unbounded.
	MaxIterations int
}

// New constructs a Coordinator wired with the default plain-Go Selector,
// unless cfg.Coordinator.UseArbiter requests the Mangle-backed one (the
// caller is then responsible for overriding Selector after New returns;
// see cmd/forgeloop for the wiring decision).
func New(store *state.Store, objMgr *objective.Manager, phases map[string]phase.Phase, cfg *config.Config) *Coordinator {
	return &Coordinator{
		Store:     store,
		Objective: objMgr,
		Phases:    phases,
		Guard:     loopguard.NewTracker(loopGuardConfigFrom(cfg)),
		Selector:  NewSelector(cfg.Lifecycle),
		Cfg:       cfg,
	}
}

func loopGuardConfigFrom(cfg *config.Config) loopguard.Config {
	lg := cfg.LoopGuard
	return loopguard.Config{
		PatternRepeatThreshold: lg.PatternRepeatCount,
		ActionLoopThreshold:    lg.ActionLoopThreshold,
		CycleWindow:            lg.CycleWindow,
		NoProgressFailures:     lg.NoProgressThreshold,
		HistoryLimit:           lg.FingerprintHistory,
	}
}

// RunOutcome summarizes why Run stopped.
type RunOutcome struct {
	Iterations int
	Reason     string
}

// Run executes the §4.2 outer loop until termination, an unrecoverable
// error, ctx cancellation, or MaxIterations is reached.
func (c *Coordinator) Run(ctx context.Context) (RunOutcome, error) {
	for i := 0; c.MaxIterations <= 0 || i < c.MaxIterations; i++ {
		select {
		case <-ctx.Done():
			return RunOutcome{Iterations: i, Reason: "context cancelled"}, ctx.Err()
		default:
		}

		st := c.Store.Load()

		if Termination(st, c.Objective) {
			return RunOutcome{Iterations: i, Reason: "all tasks and objectives completed"}, nil
		}

		decision := c.Selector.Decide(st, c.Objective)
		logging.Coordinator("iteration %d: phase=%s task=%s reason=%s", i, decision.Phase, decision.TaskID, decision.Reason)

		ph, ok := c.Phases[decision.Phase]
		if !ok {
			return RunOutcome{Iterations: i, Reason: fmt.Sprintf("no phase registered for %q", decision.Phase)}, fmt.Errorf("coordinator: unknown phase %q", decision.Phase)
		}

		var task *state.Task
		if decision.TaskID != "" {
			task = st.Tasks[decision.TaskID]
		}

		result, err := ph.Execute(ctx, st, task)
		if err != nil {
			logging.CoordinatorError("iteration %d: phase %s failed: %v", i, decision.Phase, err)
		}

		if recErr := c.recordResult(decision, task, result); recErr != nil {
			return RunOutcome{Iterations: i, Reason: "state record failed"}, recErr
		}

		c.RunSpecializedIfTriggered(ctx, st, task, decision, result)

		iteration := loopguard.Iteration{
			Phase:   decision.Phase,
			TaskID:  decision.TaskID,
			Actions: actionsFromResult(decision, result),
			Success: result.Success,
		}
		c.Guard.Record(iteration)

		if intervention := c.Guard.Evaluate(task); intervention != nil {
			logging.CoordinatorWarn("iteration %d: intervention %s: %s", i, intervention.Kind, intervention.Reason)
			c.Guard.NoteEscalation(intervention.Kind)
			if escErr := c.handleIntervention(ctx, *intervention, decision); escErr != nil {
				logging.CoordinatorError("iteration %d: intervention handling failed: %v", i, escErr)
			}
		}
	}
	return RunOutcome{Iterations: c.MaxIterations, Reason: "max iterations reached"}, nil
}

// recordResult persists the phase's outcome: run history, task status
// transitions (if the phase reports one via result.Data["task_status"]),
// and file tracking, all through a single Store.Mutate call so the write
// is totally ordered with every other mutation (§5).
func (c *Coordinator) recordResult(decision Decision, task *state.Task, result phase.Result) error {
	return c.Store.Mutate(func(st *state.PipelineState) error {
		st.PhaseHistory = append(st.PhaseHistory, decision.Phase)

		ps, ok := st.Phases[decision.Phase]
		if !ok {
			ps = &state.PhaseState{}
			st.Phases[decision.Phase] = ps
		}
		ps.RecordRun(state.PhaseRun{
			Timestamp:     time.Now().UTC(),
			Success:       result.Success,
			TaskID:        decision.TaskID,
			FilesCreated:  result.FilesCreated,
			FilesModified: result.FilesModified,
		})

		if task == nil || decision.TaskID == "" {
			return nil
		}
		liveTask, ok := st.Tasks[decision.TaskID]
		if !ok {
			return nil
		}

		if !result.Success {
			liveTask.FailureCount++
			return nil
		}

		if next, ok := result.Data["task_status"].(string); ok {
			return liveTask.AdvanceTo(state.TaskStatus(next))
		}
		return nil
	})
}

// handleIntervention acts on the loop detector's escalation ladder
// (§4.10): specialist consultation and forced project_planning are
// recorded as a ReplanTrigger for the next project_planning run to
// surface; ask_user is logged for the operator and otherwise left to the
// running phase's own output to carry, since the coordinator has no
// interactive channel of its own.
func (c *Coordinator) handleIntervention(ctx context.Context, intervention loopguard.Intervention, decision Decision) error {
	switch intervention.Kind {
	case loopguard.InterventionAskUser:
		logging.CoordinatorWarn("ask_user intervention: %s (last phase %s)", intervention.Reason, decision.Phase)
		return nil
	default:
		return c.Store.Mutate(func(st *state.PipelineState) error {
			st.ReplanTriggers = append(st.ReplanTriggers, state.ReplanTrigger{
				Reason:      string(intervention.Kind),
				Details:     intervention.Reason,
				TriggeredAt: time.Now().UTC(),
			})
			return nil
		})
	}
}

func actionsFromResult(decision Decision, result phase.Result) []loopguard.Action {
	if len(result.FilesModified) == 0 && len(result.FilesCreated) == 0 {
		return []loopguard.Action{{
			Fingerprint: loopguard.Fingerprint{ToolName: decision.Phase, PrimaryTarget: decision.TaskID, Success: result.Success},
			TaskID:      decision.TaskID,
		}}
	}
	actions := make([]loopguard.Action, 0, len(result.FilesCreated)+len(result.FilesModified))
	for _, f := range result.FilesCreated {
		actions = append(actions, loopguard.Action{
			Fingerprint: loopguard.Fingerprint{ToolName: decision.Phase + ":create", PrimaryTarget: f, Success: result.Success},
			TaskID:      decision.TaskID,
		})
	}
	for _, f := range result.FilesModified {
		actions = append(actions, loopguard.Action{
			Fingerprint: loopguard.Fingerprint{ToolName: decision.Phase + ":modify", PrimaryTarget: f, Success: result.Success},
			TaskID:      decision.TaskID,
		})
	}
	return actions
}
