// Package loopguard implements the Loop / Intervention Detector (§4.10):
// a tracker that records one fingerprinted entry per coordinator
// iteration and raises an escalating intervention when the run is stuck
// instead of making progress.
//
// Grounded structurally on internal/campaign/orchestrator_phases.go's
// plain-Go, no-Mangle state inspection style (isCampaignComplete/
// isPhaseComplete loop-and-short-circuit shape) since spec.md names no
// direct teacher equivalent for loop detection; the fingerprint concept
// itself is defined by spec.md §4.10, not borrowed from the teacher.
package loopguard

import (
	"strconv"

	"forgeloop/internal/state"
)

// Fingerprint identifies one recorded action. Two actions with the same
// fingerprint are considered identical for repetition-counting purposes
// even if they occurred in different iterations; two actions against
// distinct targets (e.g. reading two different files) never collide.
type Fingerprint struct {
	ToolName      string
	PrimaryTarget string
	Success       bool
}

// Action is one tool call made during a phase's turn, reduced to its
// fingerprint plus enough context to attribute it to a task.
type Action struct {
	Fingerprint Fingerprint
	TaskID      string
}

// Iteration is one coordinator loop pass: the phase selected, the task
// worked (if any), and the fingerprinted actions taken during it.
type Iteration struct {
	Phase   string
	TaskID  string
	Actions []Action
	Success bool
}

// InterventionKind is the priority-ordered escalation ladder (§4.10).
type InterventionKind string

const (
	// InterventionSpecialist asks the coordinator to route to a
	// specialized phase addressing a capability gap (§4.11) before
	// trying anything more drastic.
	InterventionSpecialist InterventionKind = "specialist_consultation"
	// InterventionProjectPlanning forces a project_planning pass to
	// re-derive objectives/tasks when specialist consultation either
	// isn't applicable or has already been tried.
	InterventionProjectPlanning InterventionKind = "force_project_planning"
	// InterventionAskUser is the last resort: the phase must honor this
	// rather than retry.
	InterventionAskUser InterventionKind = "ask_user"
)

// Intervention is what Tracker.Evaluate returns when the run is stuck.
type Intervention struct {
	Kind   InterventionKind
	Reason string
}

// Config bounds the detector's thresholds and history window, all drawn
// directly from spec.md §4.10.
type Config struct {
	PatternRepeatThreshold int // "repeats >= N times" for pattern repetition
	ActionLoopThreshold    int // consecutive identical-fingerprint actions
	CycleWindow            int // K phase transitions inspected for a repeating cycle
	NoProgressFailures     int // failure_count threshold for no-progress
	HistoryLimit           int // bounds memory; oldest iterations are dropped
}

// DefaultConfig matches the thresholds named in spec.md §4.10.
func DefaultConfig() Config {
	return Config{
		PatternRepeatThreshold: 3,
		ActionLoopThreshold:    3,
		CycleWindow:            6,
		NoProgressFailures:     3,
		HistoryLimit:           200,
	}
}

// Tracker accumulates iteration history for one pipeline run and answers
// whether an intervention is due. It holds no persisted state of its own;
// a coordinator owns one Tracker per run and feeds it each iteration as
// the run proceeds.
type Tracker struct {
	cfg             Config
	history         []Iteration
	specialistTried bool
	planningTried   bool
}

// NewTracker constructs a Tracker with the given config.
func NewTracker(cfg Config) *Tracker {
	return &Tracker{cfg: cfg}
}

// Record appends one completed iteration to the tracker's history,
// trimming to cfg.HistoryLimit from the front (oldest first) when full.
func (t *Tracker) Record(it Iteration) {
	t.history = append(t.history, it)
	if limit := t.cfg.HistoryLimit; limit > 0 && len(t.history) > limit {
		t.history = t.history[len(t.history)-limit:]
	}
}

// NoteEscalation records that the coordinator has already taken the
// named escalation step this run, so Evaluate won't recommend it twice
// before falling through to the next rung.
func (t *Tracker) NoteEscalation(kind InterventionKind) {
	switch kind {
	case InterventionSpecialist:
		t.specialistTried = true
	case InterventionProjectPlanning:
		t.planningTried = true
	}
}

// Reset clears escalation state, e.g. once a phase transition signals
// real progress was made.
func (t *Tracker) Reset() {
	t.specialistTried = false
	t.planningTried = false
}

// Evaluate checks all four §4.10 triggers against the accumulated
// history and the active task (if any), returning the intervention due
// (following the priority ladder) or nil if nothing is wrong.
func (t *Tracker) Evaluate(activeTask *state.Task) *Intervention {
	reason := t.detect(activeTask)
	if reason == "" {
		return nil
	}

	if !t.specialistTried {
		return &Intervention{Kind: InterventionSpecialist, Reason: reason}
	}
	if !t.planningTried {
		return &Intervention{Kind: InterventionProjectPlanning, Reason: reason}
	}
	return &Intervention{Kind: InterventionAskUser, Reason: reason}
}

// detect runs the four triggers in the order spec.md §4.10 lists them
// and returns the reason string for the first that fires, or "" if none
// do. All are independent; the first match is reported since the
// escalation ladder in Evaluate already encodes priority for *response*,
// not detection.
func (t *Tracker) detect(activeTask *state.Task) string {
	if reason := t.patternRepetition(); reason != "" {
		return reason
	}
	if reason := t.stateCycle(); reason != "" {
		return reason
	}
	if reason := t.actionLoop(); reason != "" {
		return reason
	}
	if reason := t.noProgress(activeTask); reason != "" {
		return reason
	}
	return ""
}

// actionSequenceSignature reduces an iteration to "phase + tool
// sequence" per §4.10's pattern-repetition wording: the phase name plus
// the ordered list of tool names used, ignoring targets/success so that
// genuinely repeated approaches are caught even if they touch slightly
// different files each time (that distinction belongs to the
// action-loop and fingerprint checks instead).
func actionSequenceSignature(it Iteration) string {
	sig := it.Phase + "|"
	for _, a := range it.Actions {
		sig += a.Fingerprint.ToolName + ","
	}
	return sig
}

func (t *Tracker) patternRepetition() string {
	counts := make(map[string]int)
	var lastTaskID string
	for _, it := range t.history {
		if it.TaskID == "" {
			continue
		}
		key := it.TaskID + "::" + actionSequenceSignature(it)
		counts[key]++
		if counts[key] >= t.cfg.PatternRepeatThreshold {
			lastTaskID = it.TaskID
			return "pattern repetition: the same phase/tool sequence recurred " +
				strconv.Itoa(counts[key]) + " times on task " + lastTaskID
		}
	}
	return ""
}

func (t *Tracker) stateCycle() string {
	window := t.cfg.CycleWindow
	if window <= 0 || len(t.history) < window {
		return ""
	}
	recent := t.history[len(t.history)-window:]
	phases := make([]string, len(recent))
	for i, it := range recent {
		phases[i] = it.Phase
	}
	if period := repeatingPeriod(phases); period > 0 {
		return "state cycle: phase transitions repeat with period " + strconv.Itoa(period)
	}
	return ""
}

// repeatingPeriod returns the smallest period p (1 <= p <= len(seq)/2)
// such that seq is made up of whole repetitions of its first p
// elements, or 0 if no such period exists.
func repeatingPeriod(seq []string) int {
	n := len(seq)
	for p := 1; p <= n/2; p++ {
		if n%p != 0 {
			continue
		}
		isPeriodic := true
		for i := p; i < n; i++ {
			if seq[i] != seq[i%p] {
				isPeriodic = false
				break
			}
		}
		if isPeriodic {
			return p
		}
	}
	return 0
}

func (t *Tracker) actionLoop() string {
	threshold := t.cfg.ActionLoopThreshold
	if threshold <= 0 {
		return ""
	}
	var flat []Fingerprint
	for _, it := range t.history {
		for _, a := range it.Actions {
			flat = append(flat, a.Fingerprint)
		}
	}
	run := 0
	for i := len(flat) - 1; i >= 0; i-- {
		if i == len(flat)-1 || flat[i] == flat[i+1] {
			run++
		} else {
			break
		}
		if run >= threshold {
			return "action loop: the same action repeated " + strconv.Itoa(run) + " consecutive times"
		}
	}
	return ""
}

func (t *Tracker) noProgress(activeTask *state.Task) string {
	if activeTask == nil {
		return ""
	}
	if activeTask.FailureCount >= t.cfg.NoProgressFailures {
		return "no progress: task " + activeTask.ID + " failure_count reached " + strconv.Itoa(activeTask.FailureCount) +
			" without a state advance"
	}
	return ""
}
