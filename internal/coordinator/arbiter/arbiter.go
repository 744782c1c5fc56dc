// Package arbiter implements the optional Mangle-backed phase-selection
// engine spec.md §9 leaves open as a question: "could a logic/Datalog
// kernel make the decision rules easier to extend?" Arbiter answers yes
// for the priority-ordered "candidate" facts (debugging/qa/coding
// eligibility) and defers final tie-breaking and the step 4/5 completion
// sequencing to Go, where spec.md's ordering is unambiguous and negation
// in the rule set would only add risk without adding expressiveness.
//
// Grounded directly on the teacher's own documented Mangle Go-embedding
// pattern (.codex/skills/mangle-programming/assets/go-integration/main.go):
// parse.Unit -> analysis.AnalyzeOneUnit -> factstore.NewSimpleInMemoryStore
// -> engine.EvalProgramWithStats -> store.GetFacts, the same five-call
// sequence used here.
package arbiter

import (
	"fmt"
	"strings"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	"github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"

	"forgeloop/internal/coordinator"
	"forgeloop/internal/objective"
	"forgeloop/internal/state"
)

// rules is the embedded Datalog program. It derives candidate phases
// from asserted facts about the current PipelineState; Decide queries
// the derived predicates in the §4.2 tactical priority order rather than
// encoding that ordering as negation, since negation semantics are easy
// to get subtly wrong and Go can express "first non-empty candidate set
// wins" directly.
const rules = `
Decl needs_fixes_task(Id).
Decl qa_pending_task(Id).
Decl ready_task(Id).
Decl qa_eligible().

Decl candidate_debugging(Id).
Decl candidate_qa(Id).
Decl candidate_coding(Id).

candidate_debugging(Id) :- needs_fixes_task(Id).
candidate_qa(Id) :- qa_pending_task(Id), qa_eligible().
candidate_coding(Id) :- ready_task(Id).
`

// Arbiter implements coordinator.Arbiter by asserting PipelineState as
// Mangle facts and querying the derived candidate_* predicates in
// priority order. It holds the parsed/analyzed program once; each Decide
// call builds a fresh fact store (state.PipelineState differs every
// iteration) and re-evaluates against it.
type Arbiter struct {
	programInfo *analysis.ProgramInfo
	selector    *coordinator.Selector
}

// New parses and analyzes the embedded rule set once. selector is used
// as a fallback for everything the rule set deliberately leaves to Go:
// the strategic layer and the step 4/5 completion sequencing. The
// lifecycle-gating bucket check is computed by the arbiter's own
// qaEligible.
func New(selector *coordinator.Selector) (*Arbiter, error) {
	unit, err := parse.Unit(strings.NewReader(rules))
	if err != nil {
		return nil, fmt.Errorf("arbiter: parse rules: %w", err)
	}
	programInfo, err := analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		return nil, fmt.Errorf("arbiter: analyze rules: %w", err)
	}
	return &Arbiter{programInfo: programInfo, selector: selector}, nil
}

// Decide implements coordinator.Arbiter. It only overrides the tactical
// layer's step 1-3 task selection; everything else (no tasks, all
// completed, strategic layer) is delegated to the wrapped Selector, which
// already encodes the parts of §4.2 that don't benefit from a rule
// engine.
func (a *Arbiter) Decide(st *state.PipelineState, objMgr *objective.Manager) coordinator.Decision {
	if objMgr != nil && len(objMgr.All()) > 0 {
		return a.selector.Decide(st, objMgr)
	}

	store := factstore.NewSimpleInMemoryStore()
	a.assertFacts(store, st)

	if _, err := engine.EvalProgramWithStats(a.programInfo, store); err != nil {
		// A rule-evaluation failure falls back to the plain selector rather
		// than surfacing an arbiter-specific error to the coordinator.
		return a.selector.Decide(st, objMgr)
	}

	if id, ok := firstArg(store, "candidate_debugging"); ok {
		return coordinator.Decision{Phase: "debugging", TaskID: id, Reason: "arbiter: candidate_debugging"}
	}
	if id, ok := firstArg(store, "candidate_qa"); ok {
		return coordinator.Decision{Phase: "qa", TaskID: id, Reason: "arbiter: candidate_qa"}
	}
	if id, ok := firstArg(store, "candidate_coding"); ok {
		return coordinator.Decision{Phase: "coding", TaskID: id, Reason: "arbiter: candidate_coding"}
	}

	// No task-level candidate fired: no_tasks/all_completed/step-5
	// sequencing is simpler expressed directly over st than as facts.
	return a.selector.Decide(st, objMgr)
}

// assertFacts translates the subset of PipelineState the rule set reads
// into Mangle atoms.
func (a *Arbiter) assertFacts(store factstore.FactStore, st *state.PipelineState) {
	eligible := a.selector != nil && a.qaEligible(st)
	if eligible {
		store.Add(ast.NewAtom("qa_eligible"))
	}

	for id, t := range st.Tasks {
		switch t.Status {
		case state.TaskNeedsFixes:
			store.Add(ast.NewAtom("needs_fixes_task", ast.String(id)))
		case state.TaskQAPending:
			store.Add(ast.NewAtom("qa_pending_task", ast.String(id)))
		case state.TaskNew, state.TaskInProgress:
			store.Add(ast.NewAtom("ready_task", ast.String(id)))
		}
	}
}

// qaEligible re-derives the lifecycle-gating verdict without reaching into
// Selector's internals (Selector.qaEligible is unexported). It applies the
// plain maturity-bucket rule only: foundation never, integration at >=5
// QA_PENDING, consolidation at >=3, completion always. Selector's
// MinQARunsBeforeCompletion gate is not applied here.
func (a *Arbiter) qaEligible(st *state.PipelineState) bool {
	count := 0
	for _, t := range st.Tasks {
		if t.Status == state.TaskQAPending {
			count++
		}
	}
	switch state.MaturityFromCompletion(st.CompletionPercentage) {
	case state.MaturityFoundation:
		return false
	case state.MaturityIntegration:
		return count >= 5
	case state.MaturityConsolidation:
		return count >= 3
	default:
		return true
	}
}

// firstArg returns the first string argument of any fact matching
// predicate in store, in whatever order the store iterates.
func firstArg(store factstore.FactStore, predicate string) (string, bool) {
	var found string
	var ok bool
	query := ast.NewQuery(ast.PredicateSym{Symbol: predicate, Arity: 1})
	_ = store.GetFacts(query, func(atom ast.Atom) error {
		if ok {
			return nil
		}
		if len(atom.Args) == 1 {
			if c, isConst := atom.Args[0].(ast.Constant); isConst {
				found = c.Symbol
				ok = true
			}
		}
		return nil
	})
	return found, ok
}
