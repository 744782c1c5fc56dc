package phase

import (
	"context"

	"forgeloop/internal/conversation"
)

// SubagentRunner drives a phase's think/dispatch loop inside a
// conversation thread that is private to one invocation rather than the
// phase's own persistent thread. Refactoring and investigation both use
// one: a long diagnostic or architectural back-and-forth would otherwise
// grow the calling phase's conversation far past its normal bounds and
// crowd out what the phase needs to remember about its own task queue.
//
// Grounded on internal/session/executor.go's Process loop, the same
// source Base itself generalizes from — a SubagentRunner is a second,
// narrower instantiation of that loop rather than new machinery: it
// reuses Base.Run's turn-by-turn LLM/tool dispatch by constructing a
// fresh, scoped Base per call instead of reusing the caller's Base.
type SubagentRunner struct {
	deps      Deps
	phaseName string
	maxTurns  int
}

// NewSubagentRunner constructs a runner that executes isolated
// sub-conversations attributed to phaseName (used for tool filtering,
// logging, and conversation bounds lookup, same as any other phase).
func NewSubagentRunner(deps Deps, phaseName string) *SubagentRunner {
	return &SubagentRunner{deps: deps, phaseName: phaseName, maxTurns: DefaultMaxTurns}
}

// WithMaxTurns overrides the default turn bound for this runner.
func (r *SubagentRunner) WithMaxTurns(n int) *SubagentRunner {
	r.maxTurns = n
	return r
}

// Run executes one isolated sub-conversation: a fresh Base and a fresh
// ConversationThread, seeded only with systemPrompt and userMessage — no
// history survives between calls to Run, which is the isolation property
// refactoring/investigation need (each invocation reasons from a clean
// slate about the specific thing it was asked to look at).
func (r *SubagentRunner) Run(ctx context.Context, systemPrompt, userMessage string) (response string, filesCreated, filesModified []string, err error) {
	base := &Base{
		PhaseName:    r.phaseName,
		Deps:         r.deps,
		SystemPrompt: systemPrompt,
		MaxTurns:     r.maxTurns,
		ConvBounds:   conversation.BoundsForPhase(r.phaseName),
	}
	return base.Run(ctx, userMessage)
}
