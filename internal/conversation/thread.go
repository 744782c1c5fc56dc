// Package conversation implements the bounded ConversationThread every
// phase owns (§4.5): an ordered message list with a running token
// estimate and a pruning policy applied on every append.
package conversation

import (
	"time"

	"forgeloop/internal/llm"
	"forgeloop/internal/logging"
	"forgeloop/internal/prompt"
	"forgeloop/internal/state"
)

// Message is one turn in a ConversationThread.
type Message struct {
	Role      state.ConversationRole `json:"role"`
	Content   string                 `json:"content"`
	ToolCalls []llm.ToolCall         `json:"tool_calls,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Bounds configures when a ConversationThread prunes itself (§4.5).
type Bounds struct {
	MaxMessages     int           `json:"max_messages"`
	MaxTokens       int           `json:"max_tokens"`
	PreservedRecent int           `json:"preserved_recent"`
	PreservedSystem bool          `json:"preserved_system"`
	MaxAge          time.Duration `json:"max_age"`
}

// DefaultBounds returns the bounds used by most phases: a modest
// preserved-recent window and a token budget comfortably under a single
// model context window.
func DefaultBounds() Bounds {
	return Bounds{
		MaxMessages:     200,
		MaxTokens:       100_000,
		PreservedRecent: 10,
		PreservedSystem: true,
		MaxAge:          24 * time.Hour,
	}
}

// BoundsForPhase returns the bounds a given phase name should use.
// Refactoring is configured with a 1,000,000-token/500-message window: a
// lower bound previously caused the assistant to lose track of its last
// attempt and retry the same failing action indefinitely.
func BoundsForPhase(phase string) Bounds {
	b := DefaultBounds()
	switch phase {
	case "refactoring":
		b.MaxMessages = 500
		b.MaxTokens = 1_000_000
		b.PreservedRecent = 100
	case "qa", "debugging":
		b.PreservedRecent = 40
	case "documentation", "project_planning":
		b.PreservedRecent = 20
	}
	return b
}

// Thread is one phase's bounded conversation with the LLM endpoint.
// Not safe for concurrent use by multiple goroutines; each phase
// execution owns its own Thread.
type Thread struct {
	ID            string    `json:"id"`
	Messages      []Message `json:"messages"`
	TokenEstimate int       `json:"token_estimate"`
	Bounds        Bounds    `json:"bounds"`
}

// NewThread creates an empty thread with the given bounds.
func NewThread(id string, bounds Bounds) *Thread {
	return &Thread{ID: id, Bounds: bounds}
}

// Append adds a message and prunes the thread if any bound is now
// exceeded. It returns the number of messages dropped.
func (t *Thread) Append(msg Message) int {
	t.Messages = append(t.Messages, msg)
	t.TokenEstimate += estimateMessageTokens(msg)
	return t.prune()
}

// prune implements the §4.5 pruning policy:
//  1. never drop a leading system message,
//  2. never drop the last PreservedRecent messages,
//  3. drop oldest remaining messages first, and any message older than
//     MaxAge, recomputing TokenEstimate after each drop,
//  4. stop once all bounds are satisfied.
func (t *Thread) prune() int {
	dropped := 0
	now := time.Now()

	for t.overBounds(now) {
		idx := t.nextDroppable()
		if idx < 0 {
			// Nothing left that can legally be dropped; bounds cannot be
			// fully satisfied without violating an invariant, so stop.
			break
		}
		t.TokenEstimate -= estimateMessageTokens(t.Messages[idx])
		if t.TokenEstimate < 0 {
			t.TokenEstimate = 0
		}
		t.Messages = append(t.Messages[:idx], t.Messages[idx+1:]...)
		dropped++
	}

	if dropped > 0 {
		logging.ConversationDebug("thread %s pruned %d messages (tokens=%d, messages=%d)",
			t.ID, dropped, t.TokenEstimate, len(t.Messages))
	}
	return dropped
}

// overBounds reports whether MaxMessages, MaxTokens, or MaxAge is
// currently exceeded.
func (t *Thread) overBounds(now time.Time) bool {
	if t.Bounds.MaxMessages > 0 && len(t.Messages) > t.Bounds.MaxMessages {
		return true
	}
	if t.Bounds.MaxTokens > 0 && t.TokenEstimate > t.Bounds.MaxTokens {
		return true
	}
	if t.Bounds.MaxAge > 0 {
		for _, idx := range t.droppableIndices() {
			if now.Sub(t.Messages[idx].Timestamp) > t.Bounds.MaxAge {
				return true
			}
		}
	}
	return false
}

// preservedStart returns the index of the first message not preserved
// by the leading-system-message rule.
func (t *Thread) preservedStart() int {
	if t.Bounds.PreservedSystem && len(t.Messages) > 0 && t.Messages[0].Role == state.RoleSystem {
		return 1
	}
	return 0
}

// preservedRecentStart returns the index at which the preserved-recent
// window begins.
func (t *Thread) preservedRecentStart() int {
	n := len(t.Messages) - t.Bounds.PreservedRecent
	if n < 0 {
		n = 0
	}
	return n
}

// droppableIndices returns the indices eligible for pruning: between the
// preserved leading system message and the preserved recent window.
func (t *Thread) droppableIndices() []int {
	start := t.preservedStart()
	end := t.preservedRecentStart()
	if end <= start {
		return nil
	}
	indices := make([]int, 0, end-start)
	for i := start; i < end; i++ {
		indices = append(indices, i)
	}
	return indices
}

// nextDroppable returns the index of the oldest message eligible for
// pruning, preferring the oldest message older than MaxAge, else the
// oldest droppable message overall. Returns -1 if nothing is droppable.
func (t *Thread) nextDroppable() int {
	droppable := t.droppableIndices()
	if len(droppable) == 0 {
		return -1
	}
	if t.Bounds.MaxAge > 0 {
		now := time.Now()
		for _, idx := range droppable {
			if now.Sub(t.Messages[idx].Timestamp) > t.Bounds.MaxAge {
				return idx
			}
		}
	}
	return droppable[0]
}

// estimateMessageTokens reuses the prompt package's chars/4 heuristic so
// the whole pipeline shares one token-estimation policy.
func estimateMessageTokens(msg Message) int {
	total := prompt.EstimateTokens(msg.Content)
	for _, tc := range msg.ToolCalls {
		total += prompt.EstimateTokens(tc.Function.Name)
		for k, v := range tc.Function.Arguments {
			if s, ok := v.(string); ok {
				total += prompt.EstimateTokens(k) + prompt.EstimateTokens(s)
			} else {
				total += prompt.EstimateTokens(k) + 4
			}
		}
	}
	return total
}

// ToChatMessages converts the thread's messages to llm.ChatMessage for
// dispatch to the endpoint.
func (t *Thread) ToChatMessages() []llm.ChatMessage {
	out := make([]llm.ChatMessage, 0, len(t.Messages))
	for _, m := range t.Messages {
		out = append(out, llm.ChatMessage{
			Role:      string(m.Role),
			Content:   m.Content,
			ToolCalls: m.ToolCalls,
		})
	}
	return out
}
