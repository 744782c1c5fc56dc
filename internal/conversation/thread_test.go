package conversation

import (
	"strings"
	"testing"
	"time"

	"forgeloop/internal/state"
)

func msg(role state.ConversationRole, content string, ts time.Time) Message {
	return Message{Role: role, Content: content, Timestamp: ts}
}

func TestThread_PreservesLeadingSystemMessage(t *testing.T) {
	t.Parallel()

	base := time.Now().Add(-time.Hour)
	th := NewThread("t1", Bounds{MaxMessages: 3, PreservedRecent: 1, PreservedSystem: true})

	th.Append(msg(state.RoleSystem, "system prompt", base))
	for i := 0; i < 5; i++ {
		th.Append(msg(state.RoleUser, strings.Repeat("x", 10), base.Add(time.Duration(i)*time.Minute)))
	}

	if th.Messages[0].Role != state.RoleSystem {
		t.Fatalf("expected leading system message to survive pruning, got role=%s", th.Messages[0].Role)
	}
}

func TestThread_PreservesRecentWindow(t *testing.T) {
	t.Parallel()

	base := time.Now().Add(-time.Hour)
	th := NewThread("t2", Bounds{MaxMessages: 3, PreservedRecent: 3, PreservedSystem: true})

	th.Append(msg(state.RoleSystem, "system", base))
	for i := 0; i < 10; i++ {
		th.Append(msg(state.RoleUser, "turn", base.Add(time.Duration(i)*time.Minute)))
	}

	if len(th.Messages) < 3 {
		t.Fatalf("expected at least preserved_recent messages to survive, got %d", len(th.Messages))
	}
	last3 := th.Messages[len(th.Messages)-3:]
	for _, m := range last3 {
		if m.Content != "turn" {
			t.Errorf("expected the last 3 messages to be the most recent turns, got %+v", m)
		}
	}
}

func TestThread_ExactlyAtMaxMessages_NextAppendDropsExactlyOne(t *testing.T) {
	t.Parallel()

	base := time.Now().Add(-time.Hour)
	th := NewThread("t3", Bounds{MaxMessages: 5, PreservedRecent: 1, PreservedSystem: false})

	for i := 0; i < 5; i++ {
		th.Append(msg(state.RoleUser, "m", base.Add(time.Duration(i)*time.Minute)))
	}
	if len(th.Messages) != 5 {
		t.Fatalf("setup: expected 5 messages, got %d", len(th.Messages))
	}

	dropped := th.Append(msg(state.RoleUser, "trigger", base.Add(10*time.Minute)))
	if dropped != 1 {
		t.Errorf("expected exactly one drop at the max_messages boundary, got %d", dropped)
	}
	if len(th.Messages) != 5 {
		t.Errorf("expected message count to settle back at the bound, got %d", len(th.Messages))
	}
}

func TestThread_TokenEstimateStaysUnderBoundAfterPruning(t *testing.T) {
	t.Parallel()

	base := time.Now().Add(-time.Hour)
	th := NewThread("t4", Bounds{MaxTokens: 50, PreservedRecent: 1, PreservedSystem: false})

	for i := 0; i < 20; i++ {
		th.Append(msg(state.RoleUser, strings.Repeat("word ", 20), base.Add(time.Duration(i)*time.Minute)))
	}

	if th.TokenEstimate > th.Bounds.MaxTokens {
		// Preserved-recent messages alone may exceed the bound; only
		// assert the invariant when more than the preserved window remains.
		if len(th.Messages) > th.Bounds.PreservedRecent {
			t.Errorf("token_estimate %d exceeds max_tokens %d with prunable messages still present", th.TokenEstimate, th.Bounds.MaxTokens)
		}
	}
}

func TestThread_DropsMessagesOlderThanMaxAge(t *testing.T) {
	t.Parallel()

	now := time.Now()
	th := NewThread("t5", Bounds{MaxAge: time.Minute, PreservedRecent: 1, PreservedSystem: false})

	th.Append(msg(state.RoleUser, "stale", now.Add(-time.Hour)))
	th.Append(msg(state.RoleUser, "fresh", now))

	for _, m := range th.Messages {
		if m.Content == "stale" {
			t.Error("expected the message older than max_age to have been dropped")
		}
	}
}

func TestThread_NeverDropsBelowPreservedRecentPlusSystem(t *testing.T) {
	t.Parallel()

	base := time.Now().Add(-time.Hour)
	th := NewThread("t6", Bounds{MaxMessages: 1, PreservedRecent: 2, PreservedSystem: true})

	th.Append(msg(state.RoleSystem, "system", base))
	th.Append(msg(state.RoleUser, "a", base.Add(time.Minute)))
	th.Append(msg(state.RoleUser, "b", base.Add(2*time.Minute)))

	if len(th.Messages) != 3 {
		t.Errorf("expected system + preserved_recent(2) = 3 messages to survive despite max_messages=1, got %d", len(th.Messages))
	}
}

func TestBoundsForPhase_RefactoringUsesWideWindow(t *testing.T) {
	t.Parallel()

	b := BoundsForPhase("refactoring")
	if b.MaxTokens != 1_000_000 || b.MaxMessages != 500 {
		t.Errorf("expected refactoring's wide window, got %+v", b)
	}

	other := BoundsForPhase("coding")
	if other.MaxTokens >= b.MaxTokens {
		t.Errorf("expected coding's window to be narrower than refactoring's")
	}
}

func TestThread_ToChatMessages(t *testing.T) {
	t.Parallel()

	th := NewThread("t7", DefaultBounds())
	th.Append(msg(state.RoleSystem, "sys", time.Now()))
	th.Append(msg(state.RoleUser, "hi", time.Now()))

	chat := th.ToChatMessages()
	if len(chat) != 2 || chat[0].Role != "system" || chat[1].Role != "user" {
		t.Errorf("unexpected chat messages: %+v", chat)
	}
}
