package phase

import (
	"context"
	"errors"
	"testing"

	"forgeloop/internal/bus"
	"forgeloop/internal/llm"
	"forgeloop/internal/tools"
)

// scriptedClient returns one canned response per call, in order, then
// repeats the last response forever (tests bound the loop themselves via
// the number of scripted turns with tool calls).
type scriptedClient struct {
	responses []llm.ChatResponse
	calls     int
}

func (c *scriptedClient) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	c.calls++
	if c.calls > len(c.responses) {
		return c.responses[len(c.responses)-1], nil
	}
	return c.responses[c.calls-1], nil
}

func newTestRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry()
	echo := &tools.Tool{
		Name:        "echo_test_tool",
		Description: "echoes its input",
		Category:    tools.CategoryAnalysis,
		Execute: func(ctx context.Context, args map[string]any) (tools.ExecResult, error) {
			msg, _ := args["message"].(string)
			return tools.ExecResult{Output: "echo: " + msg}, nil
		},
		Schema: tools.ToolSchema{Properties: map[string]tools.Property{
			"message": {Type: "string"},
		}},
	}
	if err := reg.Register(echo); err != nil {
		t.Fatalf("register echo tool: %v", err)
	}
	return reg
}

func TestBase_Run_NoToolCalls_ReturnsImmediately(t *testing.T) {
	t.Parallel()

	client := &scriptedClient{responses: []llm.ChatResponse{
		{Message: llm.ChatMessage{Role: "assistant", Content: "all done"}, Done: true},
	}}
	reg := newTestRegistry(t)
	b := NewBase("investigation", Deps{Registry: reg, LLM: client, Bus: bus.New()}, "system prompt")

	resp, created, modified, err := b.Run(context.Background(), "look into the failing test")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp != "all done" {
		t.Errorf("expected final response to be the assistant's text, got %q", resp)
	}
	if len(created) != 0 || len(modified) != 0 {
		t.Errorf("expected no file changes without tool calls, got created=%v modified=%v", created, modified)
	}
	if client.calls != 1 {
		t.Errorf("expected exactly one LLM call when no tool calls are returned, got %d", client.calls)
	}
}

func TestBase_Run_DispatchesToolCallThenStops(t *testing.T) {
	t.Parallel()

	client := &scriptedClient{responses: []llm.ChatResponse{
		{
			Message: llm.ChatMessage{
				Role: "assistant",
				ToolCalls: []llm.ToolCall{{
					Function: llm.ToolCallFunc{Name: "echo_test_tool", Arguments: map[string]interface{}{"message": "hi"}},
				}},
			},
		},
		{Message: llm.ChatMessage{Role: "assistant", Content: "finished after tool use"}, Done: true},
	}}
	reg := newTestRegistry(t)
	b := NewBase("coding", Deps{Registry: reg, LLM: client, Bus: bus.New()}, "system prompt")

	resp, _, _, err := b.Run(context.Background(), "use the echo tool")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp != "finished after tool use" {
		t.Errorf("expected the loop to continue after dispatching the tool call, got %q", resp)
	}
	if client.calls != 2 {
		t.Errorf("expected two LLM calls (one producing the tool call, one after dispatch), got %d", client.calls)
	}
}

func TestBase_Run_UnknownToolProducesFailureMessageNotPanic(t *testing.T) {
	t.Parallel()

	client := &scriptedClient{responses: []llm.ChatResponse{
		{
			Message: llm.ChatMessage{
				Role: "assistant",
				ToolCalls: []llm.ToolCall{{
					Function: llm.ToolCallFunc{Name: "does_not_exist", Arguments: map[string]interface{}{}},
				}},
			},
		},
		{Message: llm.ChatMessage{Role: "assistant", Content: "recovered"}, Done: true},
	}}
	reg := newTestRegistry(t)
	b := NewBase("coding", Deps{Registry: reg, LLM: client, Bus: bus.New()}, "")

	resp, _, _, err := b.Run(context.Background(), "call a tool that doesn't exist")
	if err != nil {
		t.Fatalf("Run should not error on an unknown tool, got: %v", err)
	}
	if resp != "recovered" {
		t.Errorf("expected the loop to keep going after an unknown tool, got %q", resp)
	}
}

func TestBase_Run_StopsAtMaxTurns(t *testing.T) {
	t.Parallel()

	alwaysToolCall := llm.ChatResponse{
		Message: llm.ChatMessage{
			Role: "assistant",
			ToolCalls: []llm.ToolCall{{
				Function: llm.ToolCallFunc{Name: "echo_test_tool", Arguments: map[string]interface{}{"message": "again"}},
			}},
		},
	}
	client := &scriptedClient{responses: []llm.ChatResponse{alwaysToolCall}}
	reg := newTestRegistry(t)
	b := NewBase("refactoring", Deps{Registry: reg, LLM: client, Bus: bus.New()}, "")
	b.MaxTurns = 3

	_, _, _, err := b.Run(context.Background(), "loop forever")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if client.calls != 3 {
		t.Errorf("expected exactly max_turns LLM calls, got %d", client.calls)
	}
}

func TestBase_Run_LLMErrorPropagates(t *testing.T) {
	t.Parallel()

	errClient := errorClient{}
	reg := newTestRegistry(t)
	b := NewBase("qa", Deps{Registry: reg, LLM: errClient, Bus: bus.New()}, "")

	_, _, _, err := b.Run(context.Background(), "anything")
	if err == nil {
		t.Error("expected an error when the LLM call fails")
	}
}

type errorClient struct{}

func (errorClient) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	return llm.ChatResponse{}, errors.New("endpoint unavailable")
}
