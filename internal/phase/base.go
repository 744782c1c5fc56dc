package phase

import (
	"context"
	"fmt"
	"time"

	"forgeloop/internal/bus"
	"forgeloop/internal/conversation"
	"forgeloop/internal/forgeerr"
	"forgeloop/internal/llm"
	"forgeloop/internal/logging"
	"forgeloop/internal/state"
	"forgeloop/internal/tools"
)

// DefaultMaxTurns bounds the call-LLM/dispatch-tools loop (§4.3 step 7)
// when a phase doesn't override it.
const DefaultMaxTurns = 25

// Deps are the shared collaborators every concrete phase needs: the
// tool registry, LLM client, and message bus. A coordinator constructs
// one Deps and threads it to every phase for the run's lifetime.
type Deps struct {
	Registry *tools.Registry
	LLM      llm.Client
	Bus      *bus.Bus
}

// Base implements the generic §4.3 execution loop shared by every
// concrete phase: take the user message the phase built, call the LLM
// with a bounded conversation and a phase-filtered tool list, dispatch
// tool calls, repeat until no more tool calls or max_turns, persist
// nothing itself (the caller's Store.Mutate wraps the whole phase run).
// Base does not read the phase's bus inbox.
//
// Grounded on internal/session/executor.go's Process loop (observe →
// compile → generate → dispatch tool calls → articulate) and
// internal/session/task_executor.go's TaskExecutor interface shape,
// adapted from a single chat session over one user turn into a
// per-phase bounded conversation over a queued task.
type Base struct {
	PhaseName    string
	Deps         Deps
	SystemPrompt string
	MaxTurns     int
	ConvBounds   conversation.Bounds
}

// NewBase constructs a Base for the given phase name, using
// conversation.BoundsForPhase(name) unless overridden.
func NewBase(name string, deps Deps, systemPrompt string) *Base {
	return &Base{
		PhaseName:    name,
		Deps:         deps,
		SystemPrompt: systemPrompt,
		MaxTurns:     DefaultMaxTurns,
		ConvBounds:   conversation.BoundsForPhase(name),
	}
}

// Run drives the think/dispatch loop for one user message and returns
// the final assistant text plus the accumulated file changes across all
// tool calls made during the loop.
func (b *Base) Run(ctx context.Context, userMessage string) (response string, filesCreated, filesModified []string, err error) {
	thread := conversation.NewThread(b.PhaseName, b.ConvBounds)
	if b.SystemPrompt != "" {
		thread.Append(conversation.Message{Role: state.RoleSystem, Content: b.SystemPrompt, Timestamp: time.Now()})
	}
	thread.Append(conversation.Message{Role: state.RoleUser, Content: userMessage, Timestamp: time.Now()})

	exposedTools := b.Deps.Registry.FilterByPhase(b.PhaseName)
	knownTools := make(map[string]bool, len(exposedTools))
	toolDefs := make([]llm.ToolDefinition, 0, len(exposedTools))
	for _, t := range exposedTools {
		knownTools[t.Name] = true
		toolDefs = append(toolDefs, llm.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  schemaToParameters(t.Schema),
		})
	}

	maxTurns := b.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}

	for turn := 0; turn < maxTurns; turn++ {
		resp, callErr := b.Deps.LLM.Chat(ctx, llm.ChatRequest{
			Messages: thread.ToChatMessages(),
			Tools:    toolDefs,
		})
		if callErr != nil {
			return response, filesCreated, filesModified, fmt.Errorf("phase %s: llm call failed on turn %d: %w", b.PhaseName, turn, callErr)
		}

		thread.Append(conversation.Message{
			Role:      state.RoleAssistant,
			Content:   resp.Message.Content,
			ToolCalls: resp.Message.ToolCalls,
			Timestamp: time.Now(),
		})
		response = resp.Message.Content

		calls := llm.ExtractToolCalls(resp.Message, knownTools)
		if len(calls) == 0 {
			break
		}

		for _, call := range calls {
			result := b.dispatchToolCall(ctx, call)
			filesCreated = append(filesCreated, result.FilesCreated...)
			filesModified = append(filesModified, result.FilesModified...)

			thread.Append(conversation.Message{
				Role:      state.RoleTool,
				Content:   toolResultContent(call, result),
				Timestamp: time.Now(),
			})
		}
	}

	return response, filesCreated, filesModified, nil
}

// dispatchToolCall looks up and executes one tool call, producing a
// normalized ToolResult even when the tool name is unknown or the
// registry lookup fails.
func (b *Base) dispatchToolCall(ctx context.Context, call llm.ToolCall) *tools.ToolResult {
	tool := b.Deps.Registry.Get(call.Function.Name)
	if tool == nil {
		logging.PhaseWarn("phase %s: unknown tool %q", b.PhaseName, call.Function.Name)
		return &tools.ToolResult{
			ToolName: call.Function.Name,
			Error:    fmt.Errorf("tool not found: %s", call.Function.Name),
			Kind:     string(forgeerr.ToolFailure),
		}
	}

	result, err := b.Deps.Registry.ExecuteTool(ctx, tool, call.Function.Arguments)
	if err != nil {
		logging.PhaseWarn("phase %s: tool %s failed: %v", b.PhaseName, tool.Name, err)
	}
	return result
}

// toolResultContent renders a ToolResult as the text of a `tool` role
// message the next LLM turn will see.
func toolResultContent(call llm.ToolCall, result *tools.ToolResult) string {
	if !result.IsSuccess() {
		return fmt.Sprintf("tool %s failed: %s (remediation: %s)", call.Function.Name, result.Error, result.Remediation)
	}
	if result.Output != "" {
		return result.Output
	}
	return fmt.Sprintf("tool %s completed", call.Function.Name)
}

// schemaToParameters converts a tools.ToolSchema into the JSON-schema-ish
// map the LLM endpoint expects in ToolDefinition.Parameters.
func schemaToParameters(schema tools.ToolSchema) map[string]interface{} {
	properties := make(map[string]interface{}, len(schema.Properties))
	for name, prop := range schema.Properties {
		properties[name] = prop
	}
	params := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(schema.Required) > 0 {
		params["required"] = schema.Required
	}
	return params
}
