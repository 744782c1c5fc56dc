package llm

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// fencedJSONPattern matches ```json ... ``` or bare ``` ... ``` blocks.
var fencedJSONPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\}|\\[.*?\\])\\s*```")

// inlineJSONPattern finds the first {...} object in text that carries a
// "name" key, allowing one level of nested braces (an arguments object);
// used only as a last-resort structural match before the prose extractor.
var inlineJSONPattern = regexp.MustCompile(`(?s)\{(?:[^{}]|\{[^{}]*\})*?"name"\s*:\s*"[^"]+"(?:[^{}]|\{[^{}]*\})*\}`)

// proseCallPattern matches `tool_name(args)` references in free text.
var proseCallPattern = regexp.MustCompile(`\b([a-zA-Z_][a-zA-Z0-9_]*)\(([^()]*)\)`)

// ExtractToolCalls implements the staircase of §4.6: native structured
// tool_calls first, then fenced JSON, then inline JSON, then a
// whitelist-driven prose extractor. knownTools is the full registry of
// exposed tool names for the current phase; the prose extractor only
// matches names present in it.
func ExtractToolCalls(msg ChatMessage, knownTools map[string]bool) []ToolCall {
	if len(msg.ToolCalls) > 0 {
		return msg.ToolCalls
	}

	if calls := extractFencedJSON(msg.Content); len(calls) > 0 {
		return calls
	}

	if calls := extractInlineJSON(msg.Content); len(calls) > 0 {
		return calls
	}

	return extractProseCalls(msg.Content, knownTools)
}

func extractFencedJSON(content string) []ToolCall {
	matches := fencedJSONPattern.FindAllStringSubmatch(content, -1)
	var calls []ToolCall
	for _, m := range matches {
		calls = append(calls, parseJSONToolCalls(m[1])...)
	}
	return calls
}

func extractInlineJSON(content string) []ToolCall {
	matches := inlineJSONPattern.FindAllString(content, -1)
	var calls []ToolCall
	for _, m := range matches {
		calls = append(calls, parseJSONToolCalls(m)...)
	}
	return calls
}

// parseJSONToolCalls accepts either a single {name, arguments} object, a
// list of them, or the native {function:{name,arguments}} envelope.
func parseJSONToolCalls(raw string) []ToolCall {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	if strings.HasPrefix(raw, "[") {
		var items []json.RawMessage
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			return nil
		}
		var calls []ToolCall
		for _, item := range items {
			if call, ok := parseOneJSONToolCall(item); ok {
				calls = append(calls, call)
			}
		}
		return calls
	}

	if call, ok := parseOneJSONToolCall(json.RawMessage(raw)); ok {
		return []ToolCall{call}
	}
	return nil
}

func parseOneJSONToolCall(raw json.RawMessage) (ToolCall, bool) {
	var envelope struct {
		Function *ToolCallFunc `json:"function"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Function != nil && envelope.Function.Name != "" {
		return ToolCall{Function: *envelope.Function}, true
	}

	var flat struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
	}
	if err := json.Unmarshal(raw, &flat); err == nil && flat.Name != "" {
		return ToolCall{Function: ToolCallFunc{Name: flat.Name, Arguments: flat.Arguments}}, true
	}

	return ToolCall{}, false
}

// extractProseCalls is the last-resort parser: a whitelist of known tool
// names is searched for `tool_name(args)` patterns, with arguments parsed
// as loose JSON or key=value pairs.
func extractProseCalls(content string, knownTools map[string]bool) []ToolCall {
	if len(knownTools) == 0 {
		return nil
	}

	var calls []ToolCall
	for _, m := range proseCallPattern.FindAllStringSubmatch(content, -1) {
		name, argsRaw := m[1], m[2]
		if !knownTools[name] {
			continue
		}
		calls = append(calls, ToolCall{
			Function: ToolCallFunc{Name: name, Arguments: parseLooseArgs(argsRaw)},
		})
	}
	return calls
}

// parseLooseArgs accepts either a JSON object body or comma-separated
// key=value / key="value" pairs.
func parseLooseArgs(raw string) map[string]interface{} {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]interface{}{}
	}

	if strings.HasPrefix(raw, "{") {
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &obj); err == nil {
			return obj
		}
	}

	args := make(map[string]interface{})
	for _, pair := range strings.Split(raw, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		val := strings.Trim(strings.TrimSpace(kv[1]), `"'`)
		if n, err := strconv.ParseFloat(val, 64); err == nil {
			args[key] = n
			continue
		}
		if b, err := strconv.ParseBool(val); err == nil {
			args[key] = b
			continue
		}
		args[key] = val
	}
	return args
}
