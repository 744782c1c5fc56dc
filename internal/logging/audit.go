// Package logging also provides structured audit logging: a parallel stream
// of discrete events (task transitions, phase runs, tool dispatches, bus
// traffic, loop-guard interventions) emitted as JSON lines with a
// Datalog-atom-shaped fact string alongside, so the optional Mangle-backed
// arbiter (internal/coordinator/arbiter) can ingest the same event stream
// the human-readable audit log records.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// AuditEventType defines the type of audit event.
type AuditEventType string

const (
	AuditTaskCreated     AuditEventType = "task_created"
	AuditTaskTransition  AuditEventType = "task_transition"
	AuditTaskFailed      AuditEventType = "task_failed"
	AuditTaskBlocked     AuditEventType = "task_blocked"

	AuditPhaseSelected  AuditEventType = "phase_selected"
	AuditPhaseStarted   AuditEventType = "phase_started"
	AuditPhaseCompleted AuditEventType = "phase_completed"
	AuditPhaseError     AuditEventType = "phase_error"
	AuditPhaseTimeout   AuditEventType = "phase_timeout"

	AuditToolInvoke   AuditEventType = "tool_invoke"
	AuditToolComplete AuditEventType = "tool_complete"
	AuditToolError    AuditEventType = "tool_error"

	AuditLLMRequest  AuditEventType = "llm_request"
	AuditLLMResponse AuditEventType = "llm_response"
	AuditLLMError    AuditEventType = "llm_error"

	AuditBusSend      AuditEventType = "bus_send"
	AuditBusBroadcast AuditEventType = "bus_broadcast"
	AuditBusRequest   AuditEventType = "bus_request"
	AuditBusTimeout   AuditEventType = "bus_timeout"

	AuditObjectiveActivated AuditEventType = "objective_activated"
	AuditObjectiveDegrading AuditEventType = "objective_degrading"
	AuditObjectiveCritical  AuditEventType = "objective_critical"
	AuditObjectiveBlocked   AuditEventType = "objective_blocked"
	AuditObjectiveCompleted AuditEventType = "objective_completed"

	AuditLoopPattern     AuditEventType = "loop_pattern"
	AuditLoopCycle       AuditEventType = "loop_cycle"
	AuditLoopActionRepeat AuditEventType = "loop_action_repeat"
	AuditLoopNoProgress  AuditEventType = "loop_no_progress"
	AuditLoopEscalation  AuditEventType = "loop_escalation"

	AuditStatePersist  AuditEventType = "state_persist"
	AuditStateLoad     AuditEventType = "state_load"
	AuditStateCorrupt  AuditEventType = "state_corrupt"

	AuditSpecialistActivated AuditEventType = "specialist_activated"
)

// AuditEvent represents a structured audit log entry.
type AuditEvent struct {
	Timestamp  int64                  `json:"ts"`
	EventType  AuditEventType         `json:"event"`
	Category   string                 `json:"cat"`
	RunID      string                 `json:"run"`
	RequestID  string                 `json:"req"`
	Phase      string                 `json:"phase"`
	Target     string                 `json:"target"`
	Action     string                 `json:"action"`
	Success    bool                   `json:"success"`
	DurationMs int64                  `json:"dur_ms"`
	Error      string                 `json:"error"`
	Message    string                 `json:"msg"`
	Fields     map[string]interface{} `json:"fields"`
	Fact       string                 `json:"fact"`
}

var (
	auditFile   *os.File
	auditMu     sync.Mutex
	auditLogger *AuditLogger
)

// AuditLogger handles structured audit logging with fact generation.
type AuditLogger struct {
	runID string
	phase string
}

// InitAudit initializes the audit logging system.
func InitAudit() error {
	if !IsDebugMode() {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		return nil
	}

	date := time.Now().Format("2006-01-02")
	auditPath := filepath.Join(logsDir, fmt.Sprintf("%s_audit.log", date))

	file, err := os.OpenFile(auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	auditFile = file

	header := fmt.Sprintf("# Audit log started at %s\n", time.Now().Format(time.RFC3339))
	auditFile.WriteString(header)

	return nil
}

// CloseAudit closes the audit log file.
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditFile != nil {
		auditFile.Close()
		auditFile = nil
	}
}

// Audit returns the global audit logger.
func Audit() *AuditLogger {
	if auditLogger == nil {
		auditLogger = &AuditLogger{}
	}
	return auditLogger
}

// AuditWithRun creates an audit logger scoped to a pipeline run.
func AuditWithRun(runID string) *AuditLogger {
	return &AuditLogger{runID: runID}
}

// AuditWithPhase creates an audit logger scoped to a phase name.
func AuditWithPhase(phase string) *AuditLogger {
	return &AuditLogger{phase: phase}
}

// Log writes an audit event.
func (a *AuditLogger) Log(event AuditEvent) {
	if !IsDebugMode() || auditFile == nil {
		return
	}

	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.RunID == "" && a.runID != "" {
		event.RunID = a.runID
	}
	if event.Phase == "" && a.phase != "" {
		event.Phase = a.phase
	}
	if event.Fields == nil {
		event.Fields = make(map[string]interface{})
	}

	event.Fact = generateFact(event)

	auditMu.Lock()
	defer auditMu.Unlock()

	data, err := json.Marshal(event)
	if err == nil {
		auditFile.WriteString(string(data) + "\n")
	}
}

// generateFact creates a Datalog-atom-shaped fact string from an event, for
// ingestion by the optional Mangle arbiter.
func generateFact(e AuditEvent) string {
	switch e.EventType {
	case AuditTaskCreated, AuditTaskTransition, AuditTaskFailed, AuditTaskBlocked:
		return fmt.Sprintf("task_event(%d, /%s, \"%s\", %v).",
			e.Timestamp, e.EventType, e.Target, e.Success)

	case AuditPhaseSelected, AuditPhaseStarted, AuditPhaseCompleted, AuditPhaseError, AuditPhaseTimeout:
		return fmt.Sprintf("phase_event(%d, /%s, \"%s\", %v, %d).",
			e.Timestamp, e.EventType, e.Phase, e.Success, e.DurationMs)

	case AuditToolInvoke, AuditToolComplete, AuditToolError:
		return fmt.Sprintf("tool_exec(%d, /%s, \"%s\", \"%s\", %v, %d).",
			e.Timestamp, e.EventType, e.Target, e.Action, e.Success, e.DurationMs)

	case AuditLLMRequest, AuditLLMResponse, AuditLLMError:
		tokens := 0
		if t, ok := e.Fields["tokens"].(int); ok {
			tokens = t
		}
		return fmt.Sprintf("llm_call(%d, /%s, %v, %d, %d).",
			e.Timestamp, e.EventType, e.Success, e.DurationMs, tokens)

	case AuditBusSend, AuditBusBroadcast, AuditBusRequest, AuditBusTimeout:
		return fmt.Sprintf("bus_event(%d, /%s, \"%s\", \"%s\", %v).",
			e.Timestamp, e.EventType, e.Action, e.Target, e.Success)

	case AuditObjectiveActivated, AuditObjectiveDegrading, AuditObjectiveCritical,
		AuditObjectiveBlocked, AuditObjectiveCompleted:
		return fmt.Sprintf("objective_event(%d, /%s, \"%s\").",
			e.Timestamp, e.EventType, e.Target)

	case AuditLoopPattern, AuditLoopCycle, AuditLoopActionRepeat, AuditLoopNoProgress, AuditLoopEscalation:
		return fmt.Sprintf("loop_event(%d, /%s, \"%s\", \"%s\").",
			e.Timestamp, e.EventType, e.Phase, e.Target)

	case AuditStatePersist, AuditStateLoad, AuditStateCorrupt:
		version := 0
		if v, ok := e.Fields["version"].(int); ok {
			version = v
		}
		return fmt.Sprintf("state_event(%d, /%s, %d, %v).",
			e.Timestamp, e.EventType, version, e.Success)

	case AuditSpecialistActivated:
		return fmt.Sprintf("specialist_event(%d, \"%s\", \"%s\").",
			e.Timestamp, e.Phase, e.Target)

	default:
		return fmt.Sprintf("audit_event(%d, /%s, \"%s\", %v).",
			e.Timestamp, e.EventType, escapeString(e.Message), e.Success)
	}
}

func escapeString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/10)

	for _, c := range s {
		switch c {
		case '"':
			b.WriteString("\\\"")
		case '\\':
			b.WriteString("\\\\")
		case '\n':
			b.WriteString("\\n")
		case '\r':
			b.WriteString("\\r")
		case '\t':
			b.WriteString("\\t")
		default:
			b.WriteRune(c)
		}
	}
	return b.String()
}

// =============================================================================
// CONVENIENCE METHODS
// =============================================================================

// TaskTransition logs a task status transition.
func (a *AuditLogger) TaskTransition(taskID, from, to string) {
	a.Log(AuditEvent{
		EventType: AuditTaskTransition,
		Target:    taskID,
		Success:   true,
		Fields:    map[string]interface{}{"from": from, "to": to},
		Message:   fmt.Sprintf("task %s: %s -> %s", taskID, from, to),
	})
}

// PhaseStarted logs a phase run start.
func (a *AuditLogger) PhaseStarted(phase, taskID string) {
	a.Log(AuditEvent{
		EventType: AuditPhaseStarted,
		Phase:     phase,
		Target:    taskID,
		Success:   true,
		Message:   fmt.Sprintf("phase %s started (task=%s)", phase, taskID),
	})
}

// PhaseCompleted logs a phase run completion.
func (a *AuditLogger) PhaseCompleted(phase string, durationMs int64, success bool, errMsg string) {
	a.Log(AuditEvent{
		EventType:  AuditPhaseCompleted,
		Phase:      phase,
		Success:    success,
		DurationMs: durationMs,
		Error:      errMsg,
		Message:    fmt.Sprintf("phase %s completed (success=%v, %dms)", phase, success, durationMs),
	})
}

// ToolExec logs tool execution.
func (a *AuditLogger) ToolExec(toolName, action string, durationMs int64, success bool, errMsg string) {
	eventType := AuditToolComplete
	if !success {
		eventType = AuditToolError
	}
	a.Log(AuditEvent{
		EventType:  eventType,
		Target:     toolName,
		Action:     action,
		Success:    success,
		DurationMs: durationMs,
		Error:      errMsg,
		Message:    fmt.Sprintf("tool %s: %s (%dms, success=%v)", toolName, action, durationMs, success),
	})
}

// LLMCall logs an LLM API call.
func (a *AuditLogger) LLMCall(tokens int, durationMs int64, success bool, errMsg string) {
	a.Log(AuditEvent{
		EventType:  AuditLLMResponse,
		Success:    success,
		DurationMs: durationMs,
		Error:      errMsg,
		Fields:     map[string]interface{}{"tokens": tokens},
		Message:    fmt.Sprintf("llm call -> %d tokens (%dms, success=%v)", tokens, durationMs, success),
	})
}

// BusMessage logs a bus send/broadcast/request.
func (a *AuditLogger) BusMessage(eventType AuditEventType, action, recipient string, success bool) {
	a.Log(AuditEvent{
		EventType: eventType,
		Action:    action,
		Target:    recipient,
		Success:   success,
		Message:   fmt.Sprintf("bus %s: %s -> %s (success=%v)", eventType, action, recipient, success),
	})
}

// ObjectiveHealth logs an objective health transition.
func (a *AuditLogger) ObjectiveHealth(eventType AuditEventType, objectiveID string) {
	a.Log(AuditEvent{
		EventType: eventType,
		Target:    objectiveID,
		Success:   true,
		Message:   fmt.Sprintf("objective %s: %s", objectiveID, eventType),
	})
}

// LoopIntervention logs a loop-guard intervention.
func (a *AuditLogger) LoopIntervention(eventType AuditEventType, phase, taskID string) {
	a.Log(AuditEvent{
		EventType: eventType,
		Phase:     phase,
		Target:    taskID,
		Success:   true,
		Message:   fmt.Sprintf("loop intervention %s on phase=%s task=%s", eventType, phase, taskID),
	})
}

// StatePersist logs a state store persist/load.
func (a *AuditLogger) StatePersist(eventType AuditEventType, version int, success bool, errMsg string) {
	a.Log(AuditEvent{
		EventType: eventType,
		Success:   success,
		Error:     errMsg,
		Fields:    map[string]interface{}{"version": version},
		Message:   fmt.Sprintf("%s version=%d success=%v", eventType, version, success),
	})
}

// SpecialistActivated logs a specialized-phase on-demand activation.
func (a *AuditLogger) SpecialistActivated(phase, trigger string) {
	a.Log(AuditEvent{
		EventType: AuditSpecialistActivated,
		Phase:     phase,
		Target:    trigger,
		Success:   true,
		Message:   fmt.Sprintf("specialist activated: %s (trigger=%s)", phase, trigger),
	})
}
