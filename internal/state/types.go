// Package state defines the pipeline's durable data model and the store
// that persists it: the one PipelineState document every phase reads and
// mutates through, serialized atomically to disk between iterations.
package state

import "time"

// TaskStatus is one node of the task status machine (§4.1).
type TaskStatus string

const (
	TaskNew         TaskStatus = "NEW"
	TaskInProgress  TaskStatus = "IN_PROGRESS"
	TaskQAPending   TaskStatus = "QA_PENDING"
	TaskNeedsFixes  TaskStatus = "NEEDS_FIXES"
	TaskCompleted   TaskStatus = "COMPLETED"
	TaskFailed      TaskStatus = "FAILED"
	TaskBlocked     TaskStatus = "BLOCKED"
	TaskDeferred    TaskStatus = "DEFERRED"
)

// FileStatus tracks a tracked file's last-known disposition.
type FileStatus string

const (
	FileNew         FileStatus = "NEW"
	FileModified    FileStatus = "MODIFIED"
	FileQAApproved  FileStatus = "QA_APPROVED"
	FileNeedsFixes  FileStatus = "NEEDS_FIXES"
	FileDeleted     FileStatus = "DELETED"
)

// ObjectiveLevel is one of the three tiers of the objective hierarchy.
type ObjectiveLevel string

const (
	ObjectivePrimary   ObjectiveLevel = "primary"
	ObjectiveSecondary ObjectiveLevel = "secondary"
	ObjectiveTertiary  ObjectiveLevel = "tertiary"
)

// ObjectiveStatus is the lifecycle of an Objective document.
type ObjectiveStatus string

const (
	ObjStatusProposed   ObjectiveStatus = "PROPOSED"
	ObjStatusApproved   ObjectiveStatus = "APPROVED"
	ObjStatusActive     ObjectiveStatus = "ACTIVE"
	ObjStatusInProgress ObjectiveStatus = "IN_PROGRESS"
	ObjStatusBlocked    ObjectiveStatus = "BLOCKED"
	ObjStatusCompleted  ObjectiveStatus = "COMPLETED"
	ObjStatusDocumented ObjectiveStatus = "DOCUMENTED"
)

// ProjectMaturity buckets completion_percentage into the four lifecycle
// stages that gate QA routing (§4.2).
type ProjectMaturity string

const (
	MaturityFoundation   ProjectMaturity = "foundation"
	MaturityIntegration  ProjectMaturity = "integration"
	MaturityConsolidation ProjectMaturity = "consolidation"
	MaturityCompletion   ProjectMaturity = "completion"
)

// MaturityFromCompletion buckets a completion percentage per §4.2.
func MaturityFromCompletion(pct float64) ProjectMaturity {
	switch {
	case pct < 25:
		return MaturityFoundation
	case pct < 50:
		return MaturityIntegration
	case pct < 75:
		return MaturityConsolidation
	default:
		return MaturityCompletion
	}
}

// TaskError records one failure attributed to a task.
type TaskError struct {
	Kind      string    `json:"kind"`
	Details   string    `json:"details"`
	Phase     string    `json:"phase"`
	Timestamp time.Time `json:"timestamp"`
}

// Task is an atomic unit of work tracked by the pipeline.
type Task struct {
	ID           string            `json:"id"`
	Description  string            `json:"description"`
	TargetFile   string            `json:"target_file,omitempty"`
	Status       TaskStatus        `json:"status"`
	Priority     int               `json:"priority"`
	Attempts     int               `json:"attempts"`
	FailureCount int               `json:"failure_count"`
	Errors       []TaskError       `json:"errors,omitempty"`
	DependsOn    []string          `json:"depends_on,omitempty"`
	Created      time.Time         `json:"created"`
	Updated      time.Time         `json:"updated"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// PhaseRun is one bounded entry in a PhaseState's run_history.
type PhaseRun struct {
	Timestamp     time.Time `json:"timestamp"`
	Success       bool      `json:"success"`
	TaskID        string    `json:"task_id,omitempty"`
	FilesCreated  []string  `json:"files_created,omitempty"`
	FilesModified []string  `json:"files_modified,omitempty"`
}

// MaxRunHistory bounds PhaseState.RunHistory (§3: "cap e.g. 20").
const MaxRunHistory = 20

// PhaseState tracks one phase's execution history.
type PhaseState struct {
	LastRun      *time.Time `json:"last_run,omitempty"`
	RunCount     int        `json:"run_count"`
	SuccessCount int        `json:"success_count"`
	FailureCount int        `json:"failure_count"`
	RunHistory   []PhaseRun `json:"run_history,omitempty"`
}

// RecordRun appends a run to history (bounded) and updates the counters.
// run_count = success_count + failure_count is maintained as an invariant.
func (p *PhaseState) RecordRun(run PhaseRun) {
	now := run.Timestamp
	p.LastRun = &now
	p.RunCount++
	if run.Success {
		p.SuccessCount++
	} else {
		p.FailureCount++
	}
	p.RunHistory = append(p.RunHistory, run)
	if len(p.RunHistory) > MaxRunHistory {
		p.RunHistory = p.RunHistory[len(p.RunHistory)-MaxRunHistory:]
	}
}

// FileState tracks the last-known disposition of a tracked file.
type FileState struct {
	Path           string     `json:"path"`
	Status         FileStatus `json:"status"`
	Hash           string     `json:"hash,omitempty"`
	CreatedByTask  string     `json:"created_by_task,omitempty"`
	LastModified   time.Time  `json:"last_modified"`
}

// Objective is one node of the three-tier objective hierarchy.
type Objective struct {
	ID                   string          `json:"id"`
	Level                ObjectiveLevel  `json:"level"`
	Title                string          `json:"title"`
	Description          string          `json:"description"`
	Status               ObjectiveStatus `json:"status"`
	Tasks                []string        `json:"tasks"`
	CompletionPercentage float64         `json:"completion_percentage"`
	OpenIssues           []string        `json:"open_issues,omitempty"`
	CriticalIssues       []string        `json:"critical_issues,omitempty"`
	DependsOn            []string        `json:"depends_on,omitempty"`
	Blocks               []string        `json:"blocks,omitempty"`
	SuccessRate          float64         `json:"success_rate"`
	FailureCount         int             `json:"failure_count"`
	CreatedAt            time.Time       `json:"created_at"`
	StartedAt            *time.Time      `json:"started_at,omitempty"`
	CompletedAt          *time.Time      `json:"completed_at,omitempty"`
	TargetDate           *time.Time      `json:"target_date,omitempty"`
	AcceptanceCriteria   []string        `json:"acceptance_criteria,omitempty"`
}

// PerformanceMetrics is a free-form running tally of pipeline-level stats
// (phase durations, retry counts, tool-call counts) surfaced for analytics.
type PerformanceMetrics struct {
	TotalPhaseRuns   int            `json:"total_phase_runs"`
	TotalToolCalls   int            `json:"total_tool_calls"`
	TotalLLMCalls    int            `json:"total_llm_calls"`
	AvgPhaseSeconds  map[string]float64 `json:"avg_phase_seconds,omitempty"`
}

// LearnedPattern is a supplemented feature (SPEC_FULL §6): a recorded
// success or failure pattern the coordinator can consult before retrying
// an approach that has already failed repeatedly on this run.
type LearnedPattern struct {
	Pattern   string    `json:"pattern"`
	Kind      string    `json:"kind"` // success | failure
	Count     int       `json:"count"`
	LastSeen  time.Time `json:"last_seen"`
}

// FixRecord is a supplemented feature: a historical record of a
// debugging-phase fix, kept for the analytics store and for surfacing
// "this was fixed before the same way" hints to future debugging runs.
type FixRecord struct {
	TaskID    string    `json:"task_id"`
	Summary   string    `json:"summary"`
	Timestamp time.Time `json:"timestamp"`
}

// ReplanTrigger is a supplemented feature (SPEC_FULL §6): recorded
// whenever the loop detector escalates to specialist consultation or
// forced project_planning, so the next project_planning run can see why
// it was invoked early rather than inferring it from task state alone.
type ReplanTrigger struct {
	Reason      string    `json:"reason"`
	Details     string    `json:"details"`
	TriggeredAt time.Time `json:"triggered_at"`
}

// Correlation is a supplemented feature: a recorded relationship between
// two facts the analytics store noticed (e.g. "file X changes correlate
// with QA failures in file Y").
type Correlation struct {
	Subject     string  `json:"subject"`
	Related     string  `json:"related"`
	Strength    float64 `json:"strength"`
	Description string  `json:"description"`
}

// PipelineState is the root durable document (§3). Every phase reads and
// mutates through Store; no component holds a long-lived reference to the
// live object graph outside of a single coordinator iteration.
type PipelineState struct {
	Version       int       `json:"version"`
	Updated       time.Time `json:"updated"`
	PipelineRunID string    `json:"pipeline_run_id"`

	Tasks      map[string]*Task       `json:"tasks"`
	Files      map[string]*FileState  `json:"files"`
	Phases     map[string]*PhaseState `json:"phases"`
	Objectives map[ObjectiveLevel]map[string]*Objective `json:"objectives"`

	Queue        []string `json:"queue"`
	PhaseHistory []string `json:"phase_history"`

	ExpansionCount      int             `json:"expansion_count"`
	ProjectMaturity     ProjectMaturity `json:"project_maturity"`
	CompletionPercentage float64        `json:"completion_percentage"`

	NoUpdateCounts       map[string]int `json:"no_update_counts"`
	PhaseExecutionCounts map[string]int `json:"phase_execution_counts"`

	PerformanceMetrics PerformanceMetrics `json:"performance_metrics"`
	LearnedPatterns    []LearnedPattern   `json:"learned_patterns,omitempty"`
	FixHistory         []FixRecord        `json:"fix_history,omitempty"`
	Correlations       []Correlation      `json:"correlations,omitempty"`
	ReplanTriggers     []ReplanTrigger    `json:"replan_triggers,omitempty"`
}

// NewPipelineState returns an empty document ready for first persist.
func NewPipelineState(runID string) *PipelineState {
	return &PipelineState{
		Version:              0,
		PipelineRunID:        runID,
		Tasks:                make(map[string]*Task),
		Files:                make(map[string]*FileState),
		Phases:               make(map[string]*PhaseState),
		Objectives: map[ObjectiveLevel]map[string]*Objective{
			ObjectivePrimary:   make(map[string]*Objective),
			ObjectiveSecondary: make(map[string]*Objective),
			ObjectiveTertiary:  make(map[string]*Objective),
		},
		ProjectMaturity:      MaturityFoundation,
		NoUpdateCounts:       make(map[string]int),
		PhaseExecutionCounts: make(map[string]int),
	}
}

// RecomputeCompletion recalculates completion_percentage and
// project_maturity from the current task map (§3 invariant).
func (s *PipelineState) RecomputeCompletion() {
	if len(s.Tasks) == 0 {
		s.CompletionPercentage = 0
		s.ProjectMaturity = MaturityFoundation
		return
	}
	completed := 0
	for _, t := range s.Tasks {
		if t.Status == TaskCompleted {
			completed++
		}
	}
	s.CompletionPercentage = float64(completed) / float64(len(s.Tasks)) * 100
	s.ProjectMaturity = MaturityFromCompletion(s.CompletionPercentage)
}

// ConversationRole is one turn's speaker in a ConversationThread.
type ConversationRole string

const (
	RoleSystem    ConversationRole = "system"
	RoleUser      ConversationRole = "user"
	RoleAssistant ConversationRole = "assistant"
	RoleTool      ConversationRole = "tool"
)
