// File: api/schemas/schemas.go
package schemas

import (
	"time"
)

// -- Phase State Machine Schemas --

// Phase identifies one stage of the fixed five-stage analysis workflow.
// The zero value is the starting phase. Phases are strictly ordered; forward
// progress is gated, backward navigation is always permitted.
type Phase int

const (
	PhaseUploadAlign Phase = iota
	PhaseProcessingValidation
	PhaseInsightExtraction
	PhaseGapAnalysis
	PhaseConsolidation
)

// String returns the human readable phase name used in logs and reports.
func (p Phase) String() string {
	switch p {
	case PhaseUploadAlign:
		return "UPLOAD_ALIGN"
	case PhaseProcessingValidation:
		return "PROCESSING_VALIDATION"
	case PhaseInsightExtraction:
		return "INSIGHT_EXTRACTION"
	case PhaseGapAnalysis:
		return "GAP_ANALYSIS"
	case PhaseConsolidation:
		return "CONSOLIDATION"
	default:
		return "UNKNOWN"
	}
}

// -- Completion Schemas --

// TokenUsage reports prompt/completion/total token counts for one generation.
// It is best effort: providers that omit usage metadata yield a nil pointer,
// never fabricated zeros.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionResult is the outcome of a single non-streaming agent call.
type CompletionResult struct {
	Content string      `json:"content"`
	Usage   *TokenUsage `json:"usage,omitempty"`
}

// -- Agent Role Schemas --

// AgentRole identifies one reasoning role in the pipeline.
type AgentRole string

const (
	RolePlanner     AgentRole = "planner"
	RoleWriter      AgentRole = "writer"
	RoleCritic      AgentRole = "critic"
	RoleGapAnalysis AgentRole = "gap_analysis"
)

// AgentMethod names one agent operation for the purpose of instruction
// overrides. The (role, method) pair is the only configuration surface the
// agents consume beyond model selection.
type AgentMethod string

const (
	MethodGenerateContext   AgentMethod = "generate_context"
	MethodGenerateTags      AgentMethod = "generate_tags"
	MethodGenerateObjective AgentMethod = "generate_objective"
	MethodGenerateFramework AgentMethod = "generate_framework"
	MethodAnalyzeSegment    AgentMethod = "analyze_segment"
	MethodRewriteSegment    AgentMethod = "rewrite_segment"
	MethodEvaluateSegment   AgentMethod = "evaluate_segment"
	MethodIdentifyGaps      AgentMethod = "identify_gaps"
)

// -- Interaction Log Schemas --

// LogAction distinguishes the lifecycle stage an AgentLogEntry records.
type LogAction string

const (
	LogActionRequest  LogAction = "request"
	LogActionResponse LogAction = "response"
	LogActionError    LogAction = "error"
)

// PromptPair carries the full system and user prompts of one agent call.
type PromptPair struct {
	System string `json:"system"`
	User   string `json:"user"`
}

// AgentLogEntry is one immutable record in the interaction log. A call start
// produces a "request" entry; exactly one terminal "response" entry may later
// be correlated to it by ID. "error" entries are standalone because failures
// can occur without a request id in hand.
type AgentLogEntry struct {
	ID        string        `json:"id"`
	AgentName string        `json:"agent_name"`
	Role      AgentRole     `json:"role"`
	Action    LogAction     `json:"action"`
	Prompt    *PromptPair   `json:"prompt,omitempty"`
	Response  string        `json:"response,omitempty"`
	Error     string        `json:"error,omitempty"`
	Model     string        `json:"model,omitempty"`
	Tokens    *TokenUsage   `json:"tokens,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// -- Planner Schemas --

// PlannerOutput is the planner's initial read of a transcript. It is produced
// once per transcript by sequential planner calls and each field remains
// independently editable by the user afterward.
type PlannerOutput struct {
	ContextUnderstanding string   `json:"context_understanding"`
	MetadataTags         []string `json:"metadata_tags"`
	AnalysisObjective    string   `json:"analysis_objective"`
}

// FrameworkSegment is one unit of the analysis framework: a titled objective
// with guidance, independently processed. The ID is assigned at creation time
// and stable thereafter; Order defines display and processing sequence.
type FrameworkSegment struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Objective string `json:"objective"`
	Guidance  string `json:"guidance"`
	Order     int    `json:"order"`
}

// FrameworkMetadata describes the framework as a whole.
type FrameworkMetadata struct {
	Title     string    `json:"title"`
	Created   time.Time `json:"created"`
	Objective string    `json:"objective"`
	Tags      []string  `json:"tags"`
}

// AnalysisFramework is the segment plan for one transcript. The segment list
// is mutable (add/delete/reorder) prior to and during insight extraction.
type AnalysisFramework struct {
	Metadata FrameworkMetadata  `json:"metadata"`
	Segments []FrameworkSegment `json:"segments"`
}

// -- Analysis Schemas --

// AnalysisStatus tracks the lifecycle of one segment analysis.
type AnalysisStatus string

const (
	AnalysisPending  AnalysisStatus = "pending"
	AnalysisComplete AnalysisStatus = "complete"
	AnalysisError    AnalysisStatus = "error"
)

// SegmentAnalysis is the writer's output for one segment, keyed by the
// segment id (or a gap suggestion id). Overwritten on rewrite.
type SegmentAnalysis struct {
	SegmentID   string         `json:"segment_id"`
	Content     string         `json:"content"`
	Status      AnalysisStatus `json:"status"`
	GeneratedAt time.Time      `json:"generated_at,omitempty"`
}

// CriticEvaluation is the parsed form of the critic's structured response for
// one segment. At most one evaluation exists per segment at any time; it is
// invalidated whenever the segment content is rewritten.
//
// ObjectiveFulfillmentScore is passed through exactly as the model reported
// it: values outside 0-100 are not clamped or rejected.
type CriticEvaluation struct {
	SegmentID                 string    `json:"segment_id"`
	Evaluation                string    `json:"evaluation"`
	SourceAlignment           bool      `json:"source_alignment"`
	SourceAlignmentIssues     []string  `json:"source_alignment_issues,omitempty"`
	ObjectiveFulfillmentScore int       `json:"objective_fulfillment_score"`
	ImprovementGuidance       string    `json:"improvement_guidance"`
	GeneratedAt               time.Time `json:"generated_at"`
}

// -- Gap Analysis Schemas --

// GapSuggestion is a theme the gap analysis agent (or the user) proposes as
// uncovered by the existing segments. When selected for analysis it seeds a
// new SegmentAnalysis under its own id, and may later be promoted into the
// framework's segment list.
type GapSuggestion struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Objective string `json:"objective"`
	Guidance  string `json:"guidance"`
	Rationale string `json:"rationale"`
}

// GapAnalysis aggregates the current gap suggestions and the analyses of the
// gaps currently being worked. Summary and AdditionalThemes are legacy
// summary fields retained for report compatibility.
type GapAnalysis struct {
	Suggestions      []GapSuggestion            `json:"suggestions"`
	InProgress       map[string]SegmentAnalysis `json:"in_progress"`
	Summary          string                     `json:"summary,omitempty"`
	AdditionalThemes []string                   `json:"additional_themes,omitempty"`
}

// -- Orchestrator Schemas --

// TaskStatus is the lifecycle state of one orchestrated agent task.
type TaskStatus string

const (
	TaskIdle      TaskStatus = "idle"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// TaskState is the observable snapshot of one task in a parallel batch. It is
// ephemeral, existing only for the duration of one orchestrated run; identity
// is the task id chosen by the caller (typically the segment id).
type TaskState struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Status   TaskStatus `json:"status"`
	Progress float64    `json:"progress"`
	Output   string     `json:"output,omitempty"`
	Error    string     `json:"error,omitempty"`
}
