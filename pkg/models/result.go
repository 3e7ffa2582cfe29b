package models

import "github.com/google/uuid"

// ============================================================================
// Validation Layers
// ============================================================================

// ValidationLayer identifies one layer of the validation stack. Layers run
// in the declared order; security runs first and short-circuits.
type ValidationLayer string

const (
	LayerSecurity         ValidationLayer = "security"
	LayerSchemaCompliance ValidationLayer = "schema_compliance"
	LayerSemantic         ValidationLayer = "semantic"
	LayerBusinessLogic    ValidationLayer = "business_logic"
	LayerDryRun           ValidationLayer = "dry_run"
)

// ValidValidationLayers contains all layers in execution order.
var ValidValidationLayers = []ValidationLayer{
	LayerSecurity,
	LayerSchemaCompliance,
	LayerSemantic,
	LayerBusinessLogic,
	LayerDryRun,
}

// IsValidValidationLayer checks if the given layer is valid.
func IsValidValidationLayer(l ValidationLayer) bool {
	for _, v := range ValidValidationLayers {
		if v == l {
			return true
		}
	}
	return false
}

// ============================================================================
// Validation Issues
// ============================================================================

// IssueSeverity grades a validation issue.
type IssueSeverity string

const (
	SeverityError   IssueSeverity = "error"
	SeverityWarning IssueSeverity = "warning"
	SeverityInfo    IssueSeverity = "info"
)

// Issue codes emitted by the validation layers.
const (
	IssueMultipleStatements    = "multiple_statements"
	IssueDisallowedStatement   = "disallowed_statement"
	IssueInjectionDetected     = "injection_detected"
	IssueUnknownTable          = "unknown_table"
	IssueUnknownColumn         = "unknown_column"
	IssueMissingAggregation    = "missing_aggregation"
	IssueMissingGroupBy        = "missing_group_by"
	IssueMissingTimeFilter     = "missing_time_filter"
	IssueMissingEntityFilter   = "missing_entity_filter"
	IssueMissingTimeOrdering   = "missing_time_ordering"
	IssueMissingComparison     = "missing_comparison"
	IssueMissingRequiredFilter = "missing_required_filter"
	IssueMissingRowLimit       = "missing_row_limit"
	IssueSyntaxError           = "syntax_error"
	IssueRowEstimateExceeded   = "row_estimate_exceeded"
	IssuePerformanceHint       = "performance_hint"
	IssueDryRunSkipped         = "dry_run_skipped"
	IssueAmbiguousTime         = "ambiguous_time"
	IssueDefaultTimeWindow     = "default_time_window"
	IssueUnmappedEntity        = "unmapped_entity"
)

// ValidationIssue is a single finding from a validation layer.
type ValidationIssue struct {
	Code     string        `json:"code"`
	Message  string        `json:"message"`
	Severity IssueSeverity `json:"severity"`
}

// ValidationResult is the outcome of one validation layer for one SQL text.
type ValidationResult struct {
	Layer   ValidationLayer   `json:"layer"`
	Passed  bool              `json:"passed"`
	Skipped bool              `json:"skipped,omitempty"`
	Issues  []ValidationIssue `json:"issues,omitempty"`
	Score   float64           `json:"score"`
}

// Errors returns only the error-severity issues.
func (r *ValidationResult) Errors() []ValidationIssue {
	var errs []ValidationIssue
	for _, issue := range r.Issues {
		if issue.Severity == SeverityError {
			errs = append(errs, issue)
		}
	}
	return errs
}

// ============================================================================
// Generation
// ============================================================================

// GeneratedSQL is one SQL text produced by the generator, tagged with the
// attempt that produced it.
type GeneratedSQL struct {
	Text    string `json:"text"`
	Attempt int    `json:"attempt"`
	Model   string `json:"model,omitempty"`
}

// CorrectionAttempt records one round of the correction loop.
type CorrectionAttempt struct {
	Attempt          int               `json:"attempt"`
	PriorSQL         string            `json:"prior_sql"`
	Issues           []ValidationIssue `json:"issues,omitempty"`
	CorrectedSQL     string            `json:"corrected_sql"`
	ImprovementScore float64           `json:"improvement_score"`
}

// TokenUsage aggregates provider token accounting across all calls made for
// one question, correction attempts included.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates another usage sample.
func (u *TokenUsage) Add(other TokenUsage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// ============================================================================
// Pipeline Result
// ============================================================================

// PipelineStatus is the terminal state of one pipeline run.
type PipelineStatus string

const (
	StatusSucceeded        PipelineStatus = "succeeded"
	StatusFailed           PipelineStatus = "failed"
	StatusCancelled        PipelineStatus = "cancelled"
	StatusNoRelevantSchema PipelineStatus = "no_relevant_schema"
)

// ValidPipelineStatuses contains all valid status values.
var ValidPipelineStatuses = []PipelineStatus{
	StatusSucceeded,
	StatusFailed,
	StatusCancelled,
	StatusNoRelevantSchema,
}

// IsValidPipelineStatus checks if the given status is valid.
func IsValidPipelineStatus(s PipelineStatus) bool {
	for _, v := range ValidPipelineStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// PipelineResult is the outcome of processing one question. Partial results
// (Profile, Selection, Attempts) are populated on every exit path so a
// failure can be diagnosed without re-running the pipeline. SQL is non-nil
// only when Status is StatusSucceeded: invalid SQL is never returned.
type PipelineResult struct {
	RequestID  uuid.UUID               `json:"request_id"`
	Status     PipelineStatus          `json:"status"`
	SQL        *GeneratedSQL           `json:"sql,omitempty"`
	Confidence float64                 `json:"confidence"`
	Issues     []ValidationIssue       `json:"issues,omitempty"`
	Profile    *BusinessContextProfile `json:"profile,omitempty"`
	Selection  *SchemaSelection        `json:"selection,omitempty"`
	Attempts   []CorrectionAttempt     `json:"attempts,omitempty"`
	Usage      TokenUsage              `json:"usage"`
	ElapsedMs  int64                   `json:"elapsed_ms"`
}

// Succeeded returns true if the pipeline produced validated SQL.
func (r *PipelineResult) Succeeded() bool {
	return r.Status == StatusSucceeded
}
