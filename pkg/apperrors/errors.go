// Package apperrors defines the error vocabulary shared across the pipeline.
// Sentinels classify terminal outcomes; typed errors carry enough context to
// diagnose a failure without re-running the pipeline.
package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrEmptyQuestion       = errors.New("question is empty")
	ErrQuestionTooLong     = errors.New("question exceeds maximum length")
	ErrNoRelevantSchema    = errors.New("no relevant schema found for question")
	ErrTokenBudgetExceeded = errors.New("token budget exceeded")
	ErrModelUnavailable    = errors.New("language model unavailable")
	ErrAttemptsExhausted   = errors.New("correction attempts exhausted")
)

// AnalysisError reports that the question could not be analyzed into a
// usable business context profile.
type AnalysisError struct {
	Reason string
	Cause  error
}

func (e *AnalysisError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("analysis failed: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("analysis failed: %s", e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AnalysisError) Unwrap() error {
	return e.Cause
}

// SecurityViolationError is raised when the security validation layer
// rejects generated SQL or detects injection in the question. It is
// terminal: security findings are never fed back for correction.
type SecurityViolationError struct {
	Layer  string
	Issues []string
}

func (e *SecurityViolationError) Error() string {
	return fmt.Sprintf("security violation in %s: %s", e.Layer, strings.Join(e.Issues, "; "))
}

// StageError records which pipeline stage failed. The partial results for
// diagnosis travel on PipelineResult, so the error itself stays small.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

// Unwrap returns the stage's underlying error for errors.Is/As.
func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps err with the stage that produced it.
func NewStageError(stage string, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}
