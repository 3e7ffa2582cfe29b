package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/text2sql/pkg/adapters/datasource"
	"github.com/ekaya-inc/text2sql/pkg/apperrors"
	"github.com/ekaya-inc/text2sql/pkg/audit"
	"github.com/ekaya-inc/text2sql/pkg/config"
	"github.com/ekaya-inc/text2sql/pkg/models"
)

// BudgetConfig bounds one request's prompt assembly. A nil BudgetConfig
// falls back to the configured retrieval token budget.
type BudgetConfig struct {
	MaxTotalTokens int
}

// QueryPipeline is the single entry point: one business question in, one
// validated SQL result out. On failure the returned result still carries
// every partial product for diagnosis; callers always get both the result
// and the error.
type QueryPipeline interface {
	ProcessQuery(ctx context.Context, question, userID string, budgetCfg *BudgetConfig) (*models.PipelineResult, error)

	// ValidateSQL runs the validation layers against caller-supplied SQL
	// instead of generated SQL. The question builds the same business
	// context and schema selection the layers would see during generation.
	ValidateSQL(ctx context.Context, question, sqlText, userID string) ([]models.ValidationResult, error)
}

type queryPipeline struct {
	analyzer      BusinessContextAnalyzer
	retriever     SchemaRetriever
	assembler     ContextAssembler
	generator     SQLGenerator
	validator     *sqlValidator
	rules         []models.BusinessRule
	examples      []models.QueryExample
	traces        audit.TraceWriter
	maxAttempts   int
	defaultBudget int
	logger        *zap.Logger
}

// NewQueryPipeline wires the pipeline stages together. explainer may be nil
// when no sandbox is configured; the dry-run layer then reports itself
// skipped.
func NewQueryPipeline(
	analyzer BusinessContextAnalyzer,
	retriever SchemaRetriever,
	assembler ContextAssembler,
	generator SQLGenerator,
	explainer datasource.Explainer,
	auditor *audit.SecurityAuditor,
	traces audit.TraceWriter,
	rules []models.BusinessRule,
	examples []models.QueryExample,
	cfg *config.Config,
	logger *zap.Logger,
) QueryPipeline {
	layers := newValidationLayers(
		explainer,
		time.Duration(cfg.Sandbox.ExplainTimeoutSeconds)*time.Second,
		cfg.Pipeline.MaxEstimatedRows,
		cfg.Pipeline.RequireDryRun,
		auditor,
		logger,
	)
	return &queryPipeline{
		analyzer:      analyzer,
		retriever:     retriever,
		assembler:     assembler,
		generator:     generator,
		validator:     newSQLValidator(layers, logger),
		rules:         rules,
		examples:      examples,
		traces:        traces,
		maxAttempts:   cfg.Pipeline.MaxCorrectionAttempts + 1,
		defaultBudget: cfg.Retrieval.TokenBudget,
		logger:        logger.Named("pipeline"),
	}
}

// ProcessQuery runs analysis, retrieval, assembly and the bounded
// generate-validate-correct loop. A trace is written on every exit path.
func (p *queryPipeline) ProcessQuery(ctx context.Context, question, userID string, budgetCfg *BudgetConfig) (*models.PipelineResult, error) {
	start := time.Now()
	result := &models.PipelineResult{Status: models.StatusFailed}
	var stages []audit.StageTiming

	finish := func(err error) (*models.PipelineResult, error) {
		result.ElapsedMs = time.Since(start).Milliseconds()
		p.writeTrace(ctx, question, userID, result, stages)
		return result, err
	}

	maxTokens := p.defaultBudget
	if budgetCfg != nil && budgetCfg.MaxTotalTokens > 0 {
		maxTokens = budgetCfg.MaxTotalTokens
	}
	budget := models.NewTokenBudget(maxTokens)

	stageStart := time.Now()
	profile, err := p.analyzer.Analyze(ctx, question, userID)
	stages = append(stages, stageTiming("analysis", stageStart, err))
	if err != nil {
		// No profile means no request ID yet; mint one so the trace is
		// still addressable.
		result.RequestID = uuid.New()
		if wasCancelled(ctx, err) {
			result.Status = models.StatusCancelled
		}
		return finish(apperrors.NewStageError("analysis", err))
	}
	result.RequestID = profile.RequestID
	result.Profile = profile

	stageStart = time.Now()
	selection, err := p.retriever.Retrieve(ctx, profile, budget)
	stages = append(stages, stageTiming("retrieval", stageStart, err))
	if err != nil {
		switch {
		case wasCancelled(ctx, err):
			result.Status = models.StatusCancelled
		case errors.Is(err, apperrors.ErrNoRelevantSchema):
			result.Status = models.StatusNoRelevantSchema
		}
		return finish(apperrors.NewStageError("retrieval", err))
	}
	result.Selection = selection

	stageStart = time.Now()
	pctx, err := p.assembler.Assemble(profile, selection, p.rules, p.examples, budget)
	stages = append(stages, stageTiming("assembly", stageStart, err))
	if err != nil {
		if wasCancelled(ctx, err) {
			result.Status = models.StatusCancelled
		}
		return finish(apperrors.NewStageError("assembly", err))
	}

	return finish(p.generateAndValidate(ctx, profile, selection, pctx, result, &stages))
}

// ValidateSQL analyzes the question, retrieves the schema context, and runs
// the layers over the supplied SQL. Nothing is generated and no trace is
// written; security findings still reach the audit log through the layers.
func (p *queryPipeline) ValidateSQL(ctx context.Context, question, sqlText, userID string) ([]models.ValidationResult, error) {
	profile, err := p.analyzer.Analyze(ctx, question, userID)
	if err != nil {
		return nil, apperrors.NewStageError("analysis", err)
	}

	selection, err := p.retriever.Retrieve(ctx, profile, models.NewTokenBudget(p.defaultBudget))
	if err != nil {
		return nil, apperrors.NewStageError("retrieval", err)
	}

	vctx := &validationContext{SQL: sqlText, Profile: profile, Selection: selection, Rules: p.rules}
	return p.validator.ValidateAll(ctx, vctx), nil
}

// generateAndValidate runs the bounded correction loop. Every attempt is
// validated through all layers in order; validated SQL ends the loop, a
// security failure ends the question.
func (p *queryPipeline) generateAndValidate(
	ctx context.Context,
	profile *models.BusinessContextProfile,
	selection *models.SchemaSelection,
	pctx *models.PromptContext,
	result *models.PipelineResult,
	stages *[]audit.StageTiming,
) error {
	vctx := &validationContext{Profile: profile, Selection: selection, Rules: p.rules}

	var prior *models.GeneratedSQL
	var priorResults []models.ValidationResult

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		stageStart := time.Now()
		var generated *models.GeneratedSQL
		var usage models.TokenUsage
		var err error
		if attempt == 1 {
			generated, usage, err = p.generator.Generate(ctx, pctx)
		} else {
			generated, usage, err = p.generator.Correct(ctx, pctx, prior, failedResults(priorResults))
		}
		*stages = append(*stages, stageTiming("generation", stageStart, err))
		result.Usage.Add(usage)
		if err != nil {
			if wasCancelled(ctx, err) {
				result.Status = models.StatusCancelled
			}
			return apperrors.NewStageError("generation", err)
		}

		stageStart = time.Now()
		vctx.SQL = generated.Text
		results := p.validator.ValidateAll(ctx, vctx)
		*stages = append(*stages, stageTiming("validation", stageStart, nil))
		result.Issues = collectIssues(results)

		if attempt > 1 {
			result.Attempts = append(result.Attempts, models.CorrectionAttempt{
				Attempt:          attempt,
				PriorSQL:         prior.Text,
				Issues:           collectIssues(failedResults(priorResults)),
				CorrectedSQL:     generated.Text,
				ImprovementScore: meanScore(results) - meanScore(priorResults),
			})
		}

		if allPassed(results) {
			result.Status = models.StatusSucceeded
			result.SQL = generated
			result.Confidence = resultConfidence(profile, results)
			p.logger.Info("Query processed",
				zap.String("request_id", result.RequestID.String()),
				zap.Int("attempt", attempt),
				zap.Float64("confidence", result.Confidence))
			return nil
		}

		if failure := securityFailure(results); failure != nil {
			return apperrors.NewStageError("validation", &apperrors.SecurityViolationError{
				Layer:  string(models.LayerSecurity),
				Issues: issueMessages(failure.Issues),
			})
		}

		if err := ctx.Err(); err != nil {
			result.Status = models.StatusCancelled
			return apperrors.NewStageError("validation", err)
		}

		if !hasCorrectableIssue(results) {
			return apperrors.NewStageError("validation",
				fmt.Errorf("validation failed with no correctable issues"))
		}

		prior = generated
		priorResults = results
	}

	return apperrors.NewStageError("validation",
		fmt.Errorf("%w after %d attempts", apperrors.ErrAttemptsExhausted, p.maxAttempts))
}

// resultConfidence blends how well the question was understood with how
// cleanly the SQL validated.
func resultConfidence(profile *models.BusinessContextProfile, results []models.ValidationResult) float64 {
	return (profile.OverallConfidence + meanScore(results)) / 2
}

func stageTiming(stage string, start time.Time, err error) audit.StageTiming {
	return audit.StageTiming{
		Stage:      stage,
		DurationMs: time.Since(start).Milliseconds(),
		Failed:     err != nil,
	}
}

func wasCancelled(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// writeTrace records the run for audit. The write must survive a cancelled
// request context, so it detaches from ctx's deadline while keeping its
// values.
func (p *queryPipeline) writeTrace(ctx context.Context, question, userID string, result *models.PipelineResult, stages []audit.StageTiming) {
	attempts := 0
	for _, s := range stages {
		if s.Stage == "generation" {
			attempts++
		}
	}

	trace := &audit.QueryTrace{
		RequestID:  result.RequestID,
		UserID:     userID,
		Question:   question,
		Status:     result.Status,
		Confidence: result.Confidence,
		Attempts:   attempts,
		Issues:     result.Issues,
		Stages:     stages,
		Usage:      result.Usage,
		ElapsedMs:  result.ElapsedMs,
		CreatedAt:  time.Now().UTC(),
	}
	if result.SQL != nil {
		trace.SQL = result.SQL.Text
	}

	if err := p.traces.WriteTrace(context.WithoutCancel(ctx), trace); err != nil {
		p.logger.Warn("Failed to write query trace",
			zap.String("request_id", result.RequestID.String()),
			zap.Error(err))
	}
}
