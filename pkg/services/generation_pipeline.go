package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/text2sql/pkg/apperrors"
	"github.com/ekaya-inc/text2sql/pkg/llm"
	"github.com/ekaya-inc/text2sql/pkg/logging"
	"github.com/ekaya-inc/text2sql/pkg/models"
	"github.com/ekaya-inc/text2sql/pkg/prompts"
	"github.com/ekaya-inc/text2sql/pkg/retry"
)

// SQLGenerator turns assembled context into SQL through the model client
// and repairs failed attempts with validator feedback.
type SQLGenerator interface {
	Generate(ctx context.Context, pctx *models.PromptContext) (*models.GeneratedSQL, models.TokenUsage, error)
	Correct(ctx context.Context, pctx *models.PromptContext, prior *models.GeneratedSQL, failed []models.ValidationResult) (*models.GeneratedSQL, models.TokenUsage, error)
}

type sqlGenerator struct {
	client      llm.LLMClient
	engine      string
	temperature float64
	retryCfg    *retry.Config
	logger      *zap.Logger
}

// NewSQLGenerator creates the generator. engine selects the SQL dialect the
// prompt asks for ("postgres", "mssql").
func NewSQLGenerator(client llm.LLMClient, engine string, temperature float64, logger *zap.Logger) SQLGenerator {
	return &sqlGenerator{
		client:      client,
		engine:      engine,
		temperature: temperature,
		retryCfg:    retry.DefaultConfig(),
		logger:      logger.Named("sql_generator"),
	}
}

// Generate produces the first attempt for an assembled context.
func (g *sqlGenerator) Generate(ctx context.Context, pctx *models.PromptContext) (*models.GeneratedSQL, models.TokenUsage, error) {
	return g.complete(ctx, prompts.BuildGenerationPrompt(pctx), 1)
}

// Correct produces the next attempt from the prior SQL and the validation
// results that failed it.
func (g *sqlGenerator) Correct(ctx context.Context, pctx *models.PromptContext, prior *models.GeneratedSQL, failed []models.ValidationResult) (*models.GeneratedSQL, models.TokenUsage, error) {
	return g.complete(ctx, prompts.BuildCorrectionPrompt(pctx, prior.Text, failed), prior.Attempt+1)
}

// complete sends the prompt, retrying transient provider failures, and
// extracts bare SQL from the response. The client's circuit breaker handles
// fail-fast when the provider is down; an open breaker surfaces here as
// ErrModelUnavailable.
func (g *sqlGenerator) complete(ctx context.Context, prompt string, attempt int) (*models.GeneratedSQL, models.TokenUsage, error) {
	system := prompts.BuildGenerationSystemMessage(g.engine)

	var response *llm.GenerateResponseResult
	err := retry.DoIfRetryable(ctx, g.retryCfg, func() error {
		var callErr error
		response, callErr = g.client.GenerateResponse(ctx, prompt, system, g.temperature)
		return callErr
	})
	if err != nil {
		if llm.IsRetryable(err) || llm.GetErrorType(err) == llm.ErrorTypeEndpoint {
			err = fmt.Errorf("%w: %v", apperrors.ErrModelUnavailable, err)
		}
		return nil, models.TokenUsage{}, fmt.Errorf("failed to generate SQL (attempt %d): %w", attempt, err)
	}

	usage := models.TokenUsage{
		PromptTokens:     response.PromptTokens,
		CompletionTokens: response.CompletionTokens,
		TotalTokens:      response.TotalTokens,
	}

	statement := strings.TrimSpace(llm.ExtractSQL(response.Content))
	if statement == "" {
		return nil, usage, fmt.Errorf("model returned no SQL on attempt %d", attempt)
	}

	g.logger.Debug("Generated SQL",
		zap.Int("attempt", attempt),
		zap.String("sql", logging.SanitizeQuery(statement)))

	return &models.GeneratedSQL{
		Text:    statement,
		Attempt: attempt,
		Model:   g.client.GetModel(),
	}, usage, nil
}
