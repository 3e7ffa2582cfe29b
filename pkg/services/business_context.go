package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/text2sql/pkg/apperrors"
	"github.com/ekaya-inc/text2sql/pkg/catalog"
	"github.com/ekaya-inc/text2sql/pkg/config"
	"github.com/ekaya-inc/text2sql/pkg/dictionary"
	"github.com/ekaya-inc/text2sql/pkg/logging"
	"github.com/ekaya-inc/text2sql/pkg/models"
)

// BusinessContextAnalyzer interprets a raw question into an immutable
// profile: intent, domain, linked entities and time scope.
type BusinessContextAnalyzer interface {
	Analyze(ctx context.Context, question, userID string) (*models.BusinessContextProfile, error)
}

type businessContextAnalyzer struct {
	snap              *catalog.Snapshot
	intents           *IntentClassifier
	domains           *DomainClassifier
	linker            *EntityLinker
	times             *TimeResolver
	cfg               *config.AnalysisConfig
	maxQuestionLength int
	now               func() time.Time
	logger            *zap.Logger
}

// NewBusinessContextAnalyzer wires up the analysis stage. The now function
// pins the clock for time resolution; nil means the wall clock.
func NewBusinessContextAnalyzer(
	snap *catalog.Snapshot,
	dict *dictionary.Dictionary,
	domains []models.DomainDefinition,
	cfg *config.Config,
	now func() time.Time,
	logger *zap.Logger,
) BusinessContextAnalyzer {
	if now == nil {
		now = time.Now
	}
	return &businessContextAnalyzer{
		snap:              snap,
		intents:           NewIntentClassifier(),
		domains:           NewDomainClassifier(domains, snap),
		linker:            NewEntityLinker(dict, cfg.Analysis.FuzzyThreshold, logger),
		times:             NewTimeResolver(now),
		cfg:               &cfg.Analysis,
		maxQuestionLength: cfg.Pipeline.MaxQuestionLength,
		now:               now,
		logger:            logger.Named("business_context"),
	}
}

// Analyze builds the profile for one question. It rejects empty and
// oversized questions before any further work. Analysis itself never calls
// the model; everything here is deterministic.
func (a *businessContextAnalyzer) Analyze(ctx context.Context, question, userID string) (*models.BusinessContextProfile, error) {
	trimmed := strings.TrimSpace(question)
	if trimmed == "" {
		return nil, &apperrors.AnalysisError{Reason: "question is empty", Cause: apperrors.ErrEmptyQuestion}
	}
	if a.maxQuestionLength > 0 && len(trimmed) > a.maxQuestionLength {
		return nil, &apperrors.AnalysisError{
			Reason: fmt.Sprintf("question is %d characters, limit is %d", len(trimmed), a.maxQuestionLength),
			Cause:  apperrors.ErrQuestionTooLong,
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tokens := tokenizeQuestion(trimmed)
	entities := a.linker.Link(tokens, a.snap)
	intent, intentConfidence := a.intents.Classify(trimmed)
	domain := a.domains.Classify(trimmed, entities)
	timeContext, ambiguous := a.times.Resolve(trimmed)

	if timeContext == nil && ambiguous && a.cfg.DefaultWindowDays > 0 {
		timeContext = a.defaultWindow()
	}

	profile := &models.BusinessContextProfile{
		RequestID:     uuid.New(),
		RawQuestion:   trimmed,
		UserID:        userID,
		Intent:        intent,
		Domain:        domain,
		Entities:      entities,
		TimeContext:   timeContext,
		TimeAmbiguous: ambiguous,
	}
	profile.OverallConfidence = a.overallConfidence(intentConfidence, domain.Confidence, entities)

	a.logger.Info("Analyzed question",
		zap.String("request_id", profile.RequestID.String()),
		zap.String("question", logging.SanitizeQuestion(trimmed)),
		zap.String("intent", string(intent)),
		zap.String("domain", domain.Name),
		zap.Int("entities", len(entities)),
		zap.Bool("time_resolved", timeContext != nil),
		zap.Bool("time_ambiguous", ambiguous),
		zap.Float64("confidence", profile.OverallConfidence))

	return profile, nil
}

// defaultWindow is the configured stand-in for ambiguous time expressions.
// The expression names the assumption so it is visible in the prompt and in
// the result, and TimeAmbiguous stays set on the profile.
func (a *businessContextAnalyzer) defaultWindow() *models.TimeContext {
	today := dateOnly(a.now().UTC())
	return &models.TimeContext{
		StartDate:   today.AddDate(0, 0, -a.cfg.DefaultWindowDays),
		EndDate:     today.AddDate(0, 0, -1),
		Expression:  fmt.Sprintf("assumed last %d days", a.cfg.DefaultWindowDays),
		Granularity: models.GranularityDay,
	}
}

// overallConfidence combines stage confidences with configured weights.
// The entity term only participates when entities were found, so a question
// with no business terms is not punished for having none.
func (a *businessContextAnalyzer) overallConfidence(intentConfidence, domainConfidence float64, entities []models.BusinessEntity) float64 {
	weightedSum := a.cfg.IntentWeight*intentConfidence + a.cfg.DomainWeight*domainConfidence
	totalWeight := a.cfg.IntentWeight + a.cfg.DomainWeight

	if len(entities) > 0 {
		var sum float64
		for i := range entities {
			sum += entities[i].Confidence
		}
		weightedSum += a.cfg.EntityWeight * (sum / float64(len(entities)))
		totalWeight += a.cfg.EntityWeight
	}

	if totalWeight == 0 {
		return 0
	}
	return weightedSum / totalWeight
}

// tokenizeQuestion splits a question into lowercase alphanumeric tokens.
func tokenizeQuestion(question string) []string {
	return strings.Fields(normalizeText(question))
}
