package services

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/text2sql/pkg/apperrors"
	"github.com/ekaya-inc/text2sql/pkg/models"
)

func TestBusinessContextAnalyzerRejectsBadInput(t *testing.T) {
	a := NewBusinessContextAnalyzer(testSnapshot(), testDictionary(), testDomains(), testConfig(), testClock(), testLogger())
	ctx := context.Background()

	t.Run("empty question", func(t *testing.T) {
		profile, err := a.Analyze(ctx, "", "analyst-1")
		assert.Nil(t, profile)
		assert.ErrorIs(t, err, apperrors.ErrEmptyQuestion)
	})

	t.Run("whitespace only", func(t *testing.T) {
		profile, err := a.Analyze(ctx, "   \t  ", "analyst-1")
		assert.Nil(t, profile)
		assert.ErrorIs(t, err, apperrors.ErrEmptyQuestion)
	})

	t.Run("oversized question", func(t *testing.T) {
		profile, err := a.Analyze(ctx, strings.Repeat("a", 2001), "analyst-1")
		assert.Nil(t, profile)
		assert.ErrorIs(t, err, apperrors.ErrQuestionTooLong)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		profile, err := a.Analyze(cancelled, "Total deposits", "analyst-1")
		assert.Nil(t, profile)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestBusinessContextAnalyzerProfile(t *testing.T) {
	a := NewBusinessContextAnalyzer(testSnapshot(), testDictionary(), testDomains(), testConfig(), testClock(), testLogger())

	profile, err := a.Analyze(context.Background(), "How many depositors from Germany deposited last month?", "analyst-1")
	require.NoError(t, err)
	require.NotNil(t, profile)

	assert.NotEqual(t, uuid.Nil, profile.RequestID)
	assert.Equal(t, "How many depositors from Germany deposited last month?", profile.RawQuestion)
	assert.Equal(t, "analyst-1", profile.UserID)
	assert.Equal(t, models.IntentAggregation, profile.Intent)
	assert.Equal(t, "payments", profile.Domain.Name)

	depositor := findEntity(t, profile.Entities, "depositor")
	assert.Equal(t, "public.deposits", depositor.MappedTable)
	germany := findEntity(t, profile.Entities, "Germany")
	assert.Equal(t, "DE", germany.LiteralValue)

	require.NotNil(t, profile.TimeContext)
	assert.Equal(t, date(2026, 7, 1), profile.TimeContext.StartDate)
	assert.Equal(t, date(2026, 7, 31), profile.TimeContext.EndDate)
	assert.False(t, profile.TimeAmbiguous)

	assert.Greater(t, profile.OverallConfidence, 0.8)
	assert.LessOrEqual(t, profile.OverallConfidence, 1.0)
}

func TestBusinessContextAnalyzerTimeHandling(t *testing.T) {
	t.Run("no time reference", func(t *testing.T) {
		a := NewBusinessContextAnalyzer(testSnapshot(), testDictionary(), testDomains(), testConfig(), testClock(), testLogger())

		profile, err := a.Analyze(context.Background(), "Total deposits by country", "analyst-1")
		require.NoError(t, err)
		assert.Nil(t, profile.TimeContext)
		assert.False(t, profile.TimeAmbiguous)
	})

	t.Run("ambiguous time is flagged not guessed", func(t *testing.T) {
		a := NewBusinessContextAnalyzer(testSnapshot(), testDictionary(), testDomains(), testConfig(), testClock(), testLogger())

		profile, err := a.Analyze(context.Background(), "Which players deposited recently?", "analyst-1")
		require.NoError(t, err)
		assert.Nil(t, profile.TimeContext)
		assert.True(t, profile.TimeAmbiguous)
	})

	t.Run("configured default window substitutes and stays flagged", func(t *testing.T) {
		cfg := testConfig()
		cfg.Analysis.DefaultWindowDays = 30
		a := NewBusinessContextAnalyzer(testSnapshot(), testDictionary(), testDomains(), cfg, testClock(), testLogger())

		profile, err := a.Analyze(context.Background(), "Which players deposited recently?", "analyst-1")
		require.NoError(t, err)
		require.NotNil(t, profile.TimeContext)
		assert.Equal(t, date(2026, 7, 20), profile.TimeContext.StartDate)
		assert.Equal(t, date(2026, 8, 18), profile.TimeContext.EndDate)
		assert.Equal(t, "assumed last 30 days", profile.TimeContext.Expression)
		assert.True(t, profile.TimeAmbiguous, "substitution must stay visible downstream")
	})
}

func TestBusinessContextAnalyzerConfidence(t *testing.T) {
	a := NewBusinessContextAnalyzer(testSnapshot(), testDictionary(), testDomains(), testConfig(), testClock(), testLogger())
	ctx := context.Background()

	t.Run("entity term only counts when entities exist", func(t *testing.T) {
		// No linkable terms: confidence is intent and domain only.
		bare, err := a.Analyze(ctx, "What is going on?", "analyst-1")
		require.NoError(t, err)
		assert.Empty(t, bare.Entities)
		assert.Greater(t, bare.OverallConfidence, 0.0)

		rich, err := a.Analyze(ctx, "How many depositors from Germany?", "analyst-1")
		require.NoError(t, err)
		assert.NotEmpty(t, rich.Entities)
		assert.Greater(t, rich.OverallConfidence, bare.OverallConfidence)
	})

	t.Run("fresh request id per call", func(t *testing.T) {
		first, err := a.Analyze(ctx, "Total deposits", "analyst-1")
		require.NoError(t, err)
		second, err := a.Analyze(ctx, "Total deposits", "analyst-1")
		require.NoError(t, err)
		assert.NotEqual(t, first.RequestID, second.RequestID)
	})
}

func TestTokenizeQuestion(t *testing.T) {
	assert.Equal(t,
		[]string{"top", "10", "depositors", "yesterday", "from", "uk"},
		tokenizeQuestion("Top-10 depositors yesterday, from UK!"))
	assert.Empty(t, tokenizeQuestion("???"))
}
