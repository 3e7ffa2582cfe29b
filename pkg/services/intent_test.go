package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ekaya-inc/text2sql/pkg/models"
)

func TestIntentClassifier(t *testing.T) {
	c := NewIntentClassifier()

	tests := []struct {
		name       string
		question   string
		wantIntent models.QueryIntent
	}{
		{"counting question", "How many players deposited yesterday?", models.IntentAggregation},
		{"amount question", "How much did German players deposit last month?", models.IntentAggregation},
		{"ranking question", "Top 10 depositors yesterday", models.IntentAnalytical},
		{"comparison question", "Compare deposits vs withdrawals", models.IntentComparison},
		{"trend question", "Show deposit trend over time", models.IntentTrend},
		{"listing question", "List pending withdrawals", models.IntentDetail},
		{"operational question", "Which withdrawals are stuck in the queue?", models.IntentOperational},
		{"exploratory question", "What tables hold player data?", models.IntentExploratory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent, confidence := c.Classify(tt.question)
			assert.Equal(t, tt.wantIntent, intent)
			assert.Greater(t, confidence, 0.0)
			assert.LessOrEqual(t, confidence, 1.0)
		})
	}
}

func TestIntentClassifierConfidence(t *testing.T) {
	c := NewIntentClassifier()

	t.Run("single intent scores full confidence", func(t *testing.T) {
		intent, confidence := c.Classify("How many players deposited yesterday?")
		assert.Equal(t, models.IntentAggregation, intent)
		assert.InDelta(t, 1.0, confidence, 0.001)
	})

	t.Run("mixed signals dilute confidence", func(t *testing.T) {
		// "total" votes aggregation at 0.9, "by month" votes trend at 0.8.
		intent, confidence := c.Classify("Total deposits by month")
		assert.Equal(t, models.IntentAggregation, intent)
		assert.InDelta(t, 0.9/1.7, confidence, 0.001)
	})

	t.Run("no match falls back to detail", func(t *testing.T) {
		intent, confidence := c.Classify("Deposits for Germany")
		assert.Equal(t, models.IntentDetail, intent)
		assert.Equal(t, fallbackIntentConfidence, confidence)
	})
}

func TestIntentClassifierWordBoundaries(t *testing.T) {
	c := NewIntentClassifier()

	// "country" must not fire the "count of" pattern.
	intent, confidence := c.Classify("Country reports")
	assert.Equal(t, models.IntentDetail, intent)
	assert.Equal(t, fallbackIntentConfidence, confidence)
}

func TestIntentClassifierTieBreaks(t *testing.T) {
	c := NewIntentClassifier()

	t.Run("equal scores prefer the longer matched phrase", func(t *testing.T) {
		// "top" and "count of" both weigh 0.9; "count of" is the longer match.
		intent, _ := c.Classify("Top count of deposits")
		assert.Equal(t, models.IntentAggregation, intent)
	})

	t.Run("deterministic across calls", func(t *testing.T) {
		first, firstConf := c.Classify("Compare daily deposits vs monthly totals")
		for i := 0; i < 5; i++ {
			intent, confidence := c.Classify("Compare daily deposits vs monthly totals")
			assert.Equal(t, first, intent)
			assert.Equal(t, firstConf, confidence)
		}
	})
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain words", "total deposits", " total deposits "},
		{"punctuation flattens", "How many players, by country?", " how many players by country "},
		{"runs of separators collapse", "top-10  (by GGR)", " top 10 by ggr "},
		{"empty", "", " "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeText(tt.in))
		})
	}
}
