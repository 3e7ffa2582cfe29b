package services

import (
	"strings"

	"github.com/ekaya-inc/text2sql/pkg/models"
)

// intentPattern is one weighted phrase vote for an intent.
type intentPattern struct {
	intent models.QueryIntent
	phrase string
	weight float64
}

// defaultIntentPatterns is the closed vocabulary for intent classification.
// Phrases match on word boundaries against the normalized question, so
// "count of" never fires inside "country". Weights express how strongly a
// phrase signals the intent.
var defaultIntentPatterns = []intentPattern{
	{models.IntentAggregation, "how many", 1.0},
	{models.IntentAggregation, "how much", 1.0},
	{models.IntentAggregation, "total", 0.9},
	{models.IntentAggregation, "sum of", 0.9},
	{models.IntentAggregation, "count of", 0.9},
	{models.IntentAggregation, "number of", 0.9},
	{models.IntentAggregation, "average", 0.8},
	{models.IntentAggregation, "avg", 0.8},

	{models.IntentComparison, "compare", 1.0},
	{models.IntentComparison, "compared to", 1.0},
	{models.IntentComparison, "difference between", 1.0},
	{models.IntentComparison, "versus", 1.0},
	{models.IntentComparison, "vs", 0.9},

	{models.IntentTrend, "trend", 1.0},
	{models.IntentTrend, "over time", 1.0},
	{models.IntentTrend, "per day", 0.8},
	{models.IntentTrend, "per week", 0.8},
	{models.IntentTrend, "per month", 0.8},
	{models.IntentTrend, "by day", 0.8},
	{models.IntentTrend, "by week", 0.8},
	{models.IntentTrend, "by month", 0.8},
	{models.IntentTrend, "daily", 0.7},
	{models.IntentTrend, "weekly", 0.7},
	{models.IntentTrend, "monthly", 0.7},
	{models.IntentTrend, "growth", 0.7},

	{models.IntentAnalytical, "top", 0.9},
	{models.IntentAnalytical, "rank", 0.9},
	{models.IntentAnalytical, "ranking", 0.9},
	{models.IntentAnalytical, "highest", 0.8},
	{models.IntentAnalytical, "lowest", 0.8},
	{models.IntentAnalytical, "best", 0.7},
	{models.IntentAnalytical, "worst", 0.7},
	{models.IntentAnalytical, "most", 0.6},
	{models.IntentAnalytical, "least", 0.6},

	{models.IntentDetail, "details", 0.9},
	{models.IntentDetail, "list", 0.8},
	{models.IntentDetail, "which", 0.5},
	{models.IntentDetail, "show", 0.4},

	{models.IntentOperational, "status", 0.8},
	{models.IntentOperational, "in progress", 0.8},
	{models.IntentOperational, "pending", 0.7},
	{models.IntentOperational, "queue", 0.7},
	{models.IntentOperational, "stuck", 0.7},

	{models.IntentExploratory, "what tables", 1.0},
	{models.IntentExploratory, "what data", 1.0},
	{models.IntentExploratory, "explore", 0.9},
	{models.IntentExploratory, "what kind of", 0.8},
}

// fallbackIntentConfidence is reported when no pattern matches and the
// question defaults to a detail listing.
const fallbackIntentConfidence = 0.25

// IntentClassifier assigns one of the closed query intents by weighted
// phrase scoring. Deterministic: the same question always classifies the
// same way.
type IntentClassifier struct {
	patterns []intentPattern
}

// NewIntentClassifier creates a classifier with the default pattern table.
func NewIntentClassifier() *IntentClassifier {
	return &IntentClassifier{patterns: defaultIntentPatterns}
}

// Classify scores every pattern against the question and returns the best
// intent with a confidence in (0, 1]. Confidence is the winner's share of
// all matched weight, so a question that also votes for other intents
// classifies less confidently. Ties break to the intent with the longest
// matched phrase, then to declared intent order.
func (c *IntentClassifier) Classify(question string) (models.QueryIntent, float64) {
	normalized := normalizeText(question)

	scores := make(map[models.QueryIntent]float64)
	longest := make(map[models.QueryIntent]int)
	var total float64
	for _, p := range c.patterns {
		if !containsPhrase(normalized, p.phrase) {
			continue
		}
		scores[p.intent] += p.weight
		total += p.weight
		if len(p.phrase) > longest[p.intent] {
			longest[p.intent] = len(p.phrase)
		}
	}

	if len(scores) == 0 {
		return models.IntentDetail, fallbackIntentConfidence
	}

	var best models.QueryIntent
	for _, intent := range models.ValidQueryIntents {
		s, matched := scores[intent]
		if !matched {
			continue
		}
		if best == "" || s > scores[best] || (s == scores[best] && longest[intent] > longest[best]) {
			best = intent
		}
	}

	return best, scores[best] / total
}

// normalizeText lowercases the text and flattens everything that is not a
// letter or digit to single spaces, with one leading and one trailing space
// so phrase matching can anchor on word boundaries.
func normalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte(' ')
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			b.WriteByte(' ')
			lastSpace = true
		}
	}
	if !lastSpace {
		b.WriteByte(' ')
	}
	return b.String()
}

// containsPhrase reports whether phrase occurs on word boundaries in text
// already normalized by normalizeText.
func containsPhrase(normalized, phrase string) bool {
	return strings.Contains(normalized, " "+phrase+" ")
}
