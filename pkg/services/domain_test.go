package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ekaya-inc/text2sql/pkg/models"
)

func TestDomainClassifierKeywords(t *testing.T) {
	c := NewDomainClassifier(testDomains(), testSnapshot())

	tests := []struct {
		name       string
		question   string
		wantDomain string
	}{
		{"payments keyword", "Total deposits last month", "payments"},
		{"gaming keyword", "How many game rounds were played?", "gaming"},
		{"promotions keyword", "Cost of each bonus campaign", "promotions"},
		{"player keyword", "Players from Brazil", "player_activity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.question, nil)
			assert.Equal(t, tt.wantDomain, got.Name)
			assert.Greater(t, got.Confidence, generalDomainConfidence)
		})
	}
}

func TestDomainClassifierFallback(t *testing.T) {
	c := NewDomainClassifier(testDomains(), testSnapshot())

	got := c.Classify("Show me everything", nil)
	assert.Equal(t, DomainGeneral, got.Name)
	assert.Equal(t, generalDomainConfidence, got.Confidence)
}

func TestDomainClassifierEntityVotes(t *testing.T) {
	c := NewDomainClassifier(testDomains(), testSnapshot())

	entities := []models.BusinessEntity{
		{Name: "Germany", Type: models.EntityTypeValue, MappedTable: "public.players", MappedColumn: "country", LiteralValue: "DE", Confidence: 1.0},
	}

	// No keyword matches, but the mapped entity's table is tagged
	// player_activity and that vote clears the floor.
	got := c.Classify("Anything from Germany?", entities)
	assert.Equal(t, "player_activity", got.Name)
	assert.InDelta(t, 0.5, got.Confidence, 0.001)
}

func TestDomainClassifierTieBreaksOnPriority(t *testing.T) {
	c := NewDomainClassifier(testDomains(), testSnapshot())

	// One keyword each for payments (priority 1) and gaming (priority 3).
	got := c.Classify("Deposits per game", nil)
	assert.Equal(t, "payments", got.Name)
}

func TestDomainClassifierConfidenceSaturates(t *testing.T) {
	c := NewDomainClassifier(testDomains(), testSnapshot())

	one := c.Classify("Total deposits", nil)
	two := c.Classify("Deposits and withdrawal revenue", nil)

	assert.Equal(t, "payments", one.Name)
	assert.Equal(t, "payments", two.Name)
	assert.InDelta(t, 0.5, one.Confidence, 0.001)
	assert.Greater(t, two.Confidence, one.Confidence)
	assert.Less(t, two.Confidence, 1.0)
}

func TestDomainClassifierUnmappedEntitiesDoNotVote(t *testing.T) {
	c := NewDomainClassifier(testDomains(), testSnapshot())

	entities := []models.BusinessEntity{
		{Name: "whales", Type: models.EntityTypeDimension, Confidence: 0.3},
	}

	got := c.Classify("Show me the whales", entities)
	assert.Equal(t, DomainGeneral, got.Name)
}
