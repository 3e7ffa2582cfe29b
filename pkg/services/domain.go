package services

import (
	"strings"

	"github.com/ekaya-inc/text2sql/pkg/catalog"
	"github.com/ekaya-inc/text2sql/pkg/models"
)

// DomainGeneral is the fallback domain when no configured domain clears the
// scoring floor. It never narrows retrieval.
const DomainGeneral = "general"

const (
	// domainKeywordWeight is the score contributed by each keyword match.
	domainKeywordWeight = 1.0
	// domainEntityWeight is the score contributed by each mapped entity
	// whose table is tagged with the domain.
	domainEntityWeight = 1.0
	// domainScoreFloor is the minimum combined score before a domain beats
	// the general fallback. A single keyword match clears it.
	domainScoreFloor = 1.0
	// generalDomainConfidence is the confidence of the fallback.
	generalDomainConfidence = 0.2
)

// DomainClassifier scores configured business domains against a question
// and its linked entities.
type DomainClassifier struct {
	domains []models.DomainDefinition
	snap    *catalog.Snapshot
}

// NewDomainClassifier creates a classifier over the configured domains.
func NewDomainClassifier(domains []models.DomainDefinition, snap *catalog.Snapshot) *DomainClassifier {
	return &DomainClassifier{domains: domains, snap: snap}
}

// Classify picks the domain with the highest combined keyword and entity
// score. Keywords match on word boundaries; each mapped entity whose table
// carries the domain tag also votes. Ties break to the lower declared
// priority, then to name order, so classification never depends on
// configuration file ordering.
func (c *DomainClassifier) Classify(question string, entities []models.BusinessEntity) models.DomainClassification {
	normalized := normalizeText(question)

	var best *models.DomainDefinition
	var bestScore float64
	for i := range c.domains {
		def := &c.domains[i]
		score := c.score(def, normalized, entities)
		if score <= 0 {
			continue
		}
		if best == nil || score > bestScore ||
			(score == bestScore && (def.Priority < best.Priority ||
				(def.Priority == best.Priority && def.Name < best.Name))) {
			best = def
			bestScore = score
		}
	}

	if best == nil || bestScore < domainScoreFloor {
		return models.DomainClassification{Name: DomainGeneral, Confidence: generalDomainConfidence}
	}

	// Saturating confidence: one match is a coin flip better than the
	// fallback, several matches approach certainty.
	return models.DomainClassification{Name: best.Name, Confidence: bestScore / (bestScore + 1)}
}

func (c *DomainClassifier) score(def *models.DomainDefinition, normalized string, entities []models.BusinessEntity) float64 {
	var score float64
	for _, kw := range def.Keywords {
		if containsPhrase(normalized, strings.ToLower(kw)) {
			score += domainKeywordWeight
		}
	}
	for i := range entities {
		if !entities[i].IsMapped() {
			continue
		}
		table := c.snap.Table(entities[i].MappedTable)
		if table == nil {
			continue
		}
		for _, d := range table.Domains {
			if strings.EqualFold(d, def.Name) {
				score += domainEntityWeight
				break
			}
		}
	}
	return score
}
