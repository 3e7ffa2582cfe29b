package services

import (
	"strings"

	"github.com/jinzhu/inflection"
	"github.com/xrash/smetrics"
	"go.uber.org/zap"

	"github.com/ekaya-inc/text2sql/pkg/catalog"
	"github.com/ekaya-inc/text2sql/pkg/dictionary"
	"github.com/ekaya-inc/text2sql/pkg/models"
)

const (
	defaultFuzzyThreshold = 0.85

	// Standard Jaro-Winkler parameters: prefix bonus kicks in above 0.7
	// over at most 4 leading characters.
	jaroWinklerBoost      = 0.7
	jaroWinklerPrefixSize = 4

	// fuzzyAmbiguityGap is the minimum score difference before one
	// candidate beats another outright. Anything closer needs grammatical
	// evidence, or the token stays unmapped.
	fuzzyAmbiguityGap = 0.05

	minFuzzyTokenLength = 3
)

// linkerStopwords are tokens that never carry entity meaning. Time words are
// included: the time resolver owns them, and a "month" token fuzzy-matching
// some monthly rollup table would only pollute the profile.
var linkerStopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "of": {}, "in": {}, "on": {}, "for": {},
	"by": {}, "from": {}, "to": {}, "with": {}, "and": {}, "or": {},
	"per": {}, "all": {}, "each": {}, "as": {}, "at": {},
	"show": {}, "me": {}, "list": {}, "give": {}, "get": {},
	"what": {}, "which": {}, "who": {}, "how": {}, "many": {}, "much": {},
	"did": {}, "do": {}, "does": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"top": {}, "last": {}, "this": {}, "that": {}, "these": {}, "those": {},
	"day": {}, "days": {}, "week": {}, "weeks": {}, "month": {}, "months": {},
	"quarter": {}, "quarters": {}, "year": {}, "years": {},
	"yesterday": {}, "today": {}, "recent": {}, "recently": {},
}

// columnPrepositions are tokens that, immediately before an ambiguous
// token, suggest a filter or grouping and therefore a column reading.
var columnPrepositions = map[string]struct{}{
	"from": {}, "in": {}, "by": {}, "for": {}, "with": {}, "per": {}, "where": {},
}

// EntityLinker maps question tokens onto catalog elements. The curated
// dictionary always wins; Jaro-Winkler matching against catalog business
// names fills the gaps. Linking is deterministic: candidates are scanned in
// catalog order and only a strictly better score displaces a match.
type EntityLinker struct {
	dict      *dictionary.Dictionary
	threshold float64
	logger    *zap.Logger
}

// NewEntityLinker creates a linker. threshold is the minimum Jaro-Winkler
// similarity for a fuzzy match; zero or negative selects the default.
func NewEntityLinker(dict *dictionary.Dictionary, threshold float64, logger *zap.Logger) *EntityLinker {
	if threshold <= 0 {
		threshold = defaultFuzzyThreshold
	}
	return &EntityLinker{dict: dict, threshold: threshold, logger: logger.Named("entity_linker")}
}

// fuzzyCandidate is one catalog identifier a token can match against.
type fuzzyCandidate struct {
	text       string // singular lowercase form
	table      string // qualified table name
	column     string // empty for table-level candidates
	entityType models.EntityType
	isCurrency bool
}

// fuzzyMatch is the best candidate found for a token at one level
// (table or column).
type fuzzyMatch struct {
	candidate *fuzzyCandidate
	score     float64
}

// Link resolves question tokens to business entities. Dictionary phrase
// matches come first at full confidence; remaining tokens are fuzzy-matched
// against table and column names. Tokens that stay ambiguous are returned
// unmapped so the prompt can flag them instead of guessing.
func (l *EntityLinker) Link(tokens []string, snap *catalog.Snapshot) []models.BusinessEntity {
	text := strings.Join(tokens, " ")

	var entities []models.BusinessEntity
	seen := make(map[string]struct{})
	covered := make(map[string]struct{})

	for _, term := range l.dict.MatchPhrases(text) {
		entity := term.Entity()
		if _, dup := seen[entity.Name]; dup {
			continue
		}
		seen[entity.Name] = struct{}{}
		entities = append(entities, entity)

		markCovered(covered, text, term.Term)
		for _, alias := range term.Aliases {
			markCovered(covered, text, alias)
		}
	}

	candidates := buildFuzzyCandidates(snap)

	for i, tok := range tokens {
		if _, done := covered[tok]; done {
			continue
		}
		if _, stop := linkerStopwords[tok]; stop {
			continue
		}
		if len(tok) < minFuzzyTokenLength || isNumericToken(tok) {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}

		entity, matched := l.matchToken(tok, prevToken(tokens, i), candidates)
		if !matched {
			continue
		}
		seen[tok] = struct{}{}
		entities = append(entities, entity)
	}

	return entities
}

// matchToken fuzzy-matches one token. The second return is false when the
// token matched nothing at all; an ambiguous token returns an unmapped
// entity with true.
func (l *EntityLinker) matchToken(tok, prev string, candidates []fuzzyCandidate) (models.BusinessEntity, bool) {
	norm := inflection.Singular(tok)
	tokenIsCurrency := isCurrencyIdentifier(tok)

	var bestTable, bestColumn fuzzyMatch
	for i := range candidates {
		c := &candidates[i]
		// Currency tables and columns are only reachable from tokens that
		// themselves talk about currency. Country words in particular must
		// land on the player dimension, never on a currency lookup.
		if c.isCurrency && !tokenIsCurrency {
			continue
		}
		score := smetrics.JaroWinkler(norm, c.text, jaroWinklerBoost, jaroWinklerPrefixSize)
		if score < l.threshold {
			continue
		}
		if c.column == "" {
			if bestTable.candidate == nil || score > bestTable.score {
				bestTable = fuzzyMatch{candidate: c, score: score}
			}
		} else {
			if bestColumn.candidate == nil || score > bestColumn.score {
				bestColumn = fuzzyMatch{candidate: c, score: score}
			}
		}
	}

	switch {
	case bestTable.candidate == nil && bestColumn.candidate == nil:
		return models.BusinessEntity{}, false
	case bestColumn.candidate == nil:
		return entityFromMatch(tok, bestTable), true
	case bestTable.candidate == nil:
		return entityFromMatch(tok, bestColumn), true
	}

	// Both levels matched. A clear score gap decides; otherwise a preceding
	// preposition ("by country", "from uk") reads as a column. Still
	// ambiguous means unmapped: a wrong guess here becomes a wrong join.
	gap := bestTable.score - bestColumn.score
	switch {
	case gap > fuzzyAmbiguityGap:
		return entityFromMatch(tok, bestTable), true
	case gap < -fuzzyAmbiguityGap:
		return entityFromMatch(tok, bestColumn), true
	}
	if _, prep := columnPrepositions[prev]; prep {
		return entityFromMatch(tok, bestColumn), true
	}

	l.logger.Debug("Ambiguous token left unmapped",
		zap.String("token", tok),
		zap.String("table_candidate", bestTable.candidate.table),
		zap.String("column_candidate", bestColumn.candidate.table+"."+bestColumn.candidate.column))

	lower := bestTable.score
	if bestColumn.score < lower {
		lower = bestColumn.score
	}
	return models.BusinessEntity{
		Name:       tok,
		Type:       models.EntityTypeDimension,
		Confidence: lower / 2,
		MatchedBy:  models.MatchSourceCatalogFuzzy,
	}, true
}

func entityFromMatch(tok string, m fuzzyMatch) models.BusinessEntity {
	return models.BusinessEntity{
		Name:         tok,
		Type:         m.candidate.entityType,
		MappedTable:  m.candidate.table,
		MappedColumn: m.candidate.column,
		Confidence:   m.score,
		MatchedBy:    models.MatchSourceCatalogFuzzy,
	}
}

// buildFuzzyCandidates flattens the snapshot into matchable identifiers.
// Key columns are excluded: linking a question word to player_id is never
// what the user meant.
func buildFuzzyCandidates(snap *catalog.Snapshot) []fuzzyCandidate {
	var out []fuzzyCandidate
	for _, table := range snap.Tables() {
		qualified := table.QualifiedName()
		tableIsCurrency := isCurrencyIdentifier(table.TableName)

		for _, name := range identifierForms(table.TableName, table.BusinessName) {
			out = append(out, fuzzyCandidate{
				text:       name,
				table:      qualified,
				entityType: models.EntityTypeTable,
				isCurrency: tableIsCurrency || isCurrencyIdentifier(name),
			})
		}

		for _, col := range table.Columns {
			if col.IsPrimaryKey || col.IsForeignKey {
				continue
			}
			entityType := models.EntityTypeDimension
			if col.IsAggregatable {
				entityType = models.EntityTypeMetric
			}
			for _, name := range identifierForms(col.Name, col.BusinessName) {
				out = append(out, fuzzyCandidate{
					text:       name,
					table:      qualified,
					column:     col.Name,
					entityType: entityType,
					isCurrency: tableIsCurrency || isCurrencyIdentifier(name),
				})
			}
		}
	}
	return out
}

// identifierForms returns the singular lowercase forms a catalog identifier
// can be matched under, deduplicated.
func identifierForms(physical, business string) []string {
	forms := []string{inflection.Singular(strings.ToLower(physical))}
	if business != "" {
		b := inflection.Singular(strings.ToLower(business))
		if b != forms[0] {
			forms = append(forms, b)
		}
	}
	return forms
}

func isCurrencyIdentifier(name string) bool {
	return strings.Contains(strings.ToLower(name), "currenc")
}

func markCovered(covered map[string]struct{}, text, phrase string) {
	lower := strings.ToLower(phrase)
	if !strings.Contains(" "+text+" ", " "+lower+" ") {
		return
	}
	for _, w := range strings.Fields(lower) {
		covered[w] = struct{}{}
	}
}

func prevToken(tokens []string, i int) string {
	if i == 0 {
		return ""
	}
	return tokens[i-1]
}

func isNumericToken(tok string) bool {
	for _, r := range tok {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(tok) > 0
}
