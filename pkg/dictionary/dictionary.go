// Package dictionary holds the curated business term dictionary: canonical
// business vocabulary with aliases and their mappings onto catalog tables
// and columns. The dictionary is loaded once at startup and immutable
// afterwards; entity linking consults it before any fuzzy matching.
package dictionary

import (
	"strings"

	"github.com/ekaya-inc/text2sql/pkg/models"
)

// Term categories that carry linking rules. Country and currency are
// deliberately distinct: a country alias resolves to the player dimension's
// country column and must never merge with a currency table or
// currency-code join, however similar the names look.
const (
	CategoryCountry  = "country"
	CategoryCurrency = "currency"
	CategoryGeneral  = ""
)

// Term is one curated dictionary entry.
type Term struct {
	// Term is the canonical business term, e.g. "depositor".
	Term string `yaml:"term"`

	// Definition is the business meaning, rendered in the glossary prompt
	// section.
	Definition string `yaml:"definition,omitempty"`

	// Type classifies what the term names in the schema.
	Type models.EntityType `yaml:"type"`

	// Category groups terms with special linking rules (country, currency).
	Category string `yaml:"category,omitempty"`

	// Aliases are surface forms that resolve to this term, e.g. "german
	// players" for the Germany country term.
	Aliases []string `yaml:"aliases,omitempty"`

	// MappedTable and MappedColumn anchor the term in the catalog. An empty
	// MappedTable makes the term advisory only.
	MappedTable  string `yaml:"mapped_table,omitempty"`
	MappedColumn string `yaml:"mapped_column,omitempty"`

	// LiteralValue is the filter value for value-type terms, e.g. "DE" for
	// the Germany term.
	LiteralValue string `yaml:"literal_value,omitempty"`

	// DefiningSQL is an optional SQL fragment that makes the term precise,
	// e.g. a deposit-count subquery for "depositor".
	DefiningSQL string `yaml:"defining_sql,omitempty"`
}

// Entity converts the term into a linked business entity with full
// dictionary confidence.
func (t *Term) Entity() models.BusinessEntity {
	return models.BusinessEntity{
		Name:         t.Term,
		Type:         t.Type,
		MappedTable:  t.MappedTable,
		MappedColumn: t.MappedColumn,
		LiteralValue: t.LiteralValue,
		Confidence:   1.0,
		MatchedBy:    models.MatchSourceDictionary,
	}
}

// Dictionary is an immutable index over curated terms. Lookup keys are
// lowercase; multi-word aliases are supported.
type Dictionary struct {
	terms   []Term
	byAlias map[string]*Term
}

// New builds a dictionary from the given terms. Later terms do not displace
// earlier ones on alias collision; the curated file order is authoritative.
func New(terms []Term) *Dictionary {
	d := &Dictionary{
		terms:   terms,
		byAlias: make(map[string]*Term),
	}
	for i := range d.terms {
		t := &d.terms[i]
		d.index(strings.ToLower(t.Term), t)
		for _, alias := range t.Aliases {
			d.index(strings.ToLower(alias), t)
		}
	}
	return d
}

func (d *Dictionary) index(key string, t *Term) {
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}
	if _, exists := d.byAlias[key]; !exists {
		d.byAlias[key] = t
	}
}

// Lookup resolves a word or phrase to its dictionary term. Matching is
// case-insensitive and exact; grammatical normalization is the caller's
// concern.
func (d *Dictionary) Lookup(phrase string) (*Term, bool) {
	t, ok := d.byAlias[strings.ToLower(strings.TrimSpace(phrase))]
	return t, ok
}

// MatchPhrases returns every term whose canonical name or alias occurs in
// the text as a whole word, in dictionary order. Each term is reported once.
func (d *Dictionary) MatchPhrases(text string) []Term {
	lower := strings.ToLower(text)

	var matched []Term
	seen := make(map[string]bool)
	for i := range d.terms {
		t := &d.terms[i]
		if seen[t.Term] {
			continue
		}
		if containsWord(lower, strings.ToLower(t.Term)) {
			matched = append(matched, *t)
			seen[t.Term] = true
			continue
		}
		for _, alias := range t.Aliases {
			if containsWord(lower, strings.ToLower(alias)) {
				matched = append(matched, *t)
				seen[t.Term] = true
				break
			}
		}
	}
	return matched
}

// Terms returns all entries in dictionary order.
func (d *Dictionary) Terms() []Term {
	out := make([]Term, len(d.terms))
	copy(out, d.terms)
	return out
}

// TermsWithSQL returns entries that carry a defining SQL fragment, for the
// glossary prompt section.
func (d *Dictionary) TermsWithSQL() []Term {
	var out []Term
	for i := range d.terms {
		if d.terms[i].DefiningSQL != "" {
			out = append(out, d.terms[i])
		}
	}
	return out
}

// Len returns the number of terms.
func (d *Dictionary) Len() int {
	return len(d.terms)
}

// containsWord reports whether needle occurs in haystack on word
// boundaries. Needles may span multiple words.
func containsWord(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	for start := 0; ; {
		idx := strings.Index(haystack[start:], needle)
		if idx < 0 {
			return false
		}
		idx += start
		end := idx + len(needle)
		leftOK := idx == 0 || !isWordChar(haystack[idx-1])
		rightOK := end == len(haystack) || !isWordChar(haystack[end])
		if leftOK && rightOK {
			return true
		}
		start = idx + 1
		if start >= len(haystack) {
			return false
		}
	}
}

func isWordChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
