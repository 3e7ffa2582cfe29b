package models

// Business rule severities control whether a violation blocks the query or
// only annotates it.
const (
	RuleSeverityError   = "error"
	RuleSeverityWarning = "warning"
)

// BusinessRule is a curated constraint that generated SQL must honor, such
// as a mandatory status filter on a sensitive table.
type BusinessRule struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	// AppliesTo is the table the rule guards; empty means every query.
	AppliesTo string `json:"applies_to,omitempty" yaml:"applies_to,omitempty"`
	// RequiredFilterColumn must appear in a WHERE predicate whenever
	// AppliesTo is referenced.
	RequiredFilterColumn string `json:"required_filter_column,omitempty" yaml:"required_filter_column,omitempty"`
	// RequireRowLimit demands an explicit LIMIT/TOP on detail queries
	// against the table.
	RequireRowLimit bool   `json:"require_row_limit,omitempty" yaml:"require_row_limit,omitempty"`
	Severity        string `json:"severity,omitempty" yaml:"severity,omitempty"`
}

// AppliesToTable reports whether the rule guards the given table. The name
// may be bare or schema-qualified; rules match on the bare table name.
func (r *BusinessRule) AppliesToTable(name string) bool {
	if r.AppliesTo == "" {
		return true
	}
	if r.AppliesTo == name {
		return true
	}
	// Qualified selection name vs bare rule name
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[i+1:] == r.AppliesTo
		}
	}
	return false
}

// QueryExample is a curated question/SQL pair used as a few-shot example in
// the generation prompt.
type QueryExample struct {
	Question string   `json:"question" yaml:"question"`
	SQL      string   `json:"sql" yaml:"sql"`
	Tables   []string `json:"tables,omitempty" yaml:"tables,omitempty"`
}

// DomainDefinition describes one configured business domain for
// classification, such as payments or player_activity.
type DomainDefinition struct {
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Keywords    []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	// Priority breaks ties between domains with equal scores; lower wins.
	Priority int `json:"priority,omitempty" yaml:"priority,omitempty"`
}
