package models

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/ekaya-inc/text2sql/pkg/apperrors"
)

// ============================================================================
// Retrieval Candidates
// ============================================================================

// Names of the retrieval strategies, recorded in TableCandidate.MatchedBy.
// StrategyFKExpansion is not a strategy proper: it tags junction tables
// pulled in after merging to complete a join path.
const (
	StrategySemantic    = "semantic"
	StrategyDomain      = "domain"
	StrategyEntity      = "entity"
	StrategyGlossary    = "glossary"
	StrategyFKExpansion = "fk_expansion"
)

// TableCandidate is a catalog table proposed by one or more retrieval
// strategies. Candidates for the same table are merged by qualified name;
// MatchedBy accumulates the union of proposing strategies.
type TableCandidate struct {
	SchemaName      string
	TableName       string
	RelevanceScore  float64
	MatchedBy       mapset.Set[string]
	BusinessPurpose string
	Columns         []ColumnCandidate
}

// QualifiedName returns the schema-qualified table name.
func (c *TableCandidate) QualifiedName() string {
	if c.SchemaName == "" {
		return c.TableName
	}
	return c.SchemaName + "." + c.TableName
}

// NewTableCandidate builds a candidate proposed by a single strategy.
func NewTableCandidate(schemaName, tableName, strategy string, score float64) *TableCandidate {
	return &TableCandidate{
		SchemaName:     schemaName,
		TableName:      tableName,
		RelevanceScore: score,
		MatchedBy:      mapset.NewSet(strategy),
	}
}

// ColumnCandidate is a column proposed as relevant within a candidate table.
type ColumnCandidate struct {
	ColumnName      string
	BusinessMeaning string
	IsKey           bool
	RelevanceScore  float64
}

// ============================================================================
// Schema Selection
// ============================================================================

// SelectedColumn is a pruned column carried into the prompt context.
type SelectedColumn struct {
	Name            string   `json:"name"`
	DataType        string   `json:"data_type"`
	BusinessMeaning string   `json:"business_meaning,omitempty"`
	IsKey           bool     `json:"is_key,omitempty"`
	SampleValues    []string `json:"sample_values,omitempty"`
}

// SelectedTable is a table that survived scoring, pruning and token fitting.
// MatchedBy is the sorted list of strategies that proposed it.
type SelectedTable struct {
	SchemaName      string           `json:"schema_name"`
	TableName       string           `json:"table_name"`
	BusinessPurpose string           `json:"business_purpose,omitempty"`
	RelevanceScore  float64          `json:"relevance_score"`
	MatchedBy       []string         `json:"matched_by,omitempty"`
	Columns         []SelectedColumn `json:"columns"`
}

// QualifiedName returns the schema-qualified table name.
func (t *SelectedTable) QualifiedName() string {
	if t.SchemaName == "" {
		return t.TableName
	}
	return t.SchemaName + "." + t.TableName
}

// SchemaSelection is the immutable output of schema retrieval: the tables,
// columns and join edges the generator is allowed to reference.
type SchemaSelection struct {
	Tables          []SelectedTable `json:"tables"`
	Relationships   []ForeignKey    `json:"relationships,omitempty"`
	EstimatedTokens int             `json:"estimated_tokens"`
}

// ContainsTable reports whether the selection includes the table. The name
// may be bare or schema-qualified.
func (s *SchemaSelection) ContainsTable(name string) bool {
	for i := range s.Tables {
		if s.Tables[i].TableName == name || s.Tables[i].QualifiedName() == name {
			return true
		}
	}
	return false
}

// ContainsColumn reports whether any selected table carries the column.
// When table is non-empty the check is restricted to that table.
func (s *SchemaSelection) ContainsColumn(table, column string) bool {
	for i := range s.Tables {
		t := &s.Tables[i]
		if table != "" && t.TableName != table && t.QualifiedName() != table {
			continue
		}
		for j := range t.Columns {
			if t.Columns[j].Name == column {
				return true
			}
		}
	}
	return false
}

// TableNames returns the qualified names of all selected tables, in order.
func (s *SchemaSelection) TableNames() []string {
	names := make([]string, len(s.Tables))
	for i := range s.Tables {
		names[i] = s.Tables[i].QualifiedName()
	}
	return names
}

// ============================================================================
// Token Budget
// ============================================================================

// TokenBudget tracks prompt token consumption against a hard ceiling.
// Consumption is monotonic: tokens are never refunded. Spend fails closed,
// leaving the budget untouched when the request would exceed the ceiling.
// Not safe for concurrent use; pipeline stages spend sequentially.
type TokenBudget struct {
	MaxTotalTokens int
	Consumed       int
}

// NewTokenBudget returns a budget with the given ceiling.
func NewTokenBudget(maxTokens int) *TokenBudget {
	return &TokenBudget{MaxTotalTokens: maxTokens}
}

// Remaining returns the tokens still available.
func (b *TokenBudget) Remaining() int {
	r := b.MaxTotalTokens - b.Consumed
	if r < 0 {
		return 0
	}
	return r
}

// Spend consumes n tokens, or fails without consuming anything when n
// exceeds the remaining budget.
func (b *TokenBudget) Spend(n int) error {
	if n < 0 {
		n = 0
	}
	if n > b.Remaining() {
		return apperrors.ErrTokenBudgetExceeded
	}
	b.Consumed += n
	return nil
}
