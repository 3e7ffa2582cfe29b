package models

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Query Intent
// ============================================================================

// QueryIntent classifies what kind of answer the user is asking for.
type QueryIntent string

const (
	IntentAnalytical  QueryIntent = "analytical"
	IntentAggregation QueryIntent = "aggregation"
	IntentComparison  QueryIntent = "comparison"
	IntentTrend       QueryIntent = "trend"
	IntentDetail      QueryIntent = "detail"
	IntentOperational QueryIntent = "operational"
	IntentExploratory QueryIntent = "exploratory"
)

// ValidQueryIntents contains all valid intent values.
var ValidQueryIntents = []QueryIntent{
	IntentAnalytical,
	IntentAggregation,
	IntentComparison,
	IntentTrend,
	IntentDetail,
	IntentOperational,
	IntentExploratory,
}

// IsValidQueryIntent checks if the given intent is valid.
func IsValidQueryIntent(i QueryIntent) bool {
	for _, v := range ValidQueryIntents {
		if v == i {
			return true
		}
	}
	return false
}

// ============================================================================
// Business Entities
// ============================================================================

// EntityType classifies a linked business entity.
type EntityType string

const (
	EntityTypeTable     EntityType = "table"
	EntityTypeDimension EntityType = "dimension"
	EntityTypeMetric    EntityType = "metric"
	EntityTypeValue     EntityType = "value"
)

// ValidEntityTypes contains all valid entity type values.
var ValidEntityTypes = []EntityType{
	EntityTypeTable,
	EntityTypeDimension,
	EntityTypeMetric,
	EntityTypeValue,
}

// IsValidEntityType checks if the given entity type is valid.
func IsValidEntityType(t EntityType) bool {
	for _, v := range ValidEntityTypes {
		if v == t {
			return true
		}
	}
	return false
}

// How an entity mapping was established.
const (
	MatchSourceDictionary   = "dictionary"
	MatchSourceCatalogFuzzy = "catalog_fuzzy"
)

// BusinessEntity is a business term from the question linked to a schema
// element. An entity with empty MappedTable is unmapped: it survived linking
// as advisory context but must never be rendered as a schema reference.
type BusinessEntity struct {
	Name         string     `json:"name"`
	Type         EntityType `json:"type"`
	MappedTable  string     `json:"mapped_table,omitempty"`
	MappedColumn string     `json:"mapped_column,omitempty"`
	LiteralValue string     `json:"literal_value,omitempty"`
	Confidence   float64    `json:"confidence"`
	MatchedBy    string     `json:"matched_by,omitempty"`
}

// IsMapped returns true if the entity resolved to a catalog element.
func (e *BusinessEntity) IsMapped() bool {
	return e.MappedTable != ""
}

// ============================================================================
// Time Context
// ============================================================================

// TimeGranularity is the resolution of a resolved time expression.
type TimeGranularity string

const (
	GranularityDay     TimeGranularity = "day"
	GranularityWeek    TimeGranularity = "week"
	GranularityMonth   TimeGranularity = "month"
	GranularityQuarter TimeGranularity = "quarter"
	GranularityYear    TimeGranularity = "year"
)

// TimeContext is a resolved time expression as a closed date interval.
// Dates are date-granular; EndDate is inclusive.
type TimeContext struct {
	StartDate   time.Time       `json:"start_date"`
	EndDate     time.Time       `json:"end_date"`
	Expression  string          `json:"expression"`
	Granularity TimeGranularity `json:"granularity"`
}

// ============================================================================
// Business Context Profile
// ============================================================================

// DomainClassification is the business domain assigned to a question.
type DomainClassification struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// BusinessContextProfile is the structured interpretation of a question.
// It is immutable once analysis returns: downstream stages read it but
// never write it.
type BusinessContextProfile struct {
	RequestID         uuid.UUID            `json:"request_id"`
	RawQuestion       string               `json:"raw_question"`
	UserID            string               `json:"user_id,omitempty"`
	Intent            QueryIntent          `json:"intent"`
	Domain            DomainClassification `json:"domain"`
	Entities          []BusinessEntity     `json:"entities,omitempty"`
	TimeContext       *TimeContext         `json:"time_context,omitempty"`
	TimeAmbiguous     bool                 `json:"time_ambiguous,omitempty"`
	OverallConfidence float64              `json:"overall_confidence"`
}

// MappedEntities returns only the entities that resolved to catalog elements.
func (p *BusinessContextProfile) MappedEntities() []BusinessEntity {
	var mapped []BusinessEntity
	for _, e := range p.Entities {
		if e.IsMapped() {
			mapped = append(mapped, e)
		}
	}
	return mapped
}

// HasTimeContext returns true if a time expression was resolved.
func (p *BusinessContextProfile) HasTimeContext() bool {
	return p.TimeContext != nil
}
