package services

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/ekaya-inc/text2sql/pkg/catalog"
	"github.com/ekaya-inc/text2sql/pkg/dictionary"
	"github.com/ekaya-inc/text2sql/pkg/llm"
	"github.com/ekaya-inc/text2sql/pkg/models"
)

// retrievalStrategy proposes candidate tables for one profile. The engine
// runs all strategies concurrently, so implementations must not share
// mutable state.
type retrievalStrategy interface {
	Name() string
	Propose(ctx context.Context, profile *models.BusinessContextProfile) ([]*models.TableCandidate, error)
}

// semanticSimilarityFloor drops tables whose embedding similarity to the
// question is too weak to mean anything.
const semanticSimilarityFloor = 0.5

// semanticStrategy ranks tables by cosine similarity between the question
// embedding and each table's precomputed description embedding. Tables
// without an embedding are invisible to it. An embedder failure degrades
// the strategy to nothing rather than failing retrieval.
type semanticStrategy struct {
	client llm.LLMClient
	snap   *catalog.Snapshot
	model  string
}

func (s *semanticStrategy) Name() string { return models.StrategySemantic }

func (s *semanticStrategy) Propose(ctx context.Context, profile *models.BusinessContextProfile) ([]*models.TableCandidate, error) {
	vector, err := s.client.CreateEmbedding(ctx, profile.RawQuestion, s.model)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	var out []*models.TableCandidate
	for _, table := range s.snap.Tables() {
		if len(table.Embedding) == 0 {
			continue
		}
		score := cosineSimilarity(vector, table.Embedding)
		if score < semanticSimilarityFloor {
			continue
		}
		candidate := models.NewTableCandidate(table.SchemaName, table.TableName, models.StrategySemantic, score)
		candidate.BusinessPurpose = tablePurpose(&table)
		out = append(out, candidate)
	}
	return out, nil
}

// domainAffinityScore is the flat score for a table tagged with the
// classified domain.
const domainAffinityScore = 0.8

// domainStrategy proposes every table tagged with the profile's domain.
// The general fallback domain proposes nothing: it carries no signal to
// narrow the catalog with.
type domainStrategy struct {
	snap *catalog.Snapshot
}

func (s *domainStrategy) Name() string { return models.StrategyDomain }

func (s *domainStrategy) Propose(ctx context.Context, profile *models.BusinessContextProfile) ([]*models.TableCandidate, error) {
	domain := profile.Domain.Name
	if domain == "" || domain == DomainGeneral {
		return nil, nil
	}

	var out []*models.TableCandidate
	for _, table := range s.snap.Tables() {
		for _, d := range table.Domains {
			if strings.EqualFold(d, domain) {
				candidate := models.NewTableCandidate(table.SchemaName, table.TableName, models.StrategyDomain, domainAffinityScore)
				candidate.BusinessPurpose = tablePurpose(&table)
				out = append(out, candidate)
				break
			}
		}
	}
	return out, nil
}

// entityStrategy proposes the tables that linked entities mapped onto,
// scored by linking confidence. Mapped columns ride along as column
// candidates so pruning keeps them.
type entityStrategy struct {
	snap *catalog.Snapshot
}

func (s *entityStrategy) Name() string { return models.StrategyEntity }

func (s *entityStrategy) Propose(ctx context.Context, profile *models.BusinessContextProfile) ([]*models.TableCandidate, error) {
	byTable := make(map[string]*models.TableCandidate)
	var out []*models.TableCandidate

	for _, entity := range profile.MappedEntities() {
		table := s.snap.Table(entity.MappedTable)
		if table == nil {
			continue
		}
		qualified := table.QualifiedName()

		candidate, ok := byTable[qualified]
		if !ok {
			candidate = models.NewTableCandidate(table.SchemaName, table.TableName, models.StrategyEntity, entity.Confidence)
			candidate.BusinessPurpose = tablePurpose(table)
			byTable[qualified] = candidate
			out = append(out, candidate)
		} else if entity.Confidence > candidate.RelevanceScore {
			candidate.RelevanceScore = entity.Confidence
		}

		if entity.MappedColumn != "" {
			appendColumnCandidate(candidate, entity.MappedColumn, entity.Confidence)
		}
	}
	return out, nil
}

// glossaryMatchScore reflects that a curated term naming a table is nearly
// as strong a signal as an entity link.
const glossaryMatchScore = 0.9

// glossaryStrategy proposes tables anchored by dictionary terms found in
// the question.
type glossaryStrategy struct {
	dict *dictionary.Dictionary
	snap *catalog.Snapshot
}

func (s *glossaryStrategy) Name() string { return models.StrategyGlossary }

func (s *glossaryStrategy) Propose(ctx context.Context, profile *models.BusinessContextProfile) ([]*models.TableCandidate, error) {
	byTable := make(map[string]*models.TableCandidate)
	var out []*models.TableCandidate

	for _, term := range s.dict.MatchPhrases(profile.RawQuestion) {
		if term.MappedTable == "" {
			continue
		}
		table := s.snap.Table(term.MappedTable)
		if table == nil {
			continue
		}
		qualified := table.QualifiedName()

		candidate, ok := byTable[qualified]
		if !ok {
			candidate = models.NewTableCandidate(table.SchemaName, table.TableName, models.StrategyGlossary, glossaryMatchScore)
			candidate.BusinessPurpose = tablePurpose(table)
			byTable[qualified] = candidate
			out = append(out, candidate)
		}

		if term.MappedColumn != "" {
			appendColumnCandidate(candidate, term.MappedColumn, glossaryMatchScore)
		}
	}
	return out, nil
}

func appendColumnCandidate(candidate *models.TableCandidate, column string, score float64) {
	for i := range candidate.Columns {
		if candidate.Columns[i].ColumnName == column {
			if score > candidate.Columns[i].RelevanceScore {
				candidate.Columns[i].RelevanceScore = score
			}
			return
		}
	}
	candidate.Columns = append(candidate.Columns, models.ColumnCandidate{ColumnName: column, RelevanceScore: score})
}

func tablePurpose(table *models.TableMeta) string {
	if table.Description != "" {
		return table.Description
	}
	return table.BusinessName
}

// cosineSimilarity returns the cosine of the angle between two vectors, or
// zero when the dimensions disagree or either vector is zero.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
