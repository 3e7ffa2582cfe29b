package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/text2sql/pkg/apperrors"
	"github.com/ekaya-inc/text2sql/pkg/catalog"
	"github.com/ekaya-inc/text2sql/pkg/config"
	"github.com/ekaya-inc/text2sql/pkg/dictionary"
	"github.com/ekaya-inc/text2sql/pkg/llm"
	"github.com/ekaya-inc/text2sql/pkg/models"
	"github.com/ekaya-inc/text2sql/pkg/prompts"
)

// bridgeScoreFactor discounts a junction table's score relative to the mean
// of the two tables it connects.
const bridgeScoreFactor = 0.5

// SchemaRetriever selects the bounded schema context for one profile.
type SchemaRetriever interface {
	Retrieve(ctx context.Context, profile *models.BusinessContextProfile, budget *models.TokenBudget) (*models.SchemaSelection, error)
}

type schemaRetriever struct {
	strategies []retrievalStrategy
	weights    map[string]float64
	snap       *catalog.Snapshot
	cfg        *config.RetrievalConfig
	logger     *zap.Logger
}

// NewSchemaRetriever wires the four retrieval strategies over the snapshot.
func NewSchemaRetriever(
	snap *catalog.Snapshot,
	dict *dictionary.Dictionary,
	client llm.LLMClient,
	embeddingModel string,
	cfg *config.RetrievalConfig,
	logger *zap.Logger,
) SchemaRetriever {
	return &schemaRetriever{
		strategies: []retrievalStrategy{
			&semanticStrategy{client: client, snap: snap, model: embeddingModel},
			&domainStrategy{snap: snap},
			&entityStrategy{snap: snap},
			&glossaryStrategy{dict: dict, snap: snap},
		},
		weights: map[string]float64{
			models.StrategySemantic: cfg.SemanticWeight,
			models.StrategyDomain:   cfg.DomainWeight,
			models.StrategyEntity:   cfg.EntityWeight,
			models.StrategyGlossary: cfg.GlossaryWeight,
		},
		snap:   snap,
		cfg:    cfg,
		logger: logger.Named("schema_retrieval"),
	}
}

// Retrieve runs the strategies concurrently, merges their proposals with
// configured weights, expands join paths, prunes columns, and sizes the
// result against what is left of the token budget. Retrieval checks the
// budget but never spends it; the assembler accounts for the full prompt.
// Equal inputs produce equal selections.
func (r *schemaRetriever) Retrieve(ctx context.Context, profile *models.BusinessContextProfile, budget *models.TokenBudget) (*models.SchemaSelection, error) {
	proposals := r.runStrategies(ctx, profile)
	merged := r.mergeCandidates(proposals)

	var kept []*models.TableCandidate
	for _, candidate := range merged {
		if candidate.RelevanceScore >= r.cfg.MinScore {
			kept = append(kept, candidate)
		}
	}
	if len(kept) == 0 {
		return nil, apperrors.ErrNoRelevantSchema
	}

	sortCandidates(kept)
	if r.cfg.MaxTables > 0 && len(kept) > r.cfg.MaxTables {
		kept = kept[:r.cfg.MaxTables]
	}
	kept = r.expandJoinTables(kept)

	selection := r.buildSelection(profile, kept)
	if err := r.fitToBudget(selection, budget); err != nil {
		return nil, err
	}

	r.logger.Info("Schema retrieval complete",
		zap.String("request_id", profile.RequestID.String()),
		zap.Int("candidates", len(merged)),
		zap.Int("selected_tables", len(selection.Tables)),
		zap.Int("relationships", len(selection.Relationships)),
		zap.Int("estimated_tokens", selection.EstimatedTokens))

	return selection, nil
}

// runStrategies fans out all strategies with a per-strategy timeout and
// collects proposals indexed by strategy position, so merging is
// independent of completion order. A failed or timed-out strategy
// contributes nothing.
func (r *schemaRetriever) runStrategies(ctx context.Context, profile *models.BusinessContextProfile) [][]*models.TableCandidate {
	timeout := time.Duration(r.cfg.StrategyTimeoutSeconds) * time.Second
	results := make([][]*models.TableCandidate, len(r.strategies))

	var wg sync.WaitGroup
	for i, strategy := range r.strategies {
		wg.Add(1)
		go func(i int, strategy retrievalStrategy) {
			defer wg.Done()
			sctx := ctx
			if timeout > 0 {
				var cancel context.CancelFunc
				sctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			candidates, err := strategy.Propose(sctx, profile)
			if err != nil {
				r.logger.Warn("Retrieval strategy degraded",
					zap.String("strategy", strategy.Name()),
					zap.Error(err))
				return
			}
			results[i] = candidates
		}(i, strategy)
	}
	wg.Wait()

	return results
}

// mergeCandidates folds per-strategy proposals into one candidate per
// table. Scores combine as a weighted sum capped at 1.0; MatchedBy unions
// the proposing strategies. Proposals are walked in declared strategy
// order, so the merge is deterministic.
func (r *schemaRetriever) mergeCandidates(proposals [][]*models.TableCandidate) []*models.TableCandidate {
	byName := make(map[string]*models.TableCandidate)
	var order []string

	for i, candidates := range proposals {
		weight := r.weights[r.strategies[i].Name()]
		for _, c := range candidates {
			name := c.QualifiedName()
			weighted := weight * c.RelevanceScore

			existing, ok := byName[name]
			if !ok {
				merged := &models.TableCandidate{
					SchemaName:      c.SchemaName,
					TableName:       c.TableName,
					RelevanceScore:  weighted,
					MatchedBy:       c.MatchedBy.Clone(),
					BusinessPurpose: c.BusinessPurpose,
					Columns:         append([]models.ColumnCandidate(nil), c.Columns...),
				}
				byName[name] = merged
				order = append(order, name)
				continue
			}

			existing.RelevanceScore += weighted
			existing.MatchedBy = existing.MatchedBy.Union(c.MatchedBy)
			if existing.BusinessPurpose == "" {
				existing.BusinessPurpose = c.BusinessPurpose
			}
			for _, col := range c.Columns {
				appendColumnCandidate(existing, col.ColumnName, col.RelevanceScore)
			}
		}
	}

	out := make([]*models.TableCandidate, 0, len(order))
	for _, name := range order {
		candidate := byName[name]
		if candidate.RelevanceScore > 1.0 {
			candidate.RelevanceScore = 1.0
		}
		out = append(out, candidate)
	}
	return out
}

func sortCandidates(candidates []*models.TableCandidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].RelevanceScore != candidates[j].RelevanceScore {
			return candidates[i].RelevanceScore > candidates[j].RelevanceScore
		}
		return candidates[i].QualifiedName() < candidates[j].QualifiedName()
	})
}

// expandJoinTables adds junction tables, but only where one completes a
// join path between two tables that are both already selected and not
// directly joined. Speculative neighbors are never pulled in.
func (r *schemaRetriever) expandJoinTables(kept []*models.TableCandidate) []*models.TableCandidate {
	selected := make(map[string]struct{}, len(kept))
	for _, c := range kept {
		selected[c.QualifiedName()] = struct{}{}
	}

	fks := r.snap.ForeignKeys()
	directlyJoined := func(a, b string) bool {
		for i := range fks {
			if fks[i].Joins(a, b) {
				return true
			}
		}
		return false
	}
	neighbors := func(table string) []string {
		var out []string
		for i := range fks {
			switch table {
			case fks[i].SourceTable:
				out = append(out, fks[i].TargetTable)
			case fks[i].TargetTable:
				out = append(out, fks[i].SourceTable)
			}
		}
		return out
	}

	var added []*models.TableCandidate
	for i := 0; i < len(kept); i++ {
		for j := i + 1; j < len(kept); j++ {
			a, b := kept[i].QualifiedName(), kept[j].QualifiedName()
			if directlyJoined(a, b) {
				continue
			}
			for _, bridge := range neighbors(a) {
				if _, already := selected[bridge]; already {
					continue
				}
				if !directlyJoined(bridge, b) {
					continue
				}
				meta := r.snap.Table(bridge)
				if meta == nil {
					continue
				}
				score := (kept[i].RelevanceScore + kept[j].RelevanceScore) / 2 * bridgeScoreFactor
				candidate := models.NewTableCandidate(meta.SchemaName, meta.TableName, models.StrategyFKExpansion, score)
				candidate.BusinessPurpose = tablePurpose(meta)
				selected[candidate.QualifiedName()] = struct{}{}
				added = append(added, candidate)

				r.logger.Debug("Added junction table",
					zap.String("bridge", candidate.QualifiedName()),
					zap.String("connects", a+" <-> "+b))
				break
			}
		}
	}

	if len(added) == 0 {
		return kept
	}
	kept = append(kept, added...)
	sortCandidates(kept)
	return kept
}

// buildSelection resolves candidates against the snapshot and prunes each
// table's columns down to keys, entity targets, and curated filter and
// aggregation columns.
func (r *schemaRetriever) buildSelection(profile *models.BusinessContextProfile, kept []*models.TableCandidate) *models.SchemaSelection {
	selection := &models.SchemaSelection{}
	names := make(map[string]struct{}, len(kept))

	for _, candidate := range kept {
		meta := r.snap.Table(candidate.QualifiedName())
		if meta == nil {
			continue
		}
		purpose := candidate.BusinessPurpose
		if purpose == "" {
			purpose = tablePurpose(meta)
		}
		selection.Tables = append(selection.Tables, models.SelectedTable{
			SchemaName:      meta.SchemaName,
			TableName:       meta.TableName,
			BusinessPurpose: purpose,
			RelevanceScore:  candidate.RelevanceScore,
			MatchedBy:       sortedStrategyNames(candidate),
			Columns:         selectColumns(profile, candidate, meta),
		})
		names[meta.QualifiedName()] = struct{}{}
	}

	for _, fk := range r.snap.ForeignKeys() {
		if _, src := names[fk.SourceTable]; !src {
			continue
		}
		if _, dst := names[fk.TargetTable]; !dst {
			continue
		}
		selection.Relationships = append(selection.Relationships, fk)
	}

	return selection
}

func sortedStrategyNames(candidate *models.TableCandidate) []string {
	names := candidate.MatchedBy.ToSlice()
	sort.Strings(names)
	return names
}

// selectColumns prunes a table to the columns worth showing the model. The
// full column dump never reaches the prompt.
func selectColumns(profile *models.BusinessContextProfile, candidate *models.TableCandidate, meta *models.TableMeta) []models.SelectedColumn {
	wanted := make(map[string]struct{})
	for i := range candidate.Columns {
		wanted[candidate.Columns[i].ColumnName] = struct{}{}
	}
	for _, entity := range profile.Entities {
		if entity.MappedColumn == "" {
			continue
		}
		if entity.MappedTable == meta.QualifiedName() || entity.MappedTable == meta.TableName {
			wanted[entity.MappedColumn] = struct{}{}
		}
	}

	var out []models.SelectedColumn
	for i := range meta.Columns {
		col := &meta.Columns[i]
		_, isWanted := wanted[col.Name]
		if !col.IsPrimaryKey && !col.IsForeignKey && !col.IsFilterable && !col.IsAggregatable && !isWanted {
			continue
		}
		out = append(out, models.SelectedColumn{
			Name:            col.Name,
			DataType:        col.DataType,
			BusinessMeaning: columnMeaning(col),
			IsKey:           col.IsPrimaryKey || col.IsForeignKey,
			SampleValues:    col.SampleValues,
		})
	}
	return out
}

func columnMeaning(col *models.ColumnMeta) string {
	if col.Description != "" {
		return col.Description
	}
	return col.BusinessName
}

// fitToBudget drops the lowest scoring tables until the rendered schema and
// relationship sections fit the remaining budget. Tables arrive sorted by
// score, so the victim is always the last one. Failing to fit even a single
// table is a budget error, not a silently empty selection.
func (r *schemaRetriever) fitToBudget(selection *models.SchemaSelection, budget *models.TokenBudget) error {
	for {
		rendered := prompts.RenderSchema(selection) + prompts.RenderRelationships(selection.Relationships)
		tokens := prompts.EstimateTokens(rendered)
		if tokens <= budget.Remaining() {
			selection.EstimatedTokens = tokens
			return nil
		}
		if len(selection.Tables) <= 1 {
			return apperrors.ErrTokenBudgetExceeded
		}

		dropped := selection.Tables[len(selection.Tables)-1]
		selection.Tables = selection.Tables[:len(selection.Tables)-1]
		selection.Relationships = filterRelationships(selection.Relationships, dropped.QualifiedName())

		r.logger.Debug("Dropped table to fit token budget",
			zap.String("table", dropped.QualifiedName()),
			zap.Float64("score", dropped.RelevanceScore))
	}
}

func filterRelationships(fks []models.ForeignKey, droppedTable string) []models.ForeignKey {
	var out []models.ForeignKey
	for _, fk := range fks {
		if fk.Touches(droppedTable) {
			continue
		}
		out = append(out, fk)
	}
	return out
}
