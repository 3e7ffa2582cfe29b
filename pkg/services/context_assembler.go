package services

import (
	"go.uber.org/zap"

	"github.com/ekaya-inc/text2sql/pkg/apperrors"
	"github.com/ekaya-inc/text2sql/pkg/dictionary"
	"github.com/ekaya-inc/text2sql/pkg/models"
	"github.com/ekaya-inc/text2sql/pkg/prompts"
)

// maxPromptExamples caps the few-shot section regardless of budget.
const maxPromptExamples = 3

// ContextAssembler renders the prompt sections for one request and fits
// them into the remaining token budget.
type ContextAssembler interface {
	Assemble(
		profile *models.BusinessContextProfile,
		selection *models.SchemaSelection,
		rules []models.BusinessRule,
		examples []models.QueryExample,
		budget *models.TokenBudget,
	) (*models.PromptContext, error)
}

type contextAssembler struct {
	dict   *dictionary.Dictionary
	logger *zap.Logger
}

// NewContextAssembler creates the assembler.
func NewContextAssembler(dict *dictionary.Dictionary, logger *zap.Logger) ContextAssembler {
	return &contextAssembler{dict: dict, logger: logger.Named("context_assembler")}
}

// Assemble renders every section, then trims optional ones until the full
// generation prompt fits the budget. Trim order is examples, then glossary,
// then rules; business context and schema are never trimmed. The final
// token estimate is spent against the budget exactly once, here.
func (a *contextAssembler) Assemble(
	profile *models.BusinessContextProfile,
	selection *models.SchemaSelection,
	rules []models.BusinessRule,
	examples []models.QueryExample,
	budget *models.TokenBudget,
) (*models.PromptContext, error) {
	pctx := &models.PromptContext{
		Question:        profile.RawQuestion,
		BusinessContext: prompts.RenderBusinessContext(profile),
		Schema:          prompts.RenderSchema(selection),
		Relationships:   prompts.RenderRelationships(selection.Relationships),
		Rules:           prompts.RenderRules(applicableRules(rules, selection)),
		Glossary:        prompts.RenderGlossary(a.glossaryTerms(profile)),
		Examples:        prompts.RenderExamples(relevantExamples(examples, selection)),
	}

	trimOrder := []struct {
		name    string
		section *string
	}{
		{"examples", &pctx.Examples},
		{"glossary", &pctx.Glossary},
		{"rules", &pctx.Rules},
	}

	var trimmed []string
	for {
		tokens := prompts.EstimateTokens(prompts.BuildGenerationPrompt(pctx))
		if tokens <= budget.Remaining() {
			pctx.EstimatedTokens = tokens
			break
		}

		next := -1
		for i := range trimOrder {
			if *trimOrder[i].section != "" {
				next = i
				break
			}
		}
		if next == -1 {
			return nil, apperrors.ErrTokenBudgetExceeded
		}
		*trimOrder[next].section = ""
		trimmed = append(trimmed, trimOrder[next].name)
	}

	if err := budget.Spend(pctx.EstimatedTokens); err != nil {
		return nil, err
	}

	a.logger.Debug("Assembled prompt context",
		zap.String("request_id", profile.RequestID.String()),
		zap.Int("estimated_tokens", pctx.EstimatedTokens),
		zap.Strings("trimmed_sections", trimmed))

	return pctx, nil
}

// applicableRules keeps the rules that guard a selected table, plus global
// rules with no table scope.
func applicableRules(rules []models.BusinessRule, selection *models.SchemaSelection) []models.BusinessRule {
	names := selection.TableNames()

	var out []models.BusinessRule
	for _, rule := range rules {
		if rule.AppliesTo == "" {
			out = append(out, rule)
			continue
		}
		for _, name := range names {
			if rule.AppliesToTable(name) {
				out = append(out, rule)
				break
			}
		}
	}
	return out
}

// glossaryTerms picks the dictionary terms the question actually used that
// carry a definition worth teaching the model.
func (a *contextAssembler) glossaryTerms(profile *models.BusinessContextProfile) []dictionary.Term {
	var out []dictionary.Term
	for _, term := range a.dict.MatchPhrases(profile.RawQuestion) {
		if term.Definition == "" && term.DefiningSQL == "" {
			continue
		}
		out = append(out, term)
	}
	return out
}

// relevantExamples keeps curated examples whose tables are all selected.
// An example referencing unselected tables would teach the model to use
// schema it cannot see.
func relevantExamples(examples []models.QueryExample, selection *models.SchemaSelection) []models.QueryExample {
	var out []models.QueryExample
	for _, example := range examples {
		if !exampleFitsSelection(&example, selection) {
			continue
		}
		out = append(out, example)
		if len(out) == maxPromptExamples {
			break
		}
	}
	return out
}

func exampleFitsSelection(example *models.QueryExample, selection *models.SchemaSelection) bool {
	if len(example.Tables) == 0 {
		return false
	}
	for _, table := range example.Tables {
		if !selection.ContainsTable(table) {
			return false
		}
	}
	return true
}
