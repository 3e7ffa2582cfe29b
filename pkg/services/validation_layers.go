package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/text2sql/pkg/adapters/datasource"
	"github.com/ekaya-inc/text2sql/pkg/audit"
	"github.com/ekaya-inc/text2sql/pkg/models"
	sqlutil "github.com/ekaya-inc/text2sql/pkg/sql"
)

const (
	// passWithFindingsScore is the layer score when it passed but left
	// warnings behind.
	passWithFindingsScore = 0.85
	// skippedLayerScore keeps a skipped dry-run from either inflating or
	// tanking result confidence.
	skippedLayerScore = 0.75
)

// validationContext carries everything the layers inspect for one attempt.
type validationContext struct {
	SQL       string
	Profile   *models.BusinessContextProfile
	Selection *models.SchemaSelection
	Rules     []models.BusinessRule
}

// validationLayer checks one aspect of generated SQL.
type validationLayer interface {
	Layer() models.ValidationLayer
	Validate(ctx context.Context, vctx *validationContext) models.ValidationResult
}

// sqlValidator runs the layers in fixed order and stops at the first
// failure. Later layers assume earlier ones passed; running them against
// SQL that already failed would only produce noise.
type sqlValidator struct {
	layers []validationLayer
	logger *zap.Logger
}

func newSQLValidator(layers []validationLayer, logger *zap.Logger) *sqlValidator {
	return &sqlValidator{layers: layers, logger: logger.Named("validation")}
}

// ValidateAll returns the results up to and including the first failing
// layer.
func (v *sqlValidator) ValidateAll(ctx context.Context, vctx *validationContext) []models.ValidationResult {
	var results []models.ValidationResult
	for _, layer := range v.layers {
		result := layer.Validate(ctx, vctx)
		results = append(results, result)
		if !result.Passed {
			v.logger.Debug("Validation layer failed",
				zap.String("layer", string(result.Layer)),
				zap.Int("issues", len(result.Issues)))
			break
		}
	}
	return results
}

// newValidationLayers builds the stack in execution order. A nil explainer
// leaves the dry-run layer in place but permanently skipped.
func newValidationLayers(
	explainer datasource.Explainer,
	explainTimeout time.Duration,
	maxEstimatedRows int64,
	requireDryRun bool,
	auditor *audit.SecurityAuditor,
	logger *zap.Logger,
) []validationLayer {
	return []validationLayer{
		&securityLayer{auditor: auditor},
		&schemaComplianceLayer{},
		&semanticLayer{},
		&businessLogicLayer{},
		&dryRunLayer{
			explainer: explainer,
			timeout:   explainTimeout,
			maxRows:   maxEstimatedRows,
			require:   requireDryRun,
			logger:    logger.Named("dry_run"),
		},
	}
}

// ----------------------------------------------------------------------------
// Security
// ----------------------------------------------------------------------------

// securityLayer rejects anything that could read as more than one read-only
// SELECT, and scans question-sourced string literals for injection. A
// failure here is terminal: the pipeline never feeds security findings back
// to the model.
type securityLayer struct {
	auditor *audit.SecurityAuditor
}

func (l *securityLayer) Layer() models.ValidationLayer { return models.LayerSecurity }

func (l *securityLayer) Validate(ctx context.Context, vctx *validationContext) models.ValidationResult {
	profile := vctx.Profile

	normalized := sqlutil.ValidateAndNormalize(vctx.SQL)
	if normalized.Error != nil {
		l.auditor.LogBlockedStatement(profile.RequestID, profile.UserID, audit.BlockedStatementDetails{
			StatementType: string(sqlutil.SQLTypeUnknown),
			Reason:        normalized.Error.Error(),
			SQL:           vctx.SQL,
		})
		return failResult(models.LayerSecurity, []models.ValidationIssue{{
			Code:     models.IssueMultipleStatements,
			Message:  normalized.Error.Error(),
			Severity: models.SeverityError,
		}})
	}
	statement := normalized.NormalizedSQL

	sqlType, err := sqlutil.ValidateReadOnly(statement)
	if err != nil {
		l.auditor.LogBlockedStatement(profile.RequestID, profile.UserID, audit.BlockedStatementDetails{
			StatementType: string(sqlType),
			Reason:        err.Error(),
			SQL:           statement,
		})
		return failResult(models.LayerSecurity, []models.ValidationIssue{{
			Code:     models.IssueDisallowedStatement,
			Message:  err.Error(),
			Severity: models.SeverityError,
		}})
	}

	if keyword, found := sqlutil.DetectForbiddenKeyword(statement); found {
		reason := fmt.Sprintf("forbidden keyword %s in generated statement", keyword)
		l.auditor.LogBlockedStatement(profile.RequestID, profile.UserID, audit.BlockedStatementDetails{
			StatementType: string(sqlType),
			Reason:        reason,
			SQL:           statement,
		})
		return failResult(models.LayerSecurity, []models.ValidationIssue{{
			Code:     models.IssueDisallowedStatement,
			Message:  reason,
			Severity: models.SeverityError,
		}})
	}

	// String literals lifted from the question are the injection carrier: a
	// hostile question smuggles its payload into the generated SQL through
	// them. Literals the model introduced on its own are schema-derived and
	// checked by the later layers instead.
	var issues []models.ValidationIssue
	question := strings.ToLower(profile.RawQuestion)
	for _, literal := range sqlutil.ExtractStringLiterals(statement) {
		if !strings.Contains(question, strings.ToLower(literal)) {
			continue
		}
		check := sqlutil.CheckValueForInjection("sql_literal", literal)
		if check == nil {
			continue
		}
		issues = append(issues, models.ValidationIssue{
			Code:     models.IssueInjectionDetected,
			Message:  fmt.Sprintf("string literal matches injection fingerprint %s", check.Fingerprint),
			Severity: models.SeverityError,
		})
		l.auditor.LogInjectionAttempt(profile.RequestID, profile.UserID, audit.InjectionDetails{
			Source:      "sql_literal",
			Name:        check.Name,
			Value:       check.Value,
			Fingerprint: check.Fingerprint,
		})
	}
	if len(issues) > 0 {
		return failResult(models.LayerSecurity, issues)
	}

	return passResult(models.LayerSecurity, nil)
}

// ----------------------------------------------------------------------------
// Schema compliance
// ----------------------------------------------------------------------------

// schemaComplianceLayer confirms every referenced table and column exists
// in the selection. The model only ever saw the selected schema, so an
// unknown reference is a hallucination, not a near miss.
type schemaComplianceLayer struct{}

func (l *schemaComplianceLayer) Layer() models.ValidationLayer { return models.LayerSchemaCompliance }

func (l *schemaComplianceLayer) Validate(ctx context.Context, vctx *validationContext) models.ValidationResult {
	var issues []models.ValidationIssue

	aliases := make(map[string]string)
	for _, ref := range sqlutil.ExtractTableRefs(vctx.SQL) {
		name := ref.Name
		if ref.Schema != "" {
			name = ref.Schema + "." + ref.Name
		}
		if ref.Alias != "" {
			aliases[ref.Alias] = ref.Name
		}
		if !vctx.Selection.ContainsTable(ref.Name) && !vctx.Selection.ContainsTable(name) {
			issues = append(issues, models.ValidationIssue{
				Code:     models.IssueUnknownTable,
				Message:  fmt.Sprintf("table %s is not part of the provided schema", name),
				Severity: models.SeverityError,
			})
		}
	}

	for _, col := range sqlutil.ExtractColumnRefs(vctx.SQL) {
		table := col.Qualifier
		if resolved, ok := aliases[col.Qualifier]; ok {
			table = resolved
		}

		// An unknown qualifier (subquery alias the ref parser cannot see)
		// falls back to an existence check across the whole selection.
		var known bool
		if vctx.Selection.ContainsTable(table) {
			known = vctx.Selection.ContainsColumn(table, col.Column)
		} else {
			known = vctx.Selection.ContainsColumn("", col.Column)
		}
		if !known {
			issues = append(issues, models.ValidationIssue{
				Code:     models.IssueUnknownColumn,
				Message:  fmt.Sprintf("column %s.%s is not part of the provided schema", col.Qualifier, col.Column),
				Severity: models.SeverityError,
			})
		}
	}

	if len(issues) > 0 {
		return failResult(models.LayerSchemaCompliance, issues)
	}
	return passResult(models.LayerSchemaCompliance, nil)
}

// ----------------------------------------------------------------------------
// Semantic
// ----------------------------------------------------------------------------

// semanticLayer checks that the query's shape matches what the profile says
// the user asked for: aggregates for aggregation questions, time bucketing
// for trends, entity and time filters where the question pinned them down.
type semanticLayer struct{}

func (l *semanticLayer) Layer() models.ValidationLayer { return models.LayerSemantic }

func (l *semanticLayer) Validate(ctx context.Context, vctx *validationContext) models.ValidationResult {
	var issues []models.ValidationIssue
	profile := vctx.Profile
	statement := vctx.SQL

	switch profile.Intent {
	case models.IntentAggregation:
		if !sqlutil.ContainsAggregate(statement) {
			issues = append(issues, models.ValidationIssue{
				Code:     models.IssueMissingAggregation,
				Message:  "question asks for an aggregate but the query computes none",
				Severity: models.SeverityError,
			})
		} else if mixesAggregatesWithPlainColumns(statement) {
			issues = append(issues, models.ValidationIssue{
				Code:     models.IssueMissingGroupBy,
				Message:  "query mixes aggregates with plain columns but has no GROUP BY",
				Severity: models.SeverityError,
			})
		}
	case models.IntentTrend:
		if !hasTimeBucketing(statement, vctx.Selection) {
			issues = append(issues, models.ValidationIssue{
				Code:     models.IssueMissingTimeOrdering,
				Message:  "trend question needs a time column in GROUP BY or ORDER BY",
				Severity: models.SeverityError,
			})
		}
	case models.IntentComparison:
		if _, grouped := sqlutil.GroupByClause(statement); !grouped && !sqlutil.ContainsCaseExpression(statement) {
			issues = append(issues, models.ValidationIssue{
				Code:     models.IssueMissingComparison,
				Message:  "comparison question needs a GROUP BY or a CASE split to compare anything",
				Severity: models.SeverityError,
			})
		}
	}

	// WhereClause strips literal contents, so filter values are checked
	// against the extracted literals instead.
	where, hasWhere := sqlutil.WhereClause(statement)
	lowerWhere := strings.ToLower(where)
	literals := lowerLiterals(statement)

	for _, entity := range profile.Entities {
		if entity.LiteralValue == "" || !entity.IsMapped() {
			continue
		}
		if !hasWhere || !literalsContain(literals, entity.LiteralValue) {
			issues = append(issues, models.ValidationIssue{
				Code:     models.IssueMissingEntityFilter,
				Message:  fmt.Sprintf("question names %s but the query does not filter on '%s'", entity.Name, entity.LiteralValue),
				Severity: models.SeverityError,
			})
		}
	}

	switch {
	case profile.HasTimeContext():
		if !hasTimeFilter(lowerWhere, hasWhere, literals, profile.TimeContext, vctx.Selection) {
			issues = append(issues, models.ValidationIssue{
				Code: models.IssueMissingTimeFilter,
				Message: fmt.Sprintf("question resolves to %s through %s but the query has no date filter",
					profile.TimeContext.StartDate.Format("2006-01-02"),
					profile.TimeContext.EndDate.Format("2006-01-02")),
				Severity: models.SeverityError,
			})
		}
		if profile.TimeAmbiguous {
			issues = append(issues, models.ValidationIssue{
				Code:     models.IssueDefaultTimeWindow,
				Message:  fmt.Sprintf("time scope was vague; an %s window was applied", profile.TimeContext.Expression),
				Severity: models.SeverityInfo,
			})
		}
	case profile.TimeAmbiguous:
		issues = append(issues, models.ValidationIssue{
			Code:     models.IssueAmbiguousTime,
			Message:  "the question's time scope is ambiguous; no date filter was derived",
			Severity: models.SeverityWarning,
		})
	}

	for _, entity := range profile.Entities {
		if !entity.IsMapped() {
			issues = append(issues, models.ValidationIssue{
				Code:     models.IssueUnmappedEntity,
				Message:  fmt.Sprintf("term %q could not be linked to the schema", entity.Name),
				Severity: models.SeverityInfo,
			})
		}
	}

	if hasErrorIssue(issues) {
		return failResult(models.LayerSemantic, issues)
	}
	return passResult(models.LayerSemantic, issues)
}

// mixesAggregatesWithPlainColumns reports a SELECT list that combines
// aggregate and non-aggregate expressions without a GROUP BY.
func mixesAggregatesWithPlainColumns(statement string) bool {
	if _, grouped := sqlutil.GroupByClause(statement); grouped {
		return false
	}
	columns, err := sqlutil.ParseSelectColumns(statement)
	if err != nil || len(columns) == 0 {
		return false
	}
	var plain, aggregated bool
	for _, col := range columns {
		if sqlutil.ContainsAggregate(col.Expr) {
			aggregated = true
		} else {
			plain = true
		}
	}
	return plain && aggregated
}

func hasTimeBucketing(statement string, selection *models.SchemaSelection) bool {
	groupBy, _ := sqlutil.GroupByClause(statement)
	orderBy, _ := sqlutil.OrderByClause(statement)
	clauses := strings.ToLower(groupBy + " " + orderBy)
	if clauses == " " {
		return false
	}

	for _, fn := range []string{"date_trunc", "extract(", "datepart", "to_char"} {
		if strings.Contains(clauses, fn) {
			return true
		}
	}
	for _, col := range temporalColumns(selection) {
		if strings.Contains(clauses, col) {
			return true
		}
	}
	return false
}

func hasTimeFilter(lowerWhere string, hasWhere bool, literals []string, tc *models.TimeContext, selection *models.SchemaSelection) bool {
	if !hasWhere {
		return false
	}
	if literalsContain(literals, tc.StartDate.Format("2006-01-02")) ||
		literalsContain(literals, tc.EndDate.Format("2006-01-02")) {
		return true
	}
	for _, fn := range []string{"current_date", "now()", "getdate()", "date_trunc", "dateadd"} {
		if strings.Contains(lowerWhere, fn) {
			return true
		}
	}
	for _, col := range temporalColumns(selection) {
		if strings.Contains(lowerWhere, col) {
			return true
		}
	}
	return false
}

func lowerLiterals(statement string) []string {
	literals := sqlutil.ExtractStringLiterals(statement)
	out := make([]string, len(literals))
	for i, literal := range literals {
		out[i] = strings.ToLower(literal)
	}
	return out
}

func literalsContain(literals []string, value string) bool {
	value = strings.ToLower(value)
	for _, literal := range literals {
		if strings.Contains(literal, value) {
			return true
		}
	}
	return false
}

// temporalColumns lists the lowercase names of selected columns with a
// date or time data type.
func temporalColumns(selection *models.SchemaSelection) []string {
	var out []string
	for i := range selection.Tables {
		for _, col := range selection.Tables[i].Columns {
			dataType := strings.ToLower(col.DataType)
			if strings.Contains(dataType, "date") || strings.Contains(dataType, "time") {
				out = append(out, strings.ToLower(col.Name))
			}
		}
	}
	return out
}

// ----------------------------------------------------------------------------
// Business logic
// ----------------------------------------------------------------------------

// businessLogicLayer enforces curated rules: mandatory filters on guarded
// tables and row caps on raw row dumps.
type businessLogicLayer struct{}

func (l *businessLogicLayer) Layer() models.ValidationLayer { return models.LayerBusinessLogic }

func (l *businessLogicLayer) Validate(ctx context.Context, vctx *validationContext) models.ValidationResult {
	var issues []models.ValidationIssue

	referenced := referencedTableNames(vctx.SQL)
	where, _ := sqlutil.WhereClause(vctx.SQL)
	lowerWhere := strings.ToLower(where)

	for i := range vctx.Rules {
		rule := &vctx.Rules[i]
		if !ruleTriggered(rule, referenced) {
			continue
		}
		if rule.RequiredFilterColumn != "" && !strings.Contains(lowerWhere, strings.ToLower(rule.RequiredFilterColumn)) {
			issues = append(issues, models.ValidationIssue{
				Code:     models.IssueMissingRequiredFilter,
				Message:  fmt.Sprintf("rule %s requires a filter on %s", rule.Name, rule.RequiredFilterColumn),
				Severity: ruleSeverity(rule),
			})
		}
		// Row limits only matter for row dumps; aggregates bound their own
		// output.
		if rule.RequireRowLimit && !sqlutil.ContainsAggregate(vctx.SQL) && !sqlutil.HasLimit(vctx.SQL) {
			issues = append(issues, models.ValidationIssue{
				Code:     models.IssueMissingRowLimit,
				Message:  fmt.Sprintf("rule %s requires an explicit row limit", rule.Name),
				Severity: ruleSeverity(rule),
			})
		}
	}

	if hasErrorIssue(issues) {
		return failResult(models.LayerBusinessLogic, issues)
	}
	return passResult(models.LayerBusinessLogic, issues)
}

func referencedTableNames(statement string) []string {
	refs := sqlutil.ExtractTableRefs(statement)
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref.Schema != "" {
			out = append(out, ref.Schema+"."+ref.Name)
		}
		out = append(out, ref.Name)
	}
	return out
}

func ruleTriggered(rule *models.BusinessRule, referenced []string) bool {
	if rule.AppliesTo == "" {
		return true
	}
	for _, name := range referenced {
		if rule.AppliesToTable(name) {
			return true
		}
	}
	return false
}

func ruleSeverity(rule *models.BusinessRule) models.IssueSeverity {
	if rule.Severity == models.RuleSeverityWarning {
		return models.SeverityWarning
	}
	return models.SeverityError
}

// ----------------------------------------------------------------------------
// Dry run
// ----------------------------------------------------------------------------

// dryRunLayer submits the statement to the sandbox planner. Without a
// sandbox the layer reports itself skipped; require turns any
// unavailability into a failure instead.
type dryRunLayer struct {
	explainer datasource.Explainer
	timeout   time.Duration
	maxRows   int64
	require   bool
	logger    *zap.Logger
}

func (l *dryRunLayer) Layer() models.ValidationLayer { return models.LayerDryRun }

func (l *dryRunLayer) Validate(ctx context.Context, vctx *validationContext) models.ValidationResult {
	if l.explainer == nil {
		return l.skipped("no sandbox configured")
	}

	result, err := l.explainer.Explain(ctx, vctx.SQL, l.timeout)
	if err != nil {
		var syntaxErr *datasource.SyntaxError
		if errors.As(err, &syntaxErr) {
			return failResult(models.LayerDryRun, []models.ValidationIssue{{
				Code:     models.IssueSyntaxError,
				Message:  syntaxErr.Error(),
				Severity: models.SeverityError,
			}})
		}
		if errors.Is(err, datasource.ErrUnavailable) {
			return l.skipped(err.Error())
		}
		// Anything else the engine said about the query is worth feeding
		// back; the model may be able to work around it.
		return failResult(models.LayerDryRun, []models.ValidationIssue{{
			Code:     models.IssueSyntaxError,
			Message:  err.Error(),
			Severity: models.SeverityError,
		}})
	}

	var issues []models.ValidationIssue
	if l.maxRows > 0 && result.EstimatedRows > l.maxRows {
		issues = append(issues, models.ValidationIssue{
			Code:     models.IssueRowEstimateExceeded,
			Message:  fmt.Sprintf("plan estimates %d rows against a cap of %d; narrow the filters", result.EstimatedRows, l.maxRows),
			Severity: models.SeverityWarning,
		})
	}
	for _, hint := range result.Hints {
		issues = append(issues, models.ValidationIssue{
			Code:     models.IssuePerformanceHint,
			Message:  hint,
			Severity: models.SeverityInfo,
		})
	}
	return passResult(models.LayerDryRun, issues)
}

func (l *dryRunLayer) skipped(reason string) models.ValidationResult {
	if l.require {
		return failResult(models.LayerDryRun, []models.ValidationIssue{{
			Code:     models.IssueDryRunSkipped,
			Message:  "dry-run is required but the sandbox is unavailable: " + reason,
			Severity: models.SeverityError,
		}})
	}
	l.logger.Warn("Dry-run skipped", zap.String("reason", reason))
	return models.ValidationResult{
		Layer:   models.LayerDryRun,
		Passed:  true,
		Skipped: true,
		Issues: []models.ValidationIssue{{
			Code:     models.IssueDryRunSkipped,
			Message:  "dry-run skipped: " + reason,
			Severity: models.SeverityInfo,
		}},
		Score: skippedLayerScore,
	}
}

// ----------------------------------------------------------------------------
// Result helpers
// ----------------------------------------------------------------------------

func passResult(layer models.ValidationLayer, issues []models.ValidationIssue) models.ValidationResult {
	score := 1.0
	for _, issue := range issues {
		if issue.Severity == models.SeverityWarning {
			score = passWithFindingsScore
			break
		}
	}
	return models.ValidationResult{Layer: layer, Passed: true, Issues: issues, Score: score}
}

func failResult(layer models.ValidationLayer, issues []models.ValidationIssue) models.ValidationResult {
	return models.ValidationResult{Layer: layer, Passed: false, Issues: issues}
}

func hasErrorIssue(issues []models.ValidationIssue) bool {
	for _, issue := range issues {
		if issue.Severity == models.SeverityError {
			return true
		}
	}
	return false
}

func allPassed(results []models.ValidationResult) bool {
	if len(results) == 0 {
		return false
	}
	for i := range results {
		if !results[i].Passed {
			return false
		}
	}
	return true
}

func collectIssues(results []models.ValidationResult) []models.ValidationIssue {
	var out []models.ValidationIssue
	for i := range results {
		out = append(out, results[i].Issues...)
	}
	return out
}

func failedResults(results []models.ValidationResult) []models.ValidationResult {
	var out []models.ValidationResult
	for i := range results {
		if !results[i].Passed {
			out = append(out, results[i])
		}
	}
	return out
}

func securityFailure(results []models.ValidationResult) *models.ValidationResult {
	for i := range results {
		if results[i].Layer == models.LayerSecurity && !results[i].Passed {
			return &results[i]
		}
	}
	return nil
}

// hasCorrectableIssue reports whether any failure is something the model
// could plausibly fix. A dry-run failure caused purely by sandbox
// unavailability is not; retrying generation against a dead sandbox only
// burns attempts.
func hasCorrectableIssue(results []models.ValidationResult) bool {
	for i := range results {
		if results[i].Passed {
			continue
		}
		for _, issue := range results[i].Issues {
			if issue.Severity == models.SeverityError && issue.Code != models.IssueDryRunSkipped {
				return true
			}
		}
	}
	return false
}

func meanScore(results []models.ValidationResult) float64 {
	if len(results) == 0 {
		return 0
	}
	var sum float64
	for i := range results {
		sum += results[i].Score
	}
	return sum / float64(len(results))
}

func issueMessages(issues []models.ValidationIssue) []string {
	out := make([]string, 0, len(issues))
	for _, issue := range issues {
		out = append(out, issue.Code+": "+issue.Message)
	}
	return out
}
