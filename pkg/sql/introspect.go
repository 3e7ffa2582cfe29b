package sql

import (
	"regexp"
	"strings"
)

// TableRef is a table referenced in a FROM or JOIN clause.
type TableRef struct {
	Schema string // Optional schema qualifier, lowercased
	Name   string // Table name, lowercased
	Alias  string // Alias as written, lowercased, empty when none
}

// ColumnRef is a qualified column reference such as u.email. The qualifier
// is the table name or alias exactly as the statement wrote it; resolving
// it against the tables in play is the caller's job.
type ColumnRef struct {
	Qualifier string
	Column    string
}

var (
	// tableRefPattern captures the identifier after FROM or JOIN plus an
	// optional alias. Subqueries start with a paren and do not match; their
	// inner FROM clauses are picked up on their own.
	tableRefPattern = regexp.MustCompile(
		`(?i)\b(?:from|join)\s+("?[a-zA-Z_][\w$]*"?(?:\."?[a-zA-Z_][\w$]*"?)?)(?:\s+(?:as\s+)?([a-zA-Z_][\w$]*))?`)

	// cteNamePattern captures names bound by a WITH clause so they can be
	// excluded from table extraction.
	cteNamePattern = regexp.MustCompile(
		`(?i)(?:\bwith\s+(?:recursive\s+)?|,\s*)([a-zA-Z_][\w$]*)\s+as\s*\(`)

	qualifiedColumnPattern = regexp.MustCompile(`\b([a-zA-Z_][\w$]*)\.([a-zA-Z_][\w$]*)\b`)

	groupByPattern = regexp.MustCompile(`(?is)\bgroup\s+by\s+(.*?)(?:\bhaving\b|\border\s+by\b|\blimit\b|\boffset\b|\bfetch\b|$)`)
	orderByPattern = regexp.MustCompile(`(?is)\border\s+by\s+(.*?)(?:\blimit\b|\boffset\b|\bfetch\b|$)`)
	wherePattern   = regexp.MustCompile(`(?is)\bwhere\b(.*?)(?:\bgroup\s+by\b|\border\s+by\b|\blimit\b|\boffset\b|\bfetch\b|\bwindow\b|$)`)
	limitPattern   = regexp.MustCompile(`(?i)\blimit\s+\d+|\bfetch\s+first\s+\d+|\btop\s+\d+`)
	casePattern    = regexp.MustCompile(`(?i)\bcase\s+when\b`)
)

// reservedAfterTable lists keywords that can follow a table name in alias
// position but are never aliases themselves.
var reservedAfterTable = map[string]struct{}{
	"on": {}, "using": {}, "where": {}, "join": {}, "inner": {}, "left": {},
	"right": {}, "full": {}, "cross": {}, "natural": {}, "outer": {},
	"group": {}, "order": {}, "limit": {}, "offset": {}, "having": {},
	"union": {}, "intersect": {}, "except": {}, "fetch": {}, "for": {},
	"window": {}, "as": {},
}

// ExtractTableRefs returns the tables referenced in FROM and JOIN clauses.
// Names bound by a WITH clause are excluded since they are not real tables,
// and duplicate references collapse to the first occurrence. Comma-separated
// FROM lists are not parsed; generated queries are expected to use explicit
// JOINs.
func ExtractTableRefs(sqlQuery string) []TableRef {
	scrubbed := scrubSQL(sqlQuery)

	ctes := make(map[string]struct{})
	for _, m := range cteNamePattern.FindAllStringSubmatch(scrubbed, -1) {
		ctes[strings.ToLower(m[1])] = struct{}{}
	}

	var refs []TableRef
	seen := make(map[string]struct{})
	for _, m := range tableRefPattern.FindAllStringSubmatch(scrubbed, -1) {
		name := strings.ToLower(strings.ReplaceAll(m[1], `"`, ""))

		var schema string
		if idx := strings.LastIndex(name, "."); idx != -1 {
			schema, name = name[:idx], name[idx+1:]
		}

		if _, isCTE := ctes[name]; isCTE {
			continue
		}

		alias := strings.ToLower(m[2])
		if _, reserved := reservedAfterTable[alias]; reserved {
			alias = ""
		}

		key := schema + "." + name + "/" + alias
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		refs = append(refs, TableRef{Schema: schema, Name: name, Alias: alias})
	}

	return refs
}

// ExtractColumnRefs returns qualified column references like u.email in
// order of first appearance. Unqualified columns cannot be attributed to a
// table without full parsing, so only dotted references are reported.
// Schema-qualified table names from FROM and JOIN clauses are excluded so
// public.players is not misread as a column players on a table public.
func ExtractColumnRefs(sqlQuery string) []ColumnRef {
	scrubbed := scrubSQL(sqlQuery)

	// schema.table tokens that must not be reported as column references
	tableTokens := make(map[string]struct{})
	for _, ref := range ExtractTableRefs(sqlQuery) {
		if ref.Schema != "" {
			tableTokens[ref.Schema+"."+ref.Name] = struct{}{}
		}
	}

	var refs []ColumnRef
	seen := make(map[string]struct{})
	for _, m := range qualifiedColumnPattern.FindAllStringSubmatch(scrubbed, -1) {
		qualifier := strings.ToLower(m[1])
		column := strings.ToLower(m[2])

		token := qualifier + "." + column
		if _, isTable := tableTokens[token]; isTable {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}

		refs = append(refs, ColumnRef{Qualifier: qualifier, Column: column})
	}

	return refs
}

// GroupByClause returns the GROUP BY expression list if present.
func GroupByClause(sqlQuery string) (string, bool) {
	return firstClauseMatch(groupByPattern, sqlQuery)
}

// OrderByClause returns the ORDER BY expression list if present.
func OrderByClause(sqlQuery string) (string, bool) {
	return firstClauseMatch(orderByPattern, sqlQuery)
}

// WhereClause returns the text of the first WHERE clause if present. For
// nested queries this is the textually first clause, which is enough for
// the presence checks the semantic layer performs.
func WhereClause(sqlQuery string) (string, bool) {
	return firstClauseMatch(wherePattern, sqlQuery)
}

func firstClauseMatch(pattern *regexp.Regexp, sqlQuery string) (string, bool) {
	m := pattern.FindStringSubmatch(scrubSQL(sqlQuery))
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// HasLimit reports whether the query bounds its result rows with LIMIT,
// FETCH FIRST, or TOP.
func HasLimit(sqlQuery string) bool {
	return limitPattern.MatchString(scrubSQL(sqlQuery))
}

// ContainsCaseExpression reports whether the query uses a CASE WHEN
// expression.
func ContainsCaseExpression(sqlQuery string) bool {
	return casePattern.MatchString(scrubSQL(sqlQuery))
}

// scrubSQL prepares a statement for pattern scanning: string literal
// contents are dropped and comments removed, while double-quoted
// identifiers and everything else stay in place. A literal like
// 'from mars' can then never satisfy a keyword pattern.
func scrubSQL(sqlQuery string) string {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
		stateLineComment
		stateBlockComment
	)

	var b strings.Builder
	b.Grow(len(sqlQuery))

	state := stateNormal
	runes := []rune(sqlQuery)

	for i := 0; i < len(runes); i++ {
		ch := runes[i]

		switch state {
		case stateNormal:
			switch {
			case ch == '\'':
				state = stateSingleQuote
				b.WriteRune(ch)
			case ch == '"':
				state = stateDoubleQuote
				b.WriteRune(ch)
			case ch == '-' && i+1 < len(runes) && runes[i+1] == '-':
				state = stateLineComment
				i++
			case ch == '/' && i+1 < len(runes) && runes[i+1] == '*':
				state = stateBlockComment
				i++
			default:
				b.WriteRune(ch)
			}
		case stateSingleQuote:
			switch {
			case ch == '\\' && i+1 < len(runes) && runes[i+1] == '\'':
				i++
			case ch == '\'':
				// A doubled quote stays inside the literal.
				if i+1 < len(runes) && runes[i+1] == '\'' {
					i++
					continue
				}
				state = stateNormal
				b.WriteRune(ch)
			}
		case stateDoubleQuote:
			b.WriteRune(ch)
			if ch == '"' {
				state = stateNormal
			}
		case stateLineComment:
			if ch == '\n' {
				state = stateNormal
				b.WriteRune(ch)
			}
		case stateBlockComment:
			if ch == '*' && i+1 < len(runes) && runes[i+1] == '/' {
				state = stateNormal
				i++
			}
		}
	}

	return b.String()
}
