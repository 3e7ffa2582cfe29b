package prompts

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/text2sql/pkg/dictionary"
	"github.com/ekaya-inc/text2sql/pkg/models"
)

// RenderBusinessContext renders the interpreted question: intent, domain,
// linked terms and the resolved time range. Unmapped terms are listed by name
// only, never with a schema reference.
func RenderBusinessContext(profile *models.BusinessContextProfile) string {
	var b strings.Builder

	b.WriteString("## Business Context\n\n")
	b.WriteString(fmt.Sprintf("- **Intent**: %s\n", profile.Intent))
	b.WriteString(fmt.Sprintf("- **Domain**: %s\n", profile.Domain.Name))

	if mapped := profile.MappedEntities(); len(mapped) > 0 {
		b.WriteString("- **Recognized terms**:\n")
		for _, e := range mapped {
			b.WriteString(fmt.Sprintf("  - %s\n", formatEntity(e)))
		}
	}

	var unmapped []string
	for _, e := range profile.Entities {
		if !e.IsMapped() {
			unmapped = append(unmapped, e.Name)
		}
	}
	if len(unmapped) > 0 {
		b.WriteString(fmt.Sprintf("- **Unrecognized terms**: %s\n", strings.Join(unmapped, ", ")))
	}

	if profile.HasTimeContext() {
		tc := profile.TimeContext
		b.WriteString(fmt.Sprintf("- **Time range**: %s to %s inclusive",
			tc.StartDate.Format("2006-01-02"), tc.EndDate.Format("2006-01-02")))
		var details []string
		if tc.Granularity != "" {
			details = append(details, fmt.Sprintf("%s granularity", tc.Granularity))
		}
		if tc.Expression != "" {
			details = append(details, fmt.Sprintf("from %q", tc.Expression))
		}
		if len(details) > 0 {
			b.WriteString(" (" + strings.Join(details, ", ") + ")")
		}
		b.WriteString("\n")
	} else if profile.TimeAmbiguous {
		b.WriteString("- **Time range**: the question is vague about time; do not invent a date filter\n")
	}

	b.WriteString("\n")
	return b.String()
}

func formatEntity(e models.BusinessEntity) string {
	target := e.MappedTable
	if e.MappedColumn != "" {
		target += "." + e.MappedColumn
	}
	s := fmt.Sprintf("%q means %s", e.Name, target)
	if e.LiteralValue != "" {
		s += fmt.Sprintf(" = '%s'", e.LiteralValue)
	}
	return s
}

// RenderSchema renders the selected tables and their pruned column lists.
func RenderSchema(selection *models.SchemaSelection) string {
	var b strings.Builder

	b.WriteString("## Available Schema\n\n")
	b.WriteString("Only the tables and columns below exist. Do not reference anything else.\n\n")

	for i := range selection.Tables {
		table := &selection.Tables[i]
		b.WriteString(fmt.Sprintf("### %s\n", table.QualifiedName()))
		if table.BusinessPurpose != "" {
			b.WriteString(table.BusinessPurpose + "\n")
		}
		b.WriteString("Columns:\n")
		for _, col := range table.Columns {
			flags := ""
			if col.IsKey {
				flags = " [key]"
			}
			meaning := ""
			if col.BusinessMeaning != "" {
				meaning = " - " + col.BusinessMeaning
			}
			samples := ""
			if len(col.SampleValues) > 0 {
				samples = fmt.Sprintf(" (e.g. %s)", strings.Join(col.SampleValues, ", "))
			}
			b.WriteString(fmt.Sprintf("- %s (%s)%s%s%s\n", col.Name, col.DataType, flags, meaning, samples))
		}
		b.WriteString("\n")
	}

	return b.String()
}

// RenderRelationships renders the declared join edges between selected
// tables. Returns the empty string when there are none.
func RenderRelationships(fks []models.ForeignKey) string {
	if len(fks) == 0 {
		return ""
	}
	var b strings.Builder

	b.WriteString("## Relationships\n\n")
	b.WriteString("Join tables only along these declared keys:\n")
	for _, fk := range fks {
		b.WriteString(fmt.Sprintf("- %s.%s → %s.%s\n",
			fk.SourceTable, fk.SourceColumn, fk.TargetTable, fk.TargetColumn))
	}

	b.WriteString("\n")
	return b.String()
}

// RenderRules renders the business rules the generated SQL must honor.
// Returns the empty string when there are none.
func RenderRules(rules []models.BusinessRule) string {
	if len(rules) == 0 {
		return ""
	}
	var b strings.Builder

	b.WriteString("## Business Rules\n\n")
	for _, r := range rules {
		b.WriteString(fmt.Sprintf("- **%s**: %s", r.Name, r.Description))
		if r.RequiredFilterColumn != "" {
			if r.AppliesTo != "" {
				b.WriteString(fmt.Sprintf(" Queries touching %s must filter on %s.", r.AppliesTo, r.RequiredFilterColumn))
			} else {
				b.WriteString(fmt.Sprintf(" Always filter on %s.", r.RequiredFilterColumn))
			}
		}
		if r.RequireRowLimit {
			b.WriteString(" Cap row-level results with an explicit row limit.")
		}
		if r.Severity == models.RuleSeverityWarning {
			b.WriteString(" (advisory)")
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	return b.String()
}

// RenderGlossary renders curated term definitions, including the defining SQL
// fragment for terms that carry one. Returns the empty string when there are
// no terms.
func RenderGlossary(terms []dictionary.Term) string {
	if len(terms) == 0 {
		return ""
	}
	var b strings.Builder

	b.WriteString("## Glossary\n\n")
	for _, t := range terms {
		b.WriteString(fmt.Sprintf("- **%s**", t.Term))
		if t.Definition != "" {
			b.WriteString(": " + t.Definition)
		}
		if t.DefiningSQL != "" {
			b.WriteString(fmt.Sprintf(" Defined in SQL as: `%s`", t.DefiningSQL))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	return b.String()
}

// RenderExamples renders curated question/SQL pairs as few-shot examples.
// Returns the empty string when there are none.
func RenderExamples(examples []models.QueryExample) string {
	if len(examples) == 0 {
		return ""
	}
	var b strings.Builder

	b.WriteString("## Examples\n\n")
	for _, ex := range examples {
		b.WriteString(fmt.Sprintf("Question: %s\n", ex.Question))
		b.WriteString("```sql\n")
		b.WriteString(strings.TrimRight(ex.SQL, "\n"))
		b.WriteString("\n```\n\n")
	}

	return b.String()
}
