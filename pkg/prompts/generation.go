package prompts

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/text2sql/pkg/models"
)

func dialectName(engine string) string {
	switch engine {
	case "postgres":
		return "PostgreSQL"
	case "mssql":
		return "Microsoft SQL Server (T-SQL)"
	default:
		return "ANSI SQL"
	}
}

// BuildGenerationSystemMessage returns the system message for SQL generation
// and correction. The engine selects the dialect named in the message; pass
// the empty string when no sandbox is configured.
func BuildGenerationSystemMessage(engine string) string {
	return fmt.Sprintf("You are an expert %s analyst. You translate business questions into a single correct, efficient SQL query using only the schema you are given.", dialectName(engine))
}

// BuildGenerationPrompt renders the assembled context into the generation
// prompt. Section order is fixed; sections the assembler trimmed are simply
// absent.
func BuildGenerationPrompt(pctx *models.PromptContext) string {
	var prompt strings.Builder

	prompt.WriteString("# SQL Generation Request\n\n")
	prompt.WriteString("Translate the business question below into one SQL query.\n\n")

	prompt.WriteString("## Question\n\n")
	prompt.WriteString(pctx.Question + "\n\n")

	writeSections(&prompt, pctx)
	writeOutputFormat(&prompt)

	return prompt.String()
}

func writeSections(b *strings.Builder, pctx *models.PromptContext) {
	for _, section := range []string{
		pctx.BusinessContext,
		pctx.Schema,
		pctx.Relationships,
		pctx.Rules,
		pctx.Glossary,
		pctx.Examples,
	} {
		if section != "" {
			b.WriteString(section)
		}
	}
}

func writeOutputFormat(b *strings.Builder) {
	b.WriteString("## Output Format\n\n")
	b.WriteString("Respond with exactly one SQL SELECT statement.\n")
	b.WriteString("- Reference only tables and columns from Available Schema.\n")
	b.WriteString("- Join only along the declared relationships.\n")
	b.WriteString("- Apply the time range from Business Context when one is given.\n")
	b.WriteString("- Honor every business rule.\n")
	b.WriteString("- No INSERT, UPDATE, DELETE, DDL or multiple statements.\n\n")
	b.WriteString("Return ONLY the SQL, no additional text.\n")
}
