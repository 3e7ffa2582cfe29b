package prompts

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/text2sql/pkg/models"
)

// BuildCorrectionPrompt renders a repair request for SQL that failed
// validation. The failing SQL and the findings come first, then the original
// context so the model re-derives the query instead of patching blind.
func BuildCorrectionPrompt(pctx *models.PromptContext, priorSQL string, results []models.ValidationResult) string {
	var prompt strings.Builder

	prompt.WriteString("# SQL Correction Request\n\n")
	prompt.WriteString("The SQL below failed validation. Fix every issue and return a corrected query.\n\n")

	prompt.WriteString("## Question\n\n")
	prompt.WriteString(pctx.Question + "\n\n")

	prompt.WriteString("## Failing SQL\n\n")
	prompt.WriteString("```sql\n")
	prompt.WriteString(strings.TrimRight(priorSQL, "\n"))
	prompt.WriteString("\n```\n\n")

	prompt.WriteString("## Validation Issues\n\n")
	for _, res := range results {
		for _, issue := range res.Issues {
			prompt.WriteString(fmt.Sprintf("- [%s] %s: %s\n", res.Layer, issue.Code, issue.Message))
		}
	}
	prompt.WriteString("\n")

	writeSections(&prompt, pctx)
	writeOutputFormat(&prompt)

	return prompt.String()
}
