package models

// PromptContext carries the rendered prompt sections for one request.
// Sections are markdown fragments in their final order; an empty section
// was either not applicable or was trimmed to fit the token budget.
type PromptContext struct {
	Question        string
	BusinessContext string
	Schema          string
	Relationships   string
	Rules           string
	Glossary        string
	Examples        string

	// EstimatedTokens is the token estimate for the assembled generation
	// prompt, already spent against the request budget.
	EstimatedTokens int
}
