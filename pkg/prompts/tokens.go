package prompts

// Token-to-char ratio: ~4 chars per token (conservative estimate for English
// prose and SQL).
const charsPerToken = 4

// EstimateTokens approximates the token count of a prompt fragment without
// calling a tokenizer. Rounds up so budget checks fail closed.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}
