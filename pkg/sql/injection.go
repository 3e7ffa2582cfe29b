package sql

import (
	"sort"
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult contains the result of an injection check on an input value.
type InjectionCheckResult struct {
	IsSQLi      bool   // True if SQL injection pattern detected
	Fingerprint string // libinjection fingerprint of the detected pattern
	Name        string // Name of the input that failed the check
	Value       string // The value that was checked
}

// CheckValueForInjection uses libinjection to detect SQL injection patterns
// in a free-text value before it reaches prompt assembly or a generated
// statement. Inputs here are the raw user question and string literals
// lifted out of generated SQL, so everything is a string.
//
// Returns nil if no injection is detected, or an InjectionCheckResult with
// details about the detected pattern.
//
// Example:
//
//	// Safe value - no injection
//	result := CheckValueForInjection("question", "revenue by country last month")
//	// result == nil
//
//	// Injection attempt detected
//	result := CheckValueForInjection("literal", "'; DROP TABLE users--")
//	// result.IsSQLi == true
//	// result.Fingerprint == "s&1c" (or similar)
func CheckValueForInjection(name, value string) *InjectionCheckResult {
	if value == "" {
		return nil
	}

	isSQLi, fingerprint := libinjection.IsSQLi(value)
	if isSQLi {
		return &InjectionCheckResult{
			IsSQLi:      true,
			Fingerprint: string(fingerprint),
			Name:        name,
			Value:       value,
		}
	}

	return nil
}

// CheckInputs scans a set of named values for SQL injection attempts.
//
// Returns an InjectionCheckResult for each value that failed the check,
// sorted by input name so callers get deterministic output from map
// iteration. Returns an empty slice when all values are clean.
func CheckInputs(inputs map[string]string) []*InjectionCheckResult {
	var results []*InjectionCheckResult
	for name, value := range inputs {
		if result := CheckValueForInjection(name, value); result != nil {
			results = append(results, result)
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Name < results[j].Name
	})

	return results
}

// ExtractStringLiterals returns the contents of single-quoted string
// literals in order of appearance. Doubled quotes ('') and backslash
// escapes (\') are unescaped to a single quote so the returned values
// match what the database would see.
func ExtractStringLiterals(sqlQuery string) []string {
	var literals []string
	var current strings.Builder
	inLiteral := false

	runes := []rune(sqlQuery)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]

		if !inLiteral {
			if ch == '\'' {
				inLiteral = true
				current.Reset()
			}
			continue
		}

		switch {
		case ch == '\\' && i+1 < len(runes) && runes[i+1] == '\'':
			current.WriteRune('\'')
			i++
		case ch == '\'':
			if i+1 < len(runes) && runes[i+1] == '\'' {
				current.WriteRune('\'')
				i++
				continue
			}
			inLiteral = false
			literals = append(literals, current.String())
		default:
			current.WriteRune(ch)
		}
	}

	return literals
}
