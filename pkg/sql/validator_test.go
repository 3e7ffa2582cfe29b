package sql

import (
	"testing"
)

func TestValidateAndNormalize_ValidQueries(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple select without semicolon",
			input:    "SELECT 1",
			expected: "SELECT 1",
		},
		{
			name:     "simple select with trailing semicolon",
			input:    "SELECT 1;",
			expected: "SELECT 1",
		},
		{
			name:     "select with trailing semicolon and whitespace",
			input:    "SELECT 1;  ",
			expected: "SELECT 1",
		},
		{
			name:     "select with leading and trailing whitespace",
			input:    "  SELECT 1  ",
			expected: "SELECT 1",
		},
		{
			name:     "select from table",
			input:    "SELECT * FROM users",
			expected: "SELECT * FROM users",
		},
		{
			name:     "select with where clause",
			input:    "SELECT * FROM users WHERE id = 1;",
			expected: "SELECT * FROM users WHERE id = 1",
		},
		{
			name:     "semicolon inside single quoted string",
			input:    "SELECT * FROM users WHERE name = 'test;test'",
			expected: "SELECT * FROM users WHERE name = 'test;test'",
		},
		{
			name:     "semicolon inside double quoted identifier",
			input:    `SELECT * FROM "table;name"`,
			expected: `SELECT * FROM "table;name"`,
		},
		{
			name:     "SQL standard escaped single quote",
			input:    "SELECT * FROM users WHERE name = 'O''Brien'",
			expected: "SELECT * FROM users WHERE name = 'O''Brien'",
		},
		{
			name:     "semicolon inside string with trailing semicolon",
			input:    "SELECT * FROM users WHERE name = 'test;test';",
			expected: "SELECT * FROM users WHERE name = 'test;test'",
		},
		{
			name:     "complex query with joins",
			input:    "SELECT u.*, o.* FROM users u JOIN orders o ON u.id = o.user_id;",
			expected: "SELECT u.*, o.* FROM users u JOIN orders o ON u.id = o.user_id",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "whitespace only",
			input:    "   ",
			expected: "",
		},
		{
			name:     "query with newlines",
			input:    "SELECT *\nFROM users\nWHERE id = 1;",
			expected: "SELECT *\nFROM users\nWHERE id = 1",
		},
		{
			name:     "update query",
			input:    "UPDATE users SET name = 'John' WHERE id = 1;",
			expected: "UPDATE users SET name = 'John' WHERE id = 1",
		},
		{
			name:     "insert query",
			input:    "INSERT INTO users (name) VALUES ('John');",
			expected: "INSERT INTO users (name) VALUES ('John')",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateAndNormalize(tt.input)
			if result.Error != nil {
				t.Errorf("unexpected error: %v", result.Error)
			}
			if result.NormalizedSQL != tt.expected {
				t.Errorf("got %q, want %q", result.NormalizedSQL, tt.expected)
			}
		})
	}
}

func TestValidateAndNormalize_MultipleStatements(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "two selects with semicolon separator",
			input: "SELECT 1; SELECT 2",
		},
		{
			name:  "two selects with semicolon separator and trailing",
			input: "SELECT 1; SELECT 2;",
		},
		{
			name:  "two selects no space after semicolon",
			input: "SELECT 1;SELECT 2",
		},
		{
			name:  "three statements",
			input: "SELECT 1; SELECT 2; SELECT 3",
		},
		{
			name:  "drop table attempt",
			input: "SELECT 1; DROP TABLE users",
		},
		{
			name:  "delete attempt",
			input: "SELECT * FROM users WHERE 1=1; DELETE FROM users",
		},
		{
			name:  "semicolon mid-statement",
			input: "SELECT 1; SELECT 2; SELECT 3;",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateAndNormalize(tt.input)
			if result.Error == nil {
				t.Error("expected error for multiple statements, got nil")
			}
			if result.Error != ErrMultipleStatements {
				t.Errorf("expected ErrMultipleStatements, got %v", result.Error)
			}
		})
	}
}

func TestHasSemicolonOutsideStrings(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{
			name:     "no semicolons",
			input:    "SELECT 1",
			expected: false,
		},
		{
			name:     "semicolon in normal position",
			input:    "SELECT 1; SELECT 2",
			expected: true,
		},
		{
			name:     "semicolon in single quoted string",
			input:    "SELECT 'a;b'",
			expected: false,
		},
		{
			name:     "semicolon in double quoted identifier",
			input:    `SELECT "a;b"`,
			expected: false,
		},
		{
			name:     "mixed: semicolon in string and real semicolon",
			input:    "SELECT 'a;b'; SELECT 1",
			expected: true,
		},
		{
			name:     "escaped quote in string with semicolon",
			input:    "SELECT 'it''s;here'",
			expected: false,
		},
		{
			name:     "backslash escaped quote",
			input:    `SELECT 'test\';more'`,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := hasSemicolonOutsideStrings(tt.input)
			if result != tt.expected {
				t.Errorf("got %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestStripTrailingSemicolon(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "no semicolon",
			input:    "SELECT 1",
			expected: "SELECT 1",
		},
		{
			name:     "trailing semicolon",
			input:    "SELECT 1;",
			expected: "SELECT 1",
		},
		{
			name:     "trailing semicolon with whitespace",
			input:    "SELECT 1;  ",
			expected: "SELECT 1",
		},
		{
			name:     "whitespace before semicolon",
			input:    "SELECT 1 ;",
			expected: "SELECT 1",
		},
		{
			name:     "multiple trailing semicolons only strips one",
			input:    "SELECT 1;;",
			expected: "SELECT 1;",
		},
		{
			name:     "semicolon with tabs and newlines",
			input:    "SELECT 1;\t\n",
			expected: "SELECT 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := stripTrailingSemicolon(tt.input)
			if result != tt.expected {
				t.Errorf("got %q, want %q", result, tt.expected)
			}
		})
	}
}

func TestDetectForbiddenKeyword(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantKeyword string
		wantFound   bool
	}{
		{
			name:      "clean select",
			input:     "SELECT id, name FROM users WHERE status = 'active'",
			wantFound: false,
		},
		{
			name:      "keyword inside string literal",
			input:     "SELECT * FROM films WHERE title = 'Drop Dead Fred'",
			wantFound: false,
		},
		{
			name:      "keyword inside line comment",
			input:     "SELECT id FROM users -- drop the old filter\nWHERE active",
			wantFound: false,
		},
		{
			name:      "keyword inside block comment",
			input:     "SELECT id /* delete handled by retention job */ FROM users",
			wantFound: false,
		},
		{
			name:      "identifiers that embed keywords",
			input:     "SELECT created_at, update_count, deleted_flag FROM audit_log",
			wantFound: false,
		},
		{
			name:        "drop statement",
			input:       "DROP TABLE users",
			wantKeyword: "DROP",
			wantFound:   true,
		},
		{
			name:        "insert hidden in cte",
			input:       "WITH x AS (SELECT 1) INSERT INTO t SELECT * FROM x",
			wantKeyword: "INSERT",
			wantFound:   true,
		},
		{
			name:        "select into",
			input:       "SELECT * INTO backup_users FROM users",
			wantKeyword: "INTO",
			wantFound:   true,
		},
		{
			name:        "select for update",
			input:       "SELECT * FROM accounts FOR UPDATE",
			wantKeyword: "UPDATE",
			wantFound:   true,
		},
		{
			name:        "execute statement",
			input:       "EXECUTE my_prepared_plan",
			wantKeyword: "EXECUTE",
			wantFound:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keyword, found := DetectForbiddenKeyword(tt.input)
			if found != tt.wantFound {
				t.Errorf("found = %v, want %v (keyword %q)", found, tt.wantFound, keyword)
			}
			if tt.wantFound && keyword != tt.wantKeyword {
				t.Errorf("keyword = %q, want %q", keyword, tt.wantKeyword)
			}
		})
	}
}
