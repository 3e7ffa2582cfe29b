package sql

import (
	"fmt"
	"regexp"
	"strings"
)

// SQLStatementType represents the type of SQL statement.
type SQLStatementType string

const (
	SQLTypeSelect  SQLStatementType = "SELECT"
	SQLTypeInsert  SQLStatementType = "INSERT"
	SQLTypeUpdate  SQLStatementType = "UPDATE"
	SQLTypeDelete  SQLStatementType = "DELETE"
	SQLTypeCall    SQLStatementType = "CALL"
	SQLTypeDDL     SQLStatementType = "DDL"     // CREATE, ALTER, DROP, TRUNCATE
	SQLTypeUnknown SQLStatementType = "UNKNOWN" // Unrecognized or blocked statement types
)

// modifyingCTEPattern matches CTEs that contain data-modifying operations.
// Example: WITH deleted AS (DELETE FROM ...) SELECT * FROM deleted
var modifyingCTEPattern = regexp.MustCompile(`(?i)\bAS\s*\(\s*(INSERT|UPDATE|DELETE)\b`)

// DetectSQLType determines the type of SQL statement based on the first keyword.
// Returns SQLTypeDDL for DDL statements (CREATE, ALTER, DROP, TRUNCATE) which are blocked.
// Returns SQLTypeUnknown for unrecognized statements or data-modifying CTEs.
func DetectSQLType(sqlQuery string) SQLStatementType {
	// Normalize: trim whitespace and convert to uppercase for prefix matching
	normalized := strings.ToUpper(strings.TrimSpace(sqlQuery))

	switch {
	case strings.HasPrefix(normalized, "SELECT"):
		return SQLTypeSelect

	case strings.HasPrefix(normalized, "WITH"):
		// CTEs starting with WITH could be:
		// 1. Pure SELECT: WITH cte AS (SELECT ...) SELECT * FROM cte
		// 2. Data-modifying CTE: WITH deleted AS (DELETE FROM ...) SELECT * FROM deleted
		// Block data-modifying CTEs for safety
		if containsModifyingCTE(sqlQuery) {
			return SQLTypeUnknown
		}
		return SQLTypeSelect

	case strings.HasPrefix(normalized, "INSERT"):
		return SQLTypeInsert

	case strings.HasPrefix(normalized, "UPDATE"):
		return SQLTypeUpdate

	case strings.HasPrefix(normalized, "DELETE"):
		return SQLTypeDelete

	case strings.HasPrefix(normalized, "CALL"):
		return SQLTypeCall

	// DDL statements - blocked entirely
	case strings.HasPrefix(normalized, "CREATE"),
		strings.HasPrefix(normalized, "ALTER"),
		strings.HasPrefix(normalized, "DROP"),
		strings.HasPrefix(normalized, "TRUNCATE"):
		return SQLTypeDDL

	// Transaction control - blocked (a generated query has no business managing transactions)
	case strings.HasPrefix(normalized, "BEGIN"),
		strings.HasPrefix(normalized, "COMMIT"),
		strings.HasPrefix(normalized, "ROLLBACK"),
		strings.HasPrefix(normalized, "SAVEPOINT"):
		return SQLTypeUnknown

	default:
		return SQLTypeUnknown
	}
}

// containsModifyingCTE checks if a WITH clause contains data-modifying operations.
// This detects CTEs like: WITH deleted AS (DELETE FROM t RETURNING *) SELECT * FROM deleted
func containsModifyingCTE(sqlQuery string) bool {
	return modifyingCTEPattern.MatchString(sqlQuery)
}

// IsModifyingStatement returns true if the SQL statement type can modify data.
// This includes INSERT, UPDATE, DELETE, and CALL (stored procedures).
func IsModifyingStatement(sqlType SQLStatementType) bool {
	switch sqlType {
	case SQLTypeInsert, SQLTypeUpdate, SQLTypeDelete, SQLTypeCall:
		return true
	default:
		return false
	}
}

// SQLTypeError represents an error related to SQL statement type validation.
type SQLTypeError struct {
	Type    SQLStatementType
	Message string
}

func (e *SQLTypeError) Error() string {
	return e.Message
}

// ValidateReadOnly detects the statement type and rejects anything that is
// not a plain SELECT. Model-generated queries are never allowed to modify
// data, so there is no opt-in flag: INSERT, UPDATE, DELETE, CALL, DDL, and
// anything unrecognized all fail. Data-modifying CTEs are classified as
// unknown by DetectSQLType and rejected on the same path.
func ValidateReadOnly(sqlQuery string) (SQLStatementType, error) {
	sqlType := DetectSQLType(sqlQuery)

	if sqlType == SQLTypeSelect {
		return sqlType, nil
	}

	if sqlType == SQLTypeDDL {
		return sqlType, &SQLTypeError{
			Type:    sqlType,
			Message: "DDL statements (CREATE, ALTER, DROP, TRUNCATE) are not allowed",
		}
	}

	if IsModifyingStatement(sqlType) {
		return sqlType, &SQLTypeError{
			Type:    sqlType,
			Message: fmt.Sprintf("%s statements modify data; generated queries must be read-only", sqlType),
		}
	}

	return sqlType, &SQLTypeError{
		Type:    sqlType,
		Message: "unrecognized SQL statement type; only SELECT statements are allowed",
	}
}
