// Package datasource provides sandbox database adapters for dry-run
// validation. Adapters only ever plan SQL with the engine's EXPLAIN
// facility against a read-only sandbox; generated queries are never
// executed through this package.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable indicates the sandbox could not be reached or the
// round trip failed before the engine saw the query. Callers treat
// this as "dry-run skipped", not as a failed validation.
var ErrUnavailable = errors.New("sandbox unavailable")

// SyntaxError reports that the engine rejected the SQL during planning.
// These are correctable failures: the message is fed back to the model
// on the next correction attempt.
type SyntaxError struct {
	Message  string
	Position int // 1-based character offset into the SQL, 0 if unknown
}

func (e *SyntaxError) Error() string {
	if e.Position > 0 {
		return fmt.Sprintf("%s (position %d)", e.Message, e.Position)
	}
	return e.Message
}

// ExplainResult holds the planner output from a dry-run.
type ExplainResult struct {
	EstimatedRows int64    `json:"estimated_rows"`
	TotalCost     float64  `json:"total_cost"`
	Plan          string   `json:"plan"`
	Hints         []string `json:"hints,omitempty"`
}

// Explainer plans SQL against the sandbox without executing it.
// Each implementation owns its connection and must be closed when done.
type Explainer interface {
	// Explain asks the engine to plan the query. A timeout > 0 bounds the
	// round trip. Engine rejections surface as *SyntaxError; connectivity
	// failures wrap ErrUnavailable.
	Explain(ctx context.Context, sqlQuery string, timeout time.Duration) (*ExplainResult, error)

	// TestConnection verifies the sandbox is reachable with valid credentials.
	TestConnection(ctx context.Context) error

	// Engine returns the adapter type ("postgres", "mssql").
	Engine() string

	// Close releases the sandbox connection.
	Close() error
}
