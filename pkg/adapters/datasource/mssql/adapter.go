// Package mssql implements the sandbox Explainer for Microsoft SQL Server.
package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	mssql "github.com/microsoft/go-mssqldb"

	"github.com/ekaya-inc/text2sql/pkg/adapters/datasource"
	"github.com/ekaya-inc/text2sql/pkg/config"
)

// Adapter plans queries against a SQL Server sandbox with SHOWPLAN_ALL.
// SHOWPLAN returns the estimated plan instead of running the query, so
// nothing executes on the sandbox.
type Adapter struct {
	db *sql.DB
}

// NewAdapter connects to the sandbox described by cfg and verifies it is
// reachable. Unreachable sandboxes wrap datasource.ErrUnavailable so the
// caller can degrade to skipping dry-run validation.
func NewAdapter(ctx context.Context, cfg *config.SandboxConfig) (*Adapter, error) {
	db, err := sql.Open("sqlserver", cfg.MSSQLConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open sandbox connection: %w", err)
	}
	if cfg.MaxConnections > 0 {
		db.SetMaxOpenConns(int(cfg.MaxConnections))
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", datasource.ErrUnavailable, err)
	}

	return &Adapter{db: db}, nil
}

// Explain implements datasource.Explainer.
func (a *Adapter) Explain(ctx context.Context, sqlQuery string, timeout time.Duration) (*datasource.ExplainResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// SHOWPLAN_ALL is session state, so the ON, the query, and the OFF
	// must all run on the same pinned connection.
	conn, err := a.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", datasource.ErrUnavailable, err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SET SHOWPLAN_ALL ON"); err != nil {
		return nil, classifyError(err)
	}
	defer conn.ExecContext(ctx, "SET SHOWPLAN_ALL OFF")

	rows, err := conn.QueryContext(ctx, sqlQuery)
	if err != nil {
		return nil, classifyError(err)
	}
	defer rows.Close()

	return readPlanRows(rows)
}

// readPlanRows assembles an ExplainResult from SHOWPLAN_ALL output.
// The first row is the statement itself and carries the total estimates;
// the remaining rows are one plan operator each.
func readPlanRows(rows *sql.Rows) (*datasource.ExplainResult, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read plan columns: %w", err)
	}

	stmtIdx, rowsIdx, costIdx := -1, -1, -1
	for i, name := range cols {
		switch name {
		case "StmtText":
			stmtIdx = i
		case "EstimateRows":
			rowsIdx = i
		case "TotalSubtreeCost":
			costIdx = i
		}
	}
	if stmtIdx < 0 {
		return nil, fmt.Errorf("unexpected showplan output: no StmtText column")
	}

	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	result := &datasource.ExplainResult{}
	var plan strings.Builder
	first := true
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan plan row: %w", err)
		}
		if plan.Len() > 0 {
			plan.WriteByte('\n')
		}
		plan.WriteString(asString(vals[stmtIdx]))
		if first {
			if rowsIdx >= 0 {
				result.EstimatedRows = int64(asFloat(vals[rowsIdx]))
			}
			if costIdx >= 0 {
				result.TotalCost = asFloat(vals[costIdx])
			}
			first = false
		}
	}
	if err := rows.Err(); err != nil {
		return nil, classifyError(err)
	}

	result.Plan = plan.String()
	result.Hints = collectHints(result.Plan)
	return result, nil
}

// TestConnection implements datasource.Explainer.
func (a *Adapter) TestConnection(ctx context.Context) error {
	if err := a.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", datasource.ErrUnavailable, err)
	}
	return nil
}

// Engine implements datasource.Explainer.
func (a *Adapter) Engine() string {
	return "mssql"
}

// Close implements datasource.Explainer.
func (a *Adapter) Close() error {
	return a.db.Close()
}

// syntaxErrorNumbers are the server error numbers raised while parsing or
// binding a statement. These are the model's fault and are correctable.
var syntaxErrorNumbers = map[int32]bool{
	102:  true, // incorrect syntax near
	105:  true, // unclosed quotation mark
	156:  true, // incorrect syntax near keyword
	170:  true, // incorrect syntax (legacy parser)
	207:  true, // invalid column name
	208:  true, // invalid object name
	209:  true, // ambiguous column name
	241:  true, // conversion failed when converting date
	245:  true, // conversion failed when converting value
	4104: true, // multi-part identifier could not be bound
	8120: true, // column invalid in select list (GROUP BY)
	8155: true, // no column name was specified
}

// classifyError maps server errors onto the dry-run error contract,
// mirroring the postgres adapter.
func classifyError(err error) error {
	var sqlErr mssql.Error
	if errors.As(err, &sqlErr) {
		if syntaxErrorNumbers[sqlErr.Number] {
			return &datasource.SyntaxError{Message: sqlErr.Message}
		}
		return fmt.Errorf("sandbox rejected query: %s (error %d)", sqlErr.Message, sqlErr.Number)
	}
	// No server error number means the round trip itself failed.
	return fmt.Errorf("%w: %v", datasource.ErrUnavailable, err)
}

// collectHints flags plan operators that tend to indicate a bad generated
// query. SHOWPLAN_ALL provides estimates only, so there is no timing.
func collectHints(plan string) []string {
	var hints []string
	if strings.Contains(plan, "Table Scan") {
		hints = append(hints, "Table scan detected - consider adding an index or a more selective filter")
	}
	if strings.Contains(plan, "Clustered Index Scan") {
		hints = append(hints, "Clustered index scan detected - the query may be reading the whole table")
	}
	return hints
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return ""
	}
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

// Ensure Adapter implements Explainer at compile time.
var _ datasource.Explainer = (*Adapter)(nil)
