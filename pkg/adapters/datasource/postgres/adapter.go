// Package postgres implements the sandbox Explainer for PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ekaya-inc/text2sql/pkg/adapters/datasource"
	"github.com/ekaya-inc/text2sql/pkg/config"
)

// Adapter plans queries against a PostgreSQL sandbox with plain EXPLAIN.
// It never uses ANALYZE, so the sandbox only plans and nothing runs.
type Adapter struct {
	pool *pgxpool.Pool
}

// NewAdapter connects to the sandbox described by cfg and verifies it is
// reachable. Unreachable sandboxes wrap datasource.ErrUnavailable so the
// caller can degrade to skipping dry-run validation.
func NewAdapter(ctx context.Context, cfg *config.SandboxConfig) (*Adapter, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse sandbox connection config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", datasource.ErrUnavailable, err)
	}

	return &Adapter{pool: pool}, nil
}

// planNode is the subset of EXPLAIN (FORMAT JSON) node fields we read.
type planNode struct {
	NodeType     string     `json:"Node Type"`
	RelationName string     `json:"Relation Name"`
	PlanRows     int64      `json:"Plan Rows"`
	TotalCost    float64    `json:"Total Cost"`
	Plans        []planNode `json:"Plans"`
}

type explainEnvelope struct {
	Plan planNode `json:"Plan"`
}

// Explain implements datasource.Explainer.
func (a *Adapter) Explain(ctx context.Context, sqlQuery string, timeout time.Duration) (*datasource.ExplainResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var raw []byte
	if err := a.pool.QueryRow(ctx, "EXPLAIN (FORMAT JSON) "+sqlQuery).Scan(&raw); err != nil {
		return nil, classifyError(err)
	}

	var envelope []explainEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse explain output: %w", err)
	}
	if len(envelope) == 0 {
		return nil, fmt.Errorf("explain returned no plan")
	}

	root := envelope[0].Plan
	var plan strings.Builder
	renderPlan(&plan, root, 0)

	return &datasource.ExplainResult{
		EstimatedRows: root.PlanRows,
		TotalCost:     root.TotalCost,
		Plan:          plan.String(),
		Hints:         collectHints(root),
	}, nil
}

// TestConnection implements datasource.Explainer.
func (a *Adapter) TestConnection(ctx context.Context) error {
	if err := a.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", datasource.ErrUnavailable, err)
	}
	return nil
}

// Engine implements datasource.Explainer.
func (a *Adapter) Engine() string {
	return "postgres"
}

// Close implements datasource.Explainer.
func (a *Adapter) Close() error {
	a.pool.Close()
	return nil
}

// classifyError maps server errors onto the dry-run error contract.
// Class 42 (syntax, undefined objects) and class 22 (bad literals) are the
// model's fault and become correctable SyntaxErrors. Code 42501 is excluded:
// insufficient privilege means the sandbox role is misconfigured, not the SQL.
func classifyError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "42") && pgErr.Code != "42501":
			return &datasource.SyntaxError{Message: pgErr.Message, Position: int(pgErr.Position)}
		case strings.HasPrefix(pgErr.Code, "22"):
			return &datasource.SyntaxError{Message: pgErr.Message, Position: int(pgErr.Position)}
		case strings.HasPrefix(pgErr.Code, "08"), strings.HasPrefix(pgErr.Code, "53"), strings.HasPrefix(pgErr.Code, "57"):
			return fmt.Errorf("%w: %s", datasource.ErrUnavailable, pgErr.Message)
		default:
			return fmt.Errorf("sandbox rejected query: %s (SQLSTATE %s)", pgErr.Message, pgErr.Code)
		}
	}
	// No server error code means the round trip itself failed.
	return fmt.Errorf("%w: %v", datasource.ErrUnavailable, err)
}

// renderPlan flattens the JSON plan tree into indented text for prompts.
func renderPlan(b *strings.Builder, node planNode, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(node.NodeType)
	if node.RelationName != "" {
		b.WriteString(" on ")
		b.WriteString(node.RelationName)
	}
	fmt.Fprintf(b, "  (cost=%.2f rows=%d)\n", node.TotalCost, node.PlanRows)
	for _, child := range node.Plans {
		renderPlan(b, child, depth+1)
	}
}

const largeScanRows = 10000

// collectHints flags plan shapes that tend to indicate a bad generated query.
// Estimates only; without ANALYZE there is no timing to report.
func collectHints(root planNode) []string {
	var hints []string
	walkPlan(root, func(n planNode) {
		switch n.NodeType {
		case "Seq Scan":
			if n.PlanRows >= largeScanRows {
				hints = append(hints, fmt.Sprintf(
					"Sequential scan on %s (~%d rows estimated) - consider adding an index or a more selective filter",
					n.RelationName, n.PlanRows))
			}
		case "Nested Loop":
			if n.PlanRows >= largeScanRows {
				hints = append(hints, fmt.Sprintf(
					"Nested loop join producing ~%d rows - check the join condition for missing keys",
					n.PlanRows))
			}
		}
	})
	if root.TotalCost >= 1000000 {
		hints = append(hints, fmt.Sprintf(
			"Estimated cost %.0f is very high - narrow the date range or add filters", root.TotalCost))
	}
	return hints
}

func walkPlan(node planNode, visit func(planNode)) {
	visit(node)
	for _, child := range node.Plans {
		walkPlan(child, visit)
	}
}

// Ensure Adapter implements Explainer at compile time.
var _ datasource.Explainer = (*Adapter)(nil)
