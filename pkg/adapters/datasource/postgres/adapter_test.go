package postgres

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/text2sql/pkg/adapters/datasource"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantSyntax bool
		wantUnavl  bool
		wantPos    int
	}{
		{
			name:       "syntax error with position",
			err:        &pgconn.PgError{Code: "42601", Message: `syntax error at or near "FORM"`, Position: 8},
			wantSyntax: true,
			wantPos:    8,
		},
		{
			name:       "undefined table",
			err:        &pgconn.PgError{Code: "42P01", Message: `relation "depositz" does not exist`},
			wantSyntax: true,
		},
		{
			name:       "undefined column",
			err:        &pgconn.PgError{Code: "42703", Message: `column "amnt" does not exist`},
			wantSyntax: true,
		},
		{
			name:       "grouping error",
			err:        &pgconn.PgError{Code: "42803", Message: "aggregate functions are not allowed in WHERE"},
			wantSyntax: true,
		},
		{
			name:       "bad literal",
			err:        &pgconn.PgError{Code: "22P02", Message: `invalid input syntax for type numeric: "lots"`},
			wantSyntax: true,
		},
		{
			name: "insufficient privilege is not the model's fault",
			err:  &pgconn.PgError{Code: "42501", Message: "permission denied for table players"},
		},
		{
			name:      "connection failure",
			err:       &pgconn.PgError{Code: "08006", Message: "connection terminated"},
			wantUnavl: true,
		},
		{
			name:      "too many connections",
			err:       &pgconn.PgError{Code: "53300", Message: "sorry, too many clients already"},
			wantUnavl: true,
		},
		{
			name:      "statement timeout",
			err:       &pgconn.PgError{Code: "57014", Message: "canceling statement due to statement timeout"},
			wantUnavl: true,
		},
		{
			name:      "network error without sqlstate",
			err:       errors.New("dial tcp 10.0.0.5:5432: connection refused"),
			wantUnavl: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyError(tt.err)
			require.Error(t, got)

			var synErr *datasource.SyntaxError
			if tt.wantSyntax {
				require.ErrorAs(t, got, &synErr)
				assert.Equal(t, tt.wantPos, synErr.Position)
				return
			}
			assert.False(t, errors.As(got, &synErr), "should not be a syntax error: %v", got)
			assert.Equal(t, tt.wantUnavl, errors.Is(got, datasource.ErrUnavailable), "unavailable mismatch: %v", got)
		})
	}
}

// explainJSON is a trimmed EXPLAIN (FORMAT JSON) payload for an aggregate
// over a join, as postgres 16 returns it.
const explainJSON = `[
  {
    "Plan": {
      "Node Type": "Aggregate",
      "Strategy": "Hashed",
      "Total Cost": 74.52,
      "Plan Rows": 200,
      "Plans": [
        {
          "Node Type": "Hash Join",
          "Total Cost": 61.18,
          "Plan Rows": 2670,
          "Plans": [
            {
              "Node Type": "Seq Scan",
              "Relation Name": "deposits",
              "Total Cost": 34.50,
              "Plan Rows": 2450
            },
            {
              "Node Type": "Hash",
              "Total Cost": 15.10,
              "Plan Rows": 510,
              "Plans": [
                {
                  "Node Type": "Seq Scan",
                  "Relation Name": "players",
                  "Total Cost": 15.10,
                  "Plan Rows": 510
                }
              ]
            }
          ]
        }
      ]
    }
  }
]`

func TestExplainEnvelopeParsing(t *testing.T) {
	var envelope []explainEnvelope
	require.NoError(t, json.Unmarshal([]byte(explainJSON), &envelope))
	require.Len(t, envelope, 1)

	root := envelope[0].Plan
	assert.Equal(t, "Aggregate", root.NodeType)
	assert.Equal(t, int64(200), root.PlanRows)
	assert.InDelta(t, 74.52, root.TotalCost, 0.001)

	require.Len(t, root.Plans, 1)
	join := root.Plans[0]
	assert.Equal(t, "Hash Join", join.NodeType)
	require.Len(t, join.Plans, 2)
	assert.Equal(t, "deposits", join.Plans[0].RelationName)
}

func TestRenderPlan(t *testing.T) {
	var envelope []explainEnvelope
	require.NoError(t, json.Unmarshal([]byte(explainJSON), &envelope))

	var b strings.Builder
	renderPlan(&b, envelope[0].Plan, 0)
	plan := b.String()

	lines := strings.Split(strings.TrimRight(plan, "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "Aggregate  (cost=74.52 rows=200)", lines[0])
	assert.Equal(t, "  Hash Join  (cost=61.18 rows=2670)", lines[1])
	assert.Equal(t, "    Seq Scan on deposits  (cost=34.50 rows=2450)", lines[2])
	assert.Equal(t, "    Hash  (cost=15.10 rows=510)", lines[3])
	assert.Equal(t, "      Seq Scan on players  (cost=15.10 rows=510)", lines[4])
}

func TestCollectHints(t *testing.T) {
	t.Run("small plan has no hints", func(t *testing.T) {
		root := planNode{
			NodeType:  "Index Scan",
			TotalCost: 8.3,
			PlanRows:  1,
		}
		assert.Empty(t, collectHints(root))
	})

	t.Run("large seq scan", func(t *testing.T) {
		root := planNode{
			NodeType:  "Aggregate",
			TotalCost: 120000,
			PlanRows:  500,
			Plans: []planNode{
				{NodeType: "Seq Scan", RelationName: "deposits", TotalCost: 90000, PlanRows: 4000000},
			},
		}
		hints := collectHints(root)
		require.Len(t, hints, 1)
		assert.Contains(t, hints[0], "Sequential scan on deposits")
	})

	t.Run("nested loop and high cost", func(t *testing.T) {
		root := planNode{
			NodeType:  "Nested Loop",
			TotalCost: 2500000,
			PlanRows:  8000000,
		}
		hints := collectHints(root)
		require.Len(t, hints, 2)
		assert.Contains(t, hints[0], "Nested loop join")
		assert.Contains(t, hints[1], "very high")
	})
}
