package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/text2sql/pkg/adapters/datasource"
	"github.com/ekaya-inc/text2sql/pkg/config"
	"github.com/ekaya-inc/text2sql/pkg/testhelpers"
)

func TestAdapter_Integration(t *testing.T) {
	sandbox := testhelpers.GetSandboxDB(t)
	ctx := context.Background()

	adapter, err := NewAdapter(ctx, sandbox.Config())
	require.NoError(t, err)
	defer adapter.Close()

	t.Run("plans a valid query without executing it", func(t *testing.T) {
		result, err := adapter.Explain(ctx,
			"SELECT p.country, SUM(d.amount) AS total FROM deposits d JOIN players p ON p.player_id = d.player_id WHERE d.status = 'settled' GROUP BY p.country",
			5*time.Second)
		require.NoError(t, err)
		assert.NotEmpty(t, result.Plan)
		assert.Greater(t, result.TotalCost, 0.0)
	})

	t.Run("reports syntax errors with position", func(t *testing.T) {
		_, err := adapter.Explain(ctx, "SELECT * FORM deposits", 5*time.Second)
		var synErr *datasource.SyntaxError
		require.ErrorAs(t, err, &synErr)
		assert.Contains(t, synErr.Message, "syntax error")
		assert.Greater(t, synErr.Position, 0)
	})

	t.Run("reports unknown relations", func(t *testing.T) {
		_, err := adapter.Explain(ctx, "SELECT * FROM withdrawals", 5*time.Second)
		var synErr *datasource.SyntaxError
		require.ErrorAs(t, err, &synErr)
		assert.Contains(t, synErr.Message, "withdrawals")
	})

	t.Run("reports unknown columns", func(t *testing.T) {
		_, err := adapter.Explain(ctx, "SELECT amnt FROM deposits", 5*time.Second)
		var synErr *datasource.SyntaxError
		require.ErrorAs(t, err, &synErr)
		assert.Contains(t, synErr.Message, "amnt")
	})

	t.Run("test connection", func(t *testing.T) {
		require.NoError(t, adapter.TestConnection(ctx))
	})
}

func TestNewAdapter_Unreachable(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping network test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := NewAdapter(ctx, &config.SandboxConfig{
		Type:           "postgres",
		Host:           "127.0.0.1",
		Port:           1,
		User:           "nobody",
		Database:       "nothing",
		SSLMode:        "disable",
		MaxConnections: 1,
	})
	require.ErrorIs(t, err, datasource.ErrUnavailable)
}
