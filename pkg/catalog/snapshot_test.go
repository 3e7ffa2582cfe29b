package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/text2sql/pkg/models"
)

func testSnapshot() *Snapshot {
	return NewSnapshot("v1",
		[]models.TableMeta{
			{
				SchemaName:   "public",
				TableName:    "players",
				BusinessName: "Players",
				Domains:      []string{"player_activity"},
				Columns: []models.ColumnMeta{
					{Name: "player_id", DataType: "bigint", IsPrimaryKey: true},
					{Name: "country", DataType: "text", IsFilterable: true},
				},
			},
			{
				SchemaName:   "public",
				TableName:    "deposits",
				BusinessName: "Deposits",
				Domains:      []string{"payments"},
				Columns: []models.ColumnMeta{
					{Name: "deposit_id", DataType: "bigint", IsPrimaryKey: true},
					{Name: "player_id", DataType: "bigint", IsForeignKey: true},
					{Name: "amount", DataType: "numeric", IsAggregatable: true},
				},
			},
			{
				SchemaName: "reporting",
				TableName:  "daily_kpis",
				Domains:    []string{"finance"},
			},
		},
		[]models.ForeignKey{
			{SourceTable: "public.deposits", SourceColumn: "player_id", TargetTable: "public.players", TargetColumn: "player_id"},
		},
	)
}

func TestSnapshot_ListTables(t *testing.T) {
	ctx := context.Background()
	snap := testSnapshot()

	t.Run("all schemas", func(t *testing.T) {
		tables, err := snap.ListTables(ctx, "")
		require.NoError(t, err)
		assert.Len(t, tables, 3)
	})

	t.Run("single schema", func(t *testing.T) {
		tables, err := snap.ListTables(ctx, "public")
		require.NoError(t, err)
		assert.Len(t, tables, 2)
		for _, tbl := range tables {
			assert.Equal(t, "public", tbl.SchemaName)
		}
	})

	t.Run("unknown schema", func(t *testing.T) {
		tables, err := snap.ListTables(ctx, "missing")
		require.NoError(t, err)
		assert.Empty(t, tables)
	})
}

func TestSnapshot_GetForeignKeys(t *testing.T) {
	ctx := context.Background()
	snap := testSnapshot()

	fks, err := snap.GetForeignKeys(ctx, "public.players")
	require.NoError(t, err)
	require.Len(t, fks, 1)
	assert.Equal(t, "public.deposits", fks[0].SourceTable)

	fks, err = snap.GetForeignKeys(ctx, "reporting.daily_kpis")
	require.NoError(t, err)
	assert.Empty(t, fks)
}

func TestSnapshot_TableLookup(t *testing.T) {
	snap := testSnapshot()

	assert.NotNil(t, snap.Table("public.players"))
	assert.NotNil(t, snap.Table("players"), "bare names resolve")
	assert.Nil(t, snap.Table("currencies"))
	assert.Equal(t, 3, snap.TableCount())
	assert.Equal(t, "v1", snap.Version())
}

func TestSnapshot_ReturnedSlicesAreCopies(t *testing.T) {
	ctx := context.Background()
	snap := testSnapshot()

	tables, err := snap.ListTables(ctx, "")
	require.NoError(t, err)
	tables[0].TableName = "mutated"

	again, err := snap.ListTables(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "players", again[0].TableName, "snapshot must not observe caller mutation")
}

func TestLoadSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	content := `
version: "2026-01"
tables:
  - schema_name: public
    table_name: players
    business_name: Players
    domains: [player_activity]
    columns:
      - name: player_id
        data_type: bigint
        is_primary_key: true
      - name: country
        data_type: text
        is_filterable: true
        sample_values: ["DE", "BR", "JP"]
foreign_keys:
  - source_table: public.deposits
    source_column: player_id
    target_table: public.players
    target_column: player_id
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	snap, err := LoadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, "2026-01", snap.Version())

	tbl := snap.Table("public.players")
	require.NotNil(t, tbl)
	assert.Equal(t, "Players", tbl.BusinessName)
	require.Len(t, tbl.Columns, 2)
	assert.True(t, tbl.Columns[0].IsPrimaryKey)
	assert.Equal(t, []string{"DE", "BR", "JP"}, tbl.Columns[1].SampleValues)
}

func TestLoadSnapshot_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadSnapshot(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("empty catalog", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "catalog.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`version: "x"`), 0644))
		_, err := LoadSnapshot(path)
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "catalog.yaml")
		require.NoError(t, os.WriteFile(path, []byte("tables: [{"), 0644))
		_, err := LoadSnapshot(path)
		assert.Error(t, err)
	})
}

func TestLoadKnowledgeFiles(t *testing.T) {
	dir := t.TempDir()

	rulesPath := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(rulesPath, []byte(`
rules:
  - name: active_players_only
    description: Player-level reports must exclude closed accounts.
    applies_to: players
    required_filter_column: status
    severity: error
`), 0644))

	examplesPath := filepath.Join(dir, "examples.yaml")
	require.NoError(t, os.WriteFile(examplesPath, []byte(`
examples:
  - question: How many players signed up yesterday?
    sql: SELECT COUNT(*) FROM players WHERE signup_date = CURRENT_DATE - 1
    tables: [players]
`), 0644))

	domainsPath := filepath.Join(dir, "domains.yaml")
	require.NoError(t, os.WriteFile(domainsPath, []byte(`
domains:
  - name: payments
    keywords: [deposit, withdrawal, payment]
    priority: 1
  - name: player_activity
    keywords: [player, session, login]
    priority: 2
`), 0644))

	rules, err := LoadRules(rulesPath)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, "status", rules[0].RequiredFilterColumn)

	examples, err := LoadExamples(examplesPath)
	require.NoError(t, err)
	require.Len(t, examples, 1)
	assert.Contains(t, examples[0].SQL, "COUNT(*)")

	domains, err := LoadDomains(domainsPath)
	require.NoError(t, err)
	require.Len(t, domains, 2)
	assert.Equal(t, 1, domains[0].Priority)
}

func TestLoadKnowledgeFiles_MissingAreEmpty(t *testing.T) {
	dir := t.TempDir()

	rules, err := LoadRules(filepath.Join(dir, "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, rules)

	examples, err := LoadExamples(filepath.Join(dir, "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, examples)
}
