package services

import (
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/text2sql/pkg/catalog"
	"github.com/ekaya-inc/text2sql/pkg/config"
	"github.com/ekaya-inc/text2sql/pkg/dictionary"
	"github.com/ekaya-inc/text2sql/pkg/models"
)

// fixedNow pins the clock to a Wednesday so week arithmetic is observable.
var fixedNow = time.Date(2026, 8, 19, 15, 30, 0, 0, time.UTC)

func testClock() func() time.Time {
	return func() time.Time { return fixedNow }
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// testSnapshot is a small gambling-operator catalog: players, deposits,
// game rounds, a bonus junction pair, and a currency lookup.
func testSnapshot() *catalog.Snapshot {
	return catalog.NewSnapshot("test-v1",
		[]models.TableMeta{
			{
				SchemaName:   "public",
				TableName:    "players",
				BusinessName: "Players",
				Description:  "Registered player accounts.",
				Domains:      []string{"player_activity"},
				Embedding:    []float32{0.7, 0.7, 0},
				Columns: []models.ColumnMeta{
					{Name: "player_id", DataType: "bigint", IsPrimaryKey: true},
					{Name: "country", DataType: "text", IsFilterable: true, SampleValues: []string{"DE", "GB", "BR"}},
					{Name: "vip_tier", DataType: "text", IsFilterable: true},
					{Name: "registered_at", DataType: "timestamptz", IsFilterable: true},
					{Name: "marketing_opt_in", DataType: "boolean"},
				},
			},
			{
				SchemaName:   "public",
				TableName:    "deposits",
				BusinessName: "Deposits",
				Description:  "Player deposit transactions.",
				Domains:      []string{"payments"},
				Embedding:    []float32{1, 0, 0},
				Columns: []models.ColumnMeta{
					{Name: "deposit_id", DataType: "bigint", IsPrimaryKey: true},
					{Name: "player_id", DataType: "bigint", IsForeignKey: true},
					{Name: "amount", DataType: "numeric", IsAggregatable: true},
					{Name: "status", DataType: "text", IsFilterable: true, SampleValues: []string{"settled", "pending", "failed"}},
					{Name: "created_at", DataType: "timestamptz", IsFilterable: true},
					{Name: "internal_ref", DataType: "text"},
				},
			},
			{
				SchemaName:   "public",
				TableName:    "game_rounds",
				BusinessName: "Game Rounds",
				Description:  "Individual game round results.",
				Domains:      []string{"gaming"},
				Columns: []models.ColumnMeta{
					{Name: "round_id", DataType: "bigint", IsPrimaryKey: true},
					{Name: "player_id", DataType: "bigint", IsForeignKey: true},
					{Name: "bet_amount", DataType: "numeric", IsAggregatable: true},
					{Name: "win_amount", DataType: "numeric", IsAggregatable: true},
					{Name: "played_at", DataType: "timestamptz", IsFilterable: true},
				},
			},
			{
				SchemaName:   "public",
				TableName:    "bonuses",
				BusinessName: "Bonuses",
				Description:  "Bonus campaign definitions.",
				Domains:      []string{"promotions"},
				Columns: []models.ColumnMeta{
					{Name: "bonus_id", DataType: "bigint", IsPrimaryKey: true},
					{Name: "bonus_type", DataType: "text", IsFilterable: true},
					{Name: "cost", DataType: "numeric", IsAggregatable: true},
				},
			},
			{
				SchemaName:   "public",
				TableName:    "player_bonuses",
				BusinessName: "Player Bonuses",
				Description:  "Which bonus was granted to which player.",
				Domains:      []string{"promotions"},
				Columns: []models.ColumnMeta{
					{Name: "player_id", DataType: "bigint", IsForeignKey: true},
					{Name: "bonus_id", DataType: "bigint", IsForeignKey: true},
					{Name: "granted_at", DataType: "timestamptz", IsFilterable: true},
				},
			},
			{
				SchemaName:   "public",
				TableName:    "currencies",
				BusinessName: "Currencies",
				Description:  "Currency reference data.",
				Domains:      []string{"reference"},
				Columns: []models.ColumnMeta{
					{Name: "currency_code", DataType: "text", IsPrimaryKey: true},
					{Name: "currency_name", DataType: "text", IsFilterable: true},
				},
			},
		},
		[]models.ForeignKey{
			{SourceTable: "public.deposits", SourceColumn: "player_id", TargetTable: "public.players", TargetColumn: "player_id"},
			{SourceTable: "public.game_rounds", SourceColumn: "player_id", TargetTable: "public.players", TargetColumn: "player_id"},
			{SourceTable: "public.player_bonuses", SourceColumn: "player_id", TargetTable: "public.players", TargetColumn: "player_id"},
			{SourceTable: "public.player_bonuses", SourceColumn: "bonus_id", TargetTable: "public.bonuses", TargetColumn: "bonus_id"},
		},
	)
}

func testDictionary() *dictionary.Dictionary {
	return dictionary.New([]dictionary.Term{
		{
			Term:         "depositor",
			Definition:   "A player with at least one settled deposit.",
			Type:         models.EntityTypeTable,
			Aliases:      []string{"depositors"},
			MappedTable:  "public.deposits",
			MappedColumn: "player_id",
			DefiningSQL:  "SELECT DISTINCT player_id FROM deposits WHERE status = 'settled'",
		},
		{
			Term:         "Germany",
			Type:         models.EntityTypeValue,
			Category:     dictionary.CategoryCountry,
			Aliases:      []string{"german", "germans", "german players"},
			MappedTable:  "public.players",
			MappedColumn: "country",
			LiteralValue: "DE",
		},
		{
			Term:         "United Kingdom",
			Type:         models.EntityTypeValue,
			Category:     dictionary.CategoryCountry,
			Aliases:      []string{"uk", "britain", "british players"},
			MappedTable:  "public.players",
			MappedColumn: "country",
			LiteralValue: "GB",
		},
		{
			Term:         "euro",
			Type:         models.EntityTypeValue,
			Category:     dictionary.CategoryCurrency,
			Aliases:      []string{"eur"},
			MappedTable:  "public.currencies",
			MappedColumn: "currency_code",
			LiteralValue: "EUR",
		},
		{
			Term:        "GGR",
			Definition:  "Gross gaming revenue: bets minus wins.",
			Type:        models.EntityTypeMetric,
			Aliases:     []string{"gross gaming revenue"},
			MappedTable: "public.game_rounds",
			DefiningSQL: "SUM(bet_amount) - SUM(win_amount)",
		},
	})
}

func testDomains() []models.DomainDefinition {
	return []models.DomainDefinition{
		{Name: "payments", Keywords: []string{"deposit", "deposits", "deposited", "withdrawal", "revenue"}, Priority: 1},
		{Name: "player_activity", Keywords: []string{"player", "players", "signup", "session"}, Priority: 2},
		{Name: "gaming", Keywords: []string{"bet", "bets", "game", "games", "round", "rounds"}, Priority: 3},
		{Name: "promotions", Keywords: []string{"bonus", "bonuses", "promotion"}, Priority: 4},
	}
}

func testRules() []models.BusinessRule {
	return []models.BusinessRule{
		{
			Name:                 "settled_deposits_only",
			Description:          "Deposit aggregates count settled transactions only.",
			AppliesTo:            "deposits",
			RequiredFilterColumn: "status",
			Severity:             models.RuleSeverityError,
		},
		{
			Name:            "cap_player_lists",
			Description:     "Player-level listings must be capped.",
			AppliesTo:       "players",
			RequireRowLimit: true,
			Severity:        models.RuleSeverityWarning,
		},
	}
}

func testExamples() []models.QueryExample {
	return []models.QueryExample{
		{
			Question: "Total deposits by country last month",
			SQL:      "SELECT p.country, SUM(d.amount) FROM deposits d JOIN players p ON d.player_id = p.player_id WHERE d.status = 'settled' GROUP BY p.country",
			Tables:   []string{"deposits", "players"},
		},
		{
			Question: "How many players signed up yesterday?",
			SQL:      "SELECT COUNT(*) FROM players WHERE registered_at >= CURRENT_DATE - 1",
			Tables:   []string{"players"},
		},
		{
			Question: "Bonus cost by type",
			SQL:      "SELECT bonus_type, SUM(cost) FROM bonuses GROUP BY bonus_type",
			Tables:   []string{"bonuses"},
		},
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Pipeline: config.PipelineConfig{
			MaxQuestionLength:     2000,
			MaxCorrectionAttempts: 2,
			StageTimeoutSeconds:   30,
			MaxEstimatedRows:      1000000,
		},
		Analysis: config.AnalysisConfig{
			FuzzyThreshold: 0.85,
			IntentWeight:   0.3,
			DomainWeight:   0.3,
			EntityWeight:   0.4,
		},
		Retrieval: config.RetrievalConfig{
			TokenBudget:            8000,
			MaxTables:              10,
			MinScore:               0.15,
			StrategyTimeoutSeconds: 10,
			SemanticWeight:         0.35,
			DomainWeight:           0.2,
			EntityWeight:           0.3,
			GlossaryWeight:         0.15,
		},
		LLM: config.LLMConfig{
			Provider:       "openai",
			Model:          "gpt-4o-mini",
			EmbeddingModel: "text-embedding-3-small",
		},
		Sandbox: config.SandboxConfig{
			ExplainTimeoutSeconds: 5,
		},
	}
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}

// testProfile is a ready-made analyzed question for stages downstream of
// analysis: settled deposits from German players last month.
func testProfile() *models.BusinessContextProfile {
	return &models.BusinessContextProfile{
		RawQuestion: "How much did German players deposit last month?",
		Intent:      models.IntentAggregation,
		Domain:      models.DomainClassification{Name: "payments", Confidence: 0.8},
		Entities: []models.BusinessEntity{
			{
				Name:        "depositor",
				Type:        models.EntityTypeTable,
				MappedTable: "public.deposits",
				Confidence:  1.0,
				MatchedBy:   models.MatchSourceDictionary,
			},
			{
				Name:         "Germany",
				Type:         models.EntityTypeValue,
				MappedTable:  "public.players",
				MappedColumn: "country",
				LiteralValue: "DE",
				Confidence:   1.0,
				MatchedBy:    models.MatchSourceDictionary,
			},
		},
		TimeContext: &models.TimeContext{
			StartDate:   date(2026, 7, 1),
			EndDate:     date(2026, 7, 31),
			Expression:  "last month",
			Granularity: models.GranularityMonth,
		},
		OverallConfidence: 0.9,
	}
}

// testSelection is the deposits+players selection the fixtures naturally
// retrieve for testProfile.
func testSelection() *models.SchemaSelection {
	return &models.SchemaSelection{
		Tables: []models.SelectedTable{
			{
				SchemaName:      "public",
				TableName:       "deposits",
				BusinessPurpose: "Player deposit transactions.",
				RelevanceScore:  0.9,
				MatchedBy:       []string{models.StrategyEntity, models.StrategySemantic},
				Columns: []models.SelectedColumn{
					{Name: "deposit_id", DataType: "bigint", IsKey: true},
					{Name: "player_id", DataType: "bigint", IsKey: true},
					{Name: "amount", DataType: "numeric", BusinessMeaning: "Deposit amount"},
					{Name: "status", DataType: "text", SampleValues: []string{"settled", "pending"}},
					{Name: "created_at", DataType: "timestamptz"},
				},
			},
			{
				SchemaName:      "public",
				TableName:       "players",
				BusinessPurpose: "Registered player accounts.",
				RelevanceScore:  0.7,
				MatchedBy:       []string{models.StrategyEntity},
				Columns: []models.SelectedColumn{
					{Name: "player_id", DataType: "bigint", IsKey: true},
					{Name: "country", DataType: "text", SampleValues: []string{"DE", "GB"}},
				},
			},
		},
		Relationships: []models.ForeignKey{
			{SourceTable: "public.deposits", SourceColumn: "player_id", TargetTable: "public.players", TargetColumn: "player_id"},
		},
	}
}
