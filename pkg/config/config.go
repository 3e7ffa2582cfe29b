package config

import (
	"fmt"
	"net/url"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the text2sql pipeline.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (API keys, passwords) must only come from environment variables.
type Config struct {
	Env     string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version string `yaml:"-"` // Set at load time, not from config

	// Pipeline orchestration settings
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Question analysis settings
	Analysis AnalysisConfig `yaml:"analysis"`

	// Schema retrieval settings
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Model provider endpoints
	LLM LLMConfig `yaml:"llm"`

	// Sandbox database used for dry-run validation (EXPLAIN only, never executes)
	Sandbox SandboxConfig `yaml:"sandbox"`

	// Knowledge file locations (catalog snapshot, term dictionary, rules, examples)
	Knowledge KnowledgeConfig `yaml:"knowledge"`
}

// PipelineConfig holds settings for the generate-validate-correct loop.
type PipelineConfig struct {
	// MaxQuestionLength rejects questions longer than this before any model call.
	MaxQuestionLength int `yaml:"max_question_length" env:"PIPELINE_MAX_QUESTION_LENGTH" env-default:"2000"`

	// MaxCorrectionAttempts bounds the correction loop per question.
	MaxCorrectionAttempts int `yaml:"max_correction_attempts" env:"PIPELINE_MAX_CORRECTION_ATTEMPTS" env-default:"2"`

	// RequireDryRun makes an unavailable sandbox a validation failure.
	// When false the dry-run layer is skipped with a logged warning.
	RequireDryRun bool `yaml:"require_dry_run" env:"PIPELINE_REQUIRE_DRY_RUN" env-default:"false"`

	// StageTimeoutSeconds bounds each pipeline stage.
	StageTimeoutSeconds int `yaml:"stage_timeout_seconds" env:"PIPELINE_STAGE_TIMEOUT_SECONDS" env-default:"30"`

	// MaxEstimatedRows attaches a warning issue when the dry-run planner
	// estimates more rows than this. Zero disables the check.
	MaxEstimatedRows int64 `yaml:"max_estimated_rows" env:"PIPELINE_MAX_ESTIMATED_ROWS" env-default:"1000000"`
}

// AnalysisConfig holds settings for business-context analysis.
type AnalysisConfig struct {
	// FuzzyThreshold is the minimum Jaro-Winkler similarity for a fuzzy
	// entity match against catalog business names.
	FuzzyThreshold float64 `yaml:"fuzzy_threshold" env:"ANALYSIS_FUZZY_THRESHOLD" env-default:"0.85"`

	// Weights for combining stage confidences into OverallConfidence.
	IntentWeight float64 `yaml:"intent_weight" env:"ANALYSIS_INTENT_WEIGHT" env-default:"0.3"`
	DomainWeight float64 `yaml:"domain_weight" env:"ANALYSIS_DOMAIN_WEIGHT" env-default:"0.3"`
	EntityWeight float64 `yaml:"entity_weight" env:"ANALYSIS_ENTITY_WEIGHT" env-default:"0.4"`

	// DefaultWindowDays substitutes a documented window for ambiguous time
	// expressions ("recent", "lately"). Zero means never guess and surface
	// the ambiguity to the caller instead.
	DefaultWindowDays int `yaml:"default_window_days" env:"ANALYSIS_DEFAULT_WINDOW_DAYS" env-default:"0"`
}

// RetrievalConfig holds settings for multi-strategy schema retrieval.
type RetrievalConfig struct {
	// TokenBudget is the prompt token allowance for schema context.
	TokenBudget int `yaml:"token_budget" env:"RETRIEVAL_TOKEN_BUDGET" env-default:"8000"`

	// MaxTables caps the number of tables in a selection before token fitting.
	MaxTables int `yaml:"max_tables" env:"RETRIEVAL_MAX_TABLES" env-default:"10"`

	// MinScore drops candidate tables scoring below this after merging.
	MinScore float64 `yaml:"min_score" env:"RETRIEVAL_MIN_SCORE" env-default:"0.15"`

	// StrategyTimeoutSeconds bounds each retrieval strategy. A timed-out
	// strategy contributes no candidates.
	StrategyTimeoutSeconds int `yaml:"strategy_timeout_seconds" env:"RETRIEVAL_STRATEGY_TIMEOUT_SECONDS" env-default:"10"`

	// Per-strategy weights applied when merging candidate scores.
	SemanticWeight float64 `yaml:"semantic_weight" env:"RETRIEVAL_SEMANTIC_WEIGHT" env-default:"0.35"`
	DomainWeight   float64 `yaml:"domain_weight" env:"RETRIEVAL_DOMAIN_WEIGHT" env-default:"0.2"`
	EntityWeight   float64 `yaml:"entity_weight" env:"RETRIEVAL_ENTITY_WEIGHT" env-default:"0.3"`
	GlossaryWeight float64 `yaml:"glossary_weight" env:"RETRIEVAL_GLOSSARY_WEIGHT" env-default:"0.15"`
}

// LLMConfig holds model provider configuration.
// API keys must come from environment variables (yaml:"-" fields).
type LLMConfig struct {
	// Provider selects the client implementation: openai, anthropic.
	Provider string `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`

	// BaseURL overrides the provider endpoint (OpenAI-compatible servers).
	BaseURL string `yaml:"base_url" env:"LLM_BASE_URL" env-default:""`

	Model          string `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o-mini"`
	EmbeddingModel string `yaml:"embedding_model" env:"LLM_EMBEDDING_MODEL" env-default:"text-embedding-3-small"`

	APIKey string `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML

	MaxTokens      int     `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"2048"`
	Temperature    float32 `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0"`
	TimeoutSeconds int     `yaml:"timeout_seconds" env:"LLM_TIMEOUT_SECONDS" env-default:"60"`

	// Circuit breaker settings for provider calls.
	BreakerThreshold         int `yaml:"breaker_threshold" env:"LLM_BREAKER_THRESHOLD" env-default:"5"`
	BreakerResetAfterSeconds int `yaml:"breaker_reset_after_seconds" env:"LLM_BREAKER_RESET_AFTER_SECONDS" env-default:"30"`
}

// SandboxConfig holds the dry-run sandbox database configuration.
// The sandbox is only ever used for EXPLAIN; queries are never executed.
type SandboxConfig struct {
	// Type selects the adapter: postgres, mssql. Empty disables dry-run.
	Type string `yaml:"type" env:"SANDBOX_TYPE" env-default:""`

	Host     string `yaml:"host" env:"SANDBOX_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"SANDBOX_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"SANDBOX_USER" env-default:"text2sql_ro"`
	Password string `yaml:"-" env:"SANDBOX_PASSWORD"` // Secret - not in YAML
	Database string `yaml:"database" env:"SANDBOX_DATABASE" env-default:""`
	SSLMode  string `yaml:"ssl_mode" env:"SANDBOX_SSLMODE" env-default:"disable"`

	// ExplainTimeoutSeconds bounds a single EXPLAIN round trip.
	ExplainTimeoutSeconds int `yaml:"explain_timeout_seconds" env:"SANDBOX_EXPLAIN_TIMEOUT_SECONDS" env-default:"5"`

	MaxConnections int32 `yaml:"max_connections" env:"SANDBOX_MAX_CONNECTIONS" env-default:"5"`
}

// KnowledgeConfig holds paths to the curated knowledge files.
type KnowledgeConfig struct {
	CatalogPath    string `yaml:"catalog_path" env:"KNOWLEDGE_CATALOG_PATH" env-default:"knowledge/catalog.yaml"`
	DictionaryPath string `yaml:"dictionary_path" env:"KNOWLEDGE_DICTIONARY_PATH" env-default:"knowledge/dictionary.yaml"`
	DomainsPath    string `yaml:"domains_path" env:"KNOWLEDGE_DOMAINS_PATH" env-default:"knowledge/domains.yaml"`
	RulesPath      string `yaml:"rules_path" env:"KNOWLEDGE_RULES_PATH" env-default:"knowledge/rules.yaml"`
	ExamplesPath   string `yaml:"examples_path" env:"KNOWLEDGE_EXAMPLES_PATH" env-default:"knowledge/examples.yaml"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
// Environment variables override YAML values. Secrets (LLM_API_KEY,
// SANDBOX_PASSWORD) must come from environment variables (yaml:"-" fields).
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	// Load config from YAML file with environment variable overrides
	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks cross-field constraints that tags cannot express.
func (c *Config) Validate() error {
	if c.Pipeline.MaxCorrectionAttempts < 0 {
		return fmt.Errorf("max_correction_attempts must be >= 0, got %d", c.Pipeline.MaxCorrectionAttempts)
	}
	if c.Retrieval.TokenBudget <= 0 {
		return fmt.Errorf("token_budget must be positive, got %d", c.Retrieval.TokenBudget)
	}
	if c.Analysis.FuzzyThreshold < 0 || c.Analysis.FuzzyThreshold > 1 {
		return fmt.Errorf("fuzzy_threshold must be in [0,1], got %f", c.Analysis.FuzzyThreshold)
	}
	if c.Retrieval.MinScore < 0 || c.Retrieval.MinScore > 1 {
		return fmt.Errorf("min_score must be in [0,1], got %f", c.Retrieval.MinScore)
	}
	switch c.Sandbox.Type {
	case "", "postgres", "mssql":
	default:
		return fmt.Errorf("unsupported sandbox type %q", c.Sandbox.Type)
	}
	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("unsupported llm provider %q", c.LLM.Provider)
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string for the sandbox.
// A localhost sandbox host is rewritten when running inside Docker.
func (c *SandboxConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		ResolveHostForDocker(c.Host), c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// MSSQLConnectionString returns a SQL Server connection URL for the sandbox.
// User and password are URL-escaped so special characters survive the round trip.
func (c *SandboxConfig) MSSQLConnectionString() string {
	query := url.Values{}
	query.Add("database", c.Database)
	query.Add("encrypt", "optional")
	return fmt.Sprintf(
		"sqlserver://%s:%s@%s:%d?%s",
		url.QueryEscape(c.User), url.QueryEscape(c.Password), ResolveHostForDocker(c.Host), c.Port, query.Encode(),
	)
}
