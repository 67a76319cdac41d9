package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for askdb-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (API keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Path to the schema description document consumed by the indexer.
	SchemaPath string `yaml:"schema_path" env:"SCHEMA_PATH" env-default:"schema.yaml"`

	// Path to the example corpus for retrieval-augmented generation.
	// Optional; an absent corpus disables example retrieval but is not an error.
	ExamplesPath string `yaml:"examples_path" env:"EXAMPLES_PATH" env-default:""`

	LLM      LLMConfig      `yaml:"llm"`
	Ranking  RankingConfig  `yaml:"ranking"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Security SecurityConfig `yaml:"security"`
}

// LLMConfig holds completion-service settings.
type LLMConfig struct {
	Endpoint string `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:"https://api.openai.com/v1"`
	Model    string `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o"`
	APIKey   string `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	// MaxTokens caps completion length for plan and SQL calls.
	MaxTokens int `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"1024"`
	// Temperature for completions. SQL generation wants near-determinism.
	Temperature float64 `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0.1"`
	// CircuitThreshold is consecutive failures before the breaker trips.
	CircuitThreshold int `yaml:"circuit_threshold" env:"LLM_CIRCUIT_THRESHOLD" env-default:"5"`
	// CircuitResetSeconds is how long the breaker stays open before probing.
	CircuitResetSeconds int `yaml:"circuit_reset_seconds" env:"LLM_CIRCUIT_RESET_SECONDS" env-default:"30"`
}

// RankingConfig holds the table-relevance scoring knobs. These are the
// tunable policy values behind the hybrid lexical/semantic ranker; defaults
// match the documented scoring formula.
type RankingConfig struct {
	// BM25Weight and CosineWeight combine the lexical and semantic scores.
	BM25Weight   float64 `yaml:"bm25_weight" env:"RANK_BM25_WEIGHT" env-default:"0.6"`
	CosineWeight float64 `yaml:"cosine_weight" env:"RANK_COSINE_WEIGHT" env-default:"0.4"`
	// BM25 free parameters.
	BM25K1 float64 `yaml:"bm25_k1" env:"RANK_BM25_K1" env-default:"1.5"`
	BM25B  float64 `yaml:"bm25_b" env:"RANK_BM25_B" env-default:"0.75"`
	// MinScore is the relevance floor; below it the overlap fallback kicks in.
	MinScore float64 `yaml:"min_score" env:"RANK_MIN_SCORE" env-default:"0.1"`
	// Table budgets by query complexity.
	SimpleTableBudget  int `yaml:"simple_table_budget" env:"RANK_SIMPLE_TABLE_BUDGET" env-default:"4"`
	ComplexTableBudget int `yaml:"complex_table_budget" env:"RANK_COMPLEX_TABLE_BUDGET" env-default:"8"`
	// ComplexityThreshold splits simple from complex queries (0-1 scale).
	ComplexityThreshold float64 `yaml:"complexity_threshold" env:"RANK_COMPLEXITY_THRESHOLD" env-default:"0.3"`
	// FallbackTables is how many tables the raw-overlap fallback returns.
	FallbackTables int `yaml:"fallback_tables" env:"RANK_FALLBACK_TABLES" env-default:"3"`
	// DescriptionCacheSize bounds the schema-context LRU cache.
	DescriptionCacheSize int `yaml:"description_cache_size" env:"RANK_DESCRIPTION_CACHE_SIZE" env-default:"100"`
	// Example retrieval settings.
	ExampleTopK      int     `yaml:"example_top_k" env:"RANK_EXAMPLE_TOP_K" env-default:"4"`
	ExampleThreshold float64 `yaml:"example_threshold" env:"RANK_EXAMPLE_THRESHOLD" env-default:"0.2"`
}

// PipelineConfig bounds the generate/validate/refine loop.
type PipelineConfig struct {
	// MaxAttempts caps generation cycles before GiveUp.
	MaxAttempts int `yaml:"max_attempts" env:"PIPELINE_MAX_ATTEMPTS" env-default:"3"`
	// CallTimeoutSeconds bounds each completion-service call.
	CallTimeoutSeconds int `yaml:"call_timeout_seconds" env:"PIPELINE_CALL_TIMEOUT_SECONDS" env-default:"30"`
	// RequestBudgetSeconds bounds the whole request regardless of attempts left.
	RequestBudgetSeconds int `yaml:"request_budget_seconds" env:"PIPELINE_REQUEST_BUDGET_SECONDS" env-default:"75"`
}

// SecurityConfig holds access-scoping policy.
type SecurityConfig struct {
	// ScopingColumn is the default row-isolation column for scoped tables.
	// Individual tables may override it in the schema document.
	ScopingColumn string `yaml:"scoping_column" env:"SECURITY_SCOPING_COLUMN" env-default:"accounts_entity_id"`
	// MaxTables caps how many tables one generated query may touch.
	MaxTables int `yaml:"max_tables" env:"SECURITY_MAX_TABLES" env-default:"10"`
	// DefaultRole applies when the request omits user_role.
	DefaultRole string `yaml:"default_role" env:"SECURITY_DEFAULT_ROLE" env-default:"customer"`
}

// CallTimeout returns the per-completion-call timeout as a duration.
func (p PipelineConfig) CallTimeout() time.Duration {
	return time.Duration(p.CallTimeoutSeconds) * time.Second
}

// RequestBudget returns the whole-request wall-clock budget as a duration.
func (p PipelineConfig) RequestBudget() time.Duration {
	return time.Duration(p.RequestBudgetSeconds) * time.Second
}

// CircuitReset returns the breaker reset window as a duration.
func (l LLMConfig) CircuitReset() time.Duration {
	return time.Duration(l.CircuitResetSeconds) * time.Second
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time and set on the
// returned Config. If config.yaml does not exist, environment variables and
// defaults alone are used.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Ranking.BM25Weight < 0 || c.Ranking.CosineWeight < 0 {
		return fmt.Errorf("ranking weights must be non-negative")
	}
	if c.Ranking.SimpleTableBudget < 1 || c.Ranking.ComplexTableBudget < c.Ranking.SimpleTableBudget {
		return fmt.Errorf("table budgets must satisfy 1 <= simple <= complex")
	}
	if c.Pipeline.MaxAttempts < 1 {
		return fmt.Errorf("pipeline max_attempts must be at least 1")
	}
	return nil
}
