package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/kindred/internal/domain"
)

// Config holds the kindred service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Index     IndexConfig     `yaml:"index"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Reasoning ReasoningConfig `yaml:"reasoning"`
	Ranking   RankingConfig   `yaml:"ranking"`
	Intent    IntentConfig    `yaml:"intent"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	NATS      NATSConfig      `yaml:"nats"`
	Reindex   ReindexConfig   `yaml:"reindex"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds Redis/Valkey connection settings (entity store, cache, secondary index).
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // valkey, redis (default: redis)
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ClientName       string   `yaml:"client_name"` // default: kindred
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// IndexConfig selects and configures the vector index tiers.
type IndexConfig struct {
	Primary   string        `yaml:"primary"`   // qdrant, redis, memory
	Secondary string        `yaml:"secondary"` // redis, memory, none
	Qdrant    QdrantConfig  `yaml:"qdrant"`
	Redis     RedisIndex    `yaml:"redis"`
	Breaker   BreakerConfig `yaml:"breaker"`
}

// QdrantConfig holds Qdrant gRPC connection settings.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	UseTLS     bool   `yaml:"use_tls"`
	APIKey     string `yaml:"api_key"`
	Collection string `yaml:"collection"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// RedisIndex holds FT index settings for the dense-only Redis tier.
type RedisIndex struct {
	Name            string `yaml:"name"`
	HNSWM           int    `yaml:"hnsw_m"`
	HNSWEFConstruct int    `yaml:"hnsw_ef_construction"`
}

// BreakerConfig tunes the circuit breaker guarding the primary index.
type BreakerConfig struct {
	MinRequests    uint32  `yaml:"min_requests"`
	FailureRatio   float64 `yaml:"failure_ratio"`
	OpenTimeoutSec int     `yaml:"open_timeout_sec"`
}

// EmbeddingConfig holds dense and sparse embedder settings.
type EmbeddingConfig struct {
	Dense     DenseConfig  `yaml:"dense"`
	Sparse    SparseConfig `yaml:"sparse"`
	MaxTokens int          `yaml:"max_tokens"`
	Retry     RetryConfig  `yaml:"retry"`
	CacheTTL  int          `yaml:"cache_ttl_sec"` // 0 = no expiry
}

// DenseConfig holds the OpenAI-compatible dense provider settings.
type DenseConfig struct {
	Provider            string `yaml:"provider"`
	APIKey              string `yaml:"api_key"`
	BaseURL             string `yaml:"base_url"`
	Model               string `yaml:"model"`
	Dimensions          int    `yaml:"dimensions"`
	DocumentInstruction string `yaml:"document_instruction"`
	QueryInstruction    string `yaml:"query_instruction"`
}

// SparseConfig holds the sparse embedder settings.
type SparseConfig struct {
	Provider   string `yaml:"provider"` // local, tei
	URL        string `yaml:"url"`
	MaxTerms   int    `yaml:"max_terms"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// RetryConfig bounds the write-path embedding retries.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts"`
	InitialBackoffMS int     `yaml:"initial_backoff_ms"`
	MaxBackoffMS     int     `yaml:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier"`
}

// ReasoningConfig holds the external reasoning provider settings.
type ReasoningConfig struct {
	Provider       string  `yaml:"provider"` // openai, ollama, none
	BaseURL        string  `yaml:"base_url"`
	APIKey         string  `yaml:"api_key"`
	Model          string  `yaml:"model"`
	TimeoutSec     int     `yaml:"timeout_sec"`
	MaxConcurrency int     `yaml:"max_concurrency"`
	RatePerSec     float64 `yaml:"rate_per_sec"`
	Burst          int     `yaml:"burst"`
}

// RankingConfig holds fusion settings.
type RankingConfig struct {
	Strategy        string  `yaml:"strategy"` // rrf, dbsf
	Alpha           float64 `yaml:"alpha"`
	RRFK            int     `yaml:"rrf_k"`
	OverfetchFactor int     `yaml:"overfetch_factor"`
	DefaultLimit    int     `yaml:"default_limit"`
	MaxLimit        int     `yaml:"max_limit"`
	ExplainTopK     int     `yaml:"explain_top_k"`
	TimeoutSec      int     `yaml:"timeout_sec"`
}

// IntentConfig holds classifier settings.
type IntentConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

// LedgerConfig holds swipe ledger database settings.
type LedgerConfig struct {
	Driver string `yaml:"driver"` // postgres, sqlite
	DSN    string `yaml:"dsn"`
}

// NATSConfig holds profile-change subscription settings.
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
	Queue   string `yaml:"queue"`
}

// ReindexConfig controls the background retry of stale entities.
type ReindexConfig struct {
	StaleIntervalSec int `yaml:"stale_interval_sec"`
	Concurrency      int `yaml:"concurrency"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse expands env variables, unmarshals, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from KINDRED_ENV, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("KINDRED_ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
//
//nolint:gocyclo // flat list of defaults
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "redis"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Database.ClientName == "" {
		c.Database.ClientName = "kindred"
	}

	if c.Index.Primary == "" {
		c.Index.Primary = "qdrant"
	}
	if c.Index.Secondary == "" {
		c.Index.Secondary = "none"
	}
	if c.Index.Qdrant.Host == "" {
		c.Index.Qdrant.Host = "localhost"
	}
	if c.Index.Qdrant.Port <= 0 {
		c.Index.Qdrant.Port = 6334
	}
	if c.Index.Qdrant.Collection == "" {
		c.Index.Qdrant.Collection = "kindred_entities"
	}
	if c.Index.Qdrant.TimeoutSec <= 0 {
		c.Index.Qdrant.TimeoutSec = 5
	}
	if c.Index.Redis.Name == "" {
		c.Index.Redis.Name = "kindred_vec_idx"
	}
	if c.Index.Redis.HNSWM <= 0 {
		c.Index.Redis.HNSWM = 16
	}
	if c.Index.Redis.HNSWEFConstruct <= 0 {
		c.Index.Redis.HNSWEFConstruct = 200
	}
	if c.Index.Breaker.MinRequests == 0 {
		c.Index.Breaker.MinRequests = 5
	}
	if c.Index.Breaker.FailureRatio <= 0 {
		c.Index.Breaker.FailureRatio = 0.5
	}
	if c.Index.Breaker.OpenTimeoutSec <= 0 {
		c.Index.Breaker.OpenTimeoutSec = 30
	}

	vec := domain.DefaultVectorConfig()
	if c.Embedding.Dense.Provider == "" {
		c.Embedding.Dense.Provider = "openai"
	}
	if c.Embedding.Dense.Model == "" {
		c.Embedding.Dense.Model = vec.Model
	}
	if c.Embedding.Dense.Dimensions <= 0 {
		c.Embedding.Dense.Dimensions = vec.Dimensions
	}
	if c.Embedding.Sparse.Provider == "" {
		c.Embedding.Sparse.Provider = "local"
	}
	if c.Embedding.Sparse.MaxTerms <= 0 {
		c.Embedding.Sparse.MaxTerms = vec.MaxSparseTerms
	}
	if c.Embedding.Sparse.TimeoutSec <= 0 {
		c.Embedding.Sparse.TimeoutSec = 10
	}
	if c.Embedding.MaxTokens <= 0 {
		c.Embedding.MaxTokens = vec.MaxTokens
	}
	if c.Embedding.Retry.MaxAttempts <= 0 {
		c.Embedding.Retry.MaxAttempts = 3
	}
	if c.Embedding.Retry.InitialBackoffMS <= 0 {
		c.Embedding.Retry.InitialBackoffMS = 100
	}
	if c.Embedding.Retry.MaxBackoffMS <= 0 {
		c.Embedding.Retry.MaxBackoffMS = 400
	}
	if c.Embedding.Retry.Multiplier < 1 {
		c.Embedding.Retry.Multiplier = 2
	}

	if c.Reasoning.Provider == "" {
		c.Reasoning.Provider = "none"
	}
	if c.Reasoning.TimeoutSec <= 0 {
		c.Reasoning.TimeoutSec = 8
	}
	if c.Reasoning.MaxConcurrency <= 0 {
		c.Reasoning.MaxConcurrency = 4
	}
	if c.Reasoning.RatePerSec <= 0 {
		c.Reasoning.RatePerSec = 10
	}
	if c.Reasoning.Burst <= 0 {
		c.Reasoning.Burst = c.Reasoning.MaxConcurrency
	}

	if c.Ranking.Strategy == "" {
		c.Ranking.Strategy = "rrf"
	}
	if c.Ranking.Alpha == 0 {
		c.Ranking.Alpha = 0.5
	}
	if c.Ranking.RRFK <= 0 {
		c.Ranking.RRFK = 60
	}
	if c.Ranking.OverfetchFactor <= 0 {
		c.Ranking.OverfetchFactor = 3
	}
	if c.Ranking.DefaultLimit <= 0 {
		c.Ranking.DefaultLimit = 50
	}
	if c.Ranking.MaxLimit <= 0 {
		c.Ranking.MaxLimit = 200
	}
	if c.Ranking.ExplainTopK <= 0 {
		c.Ranking.ExplainTopK = 10
	}
	if c.Ranking.TimeoutSec <= 0 {
		c.Ranking.TimeoutSec = 15
	}

	if c.Intent.ConfidenceThreshold == 0 {
		c.Intent.ConfidenceThreshold = 0.6
	}

	if c.Ledger.Driver == "" {
		c.Ledger.Driver = "sqlite"
	}
	if c.Ledger.DSN == "" && c.Ledger.Driver == "sqlite" {
		c.Ledger.DSN = "kindred.db"
	}

	if c.NATS.Subject == "" {
		c.NATS.Subject = "kindred.profile.changed"
	}
	if c.NATS.Queue == "" {
		c.NATS.Queue = "kindred-indexer"
	}

	if c.Reindex.StaleIntervalSec <= 0 {
		c.Reindex.StaleIntervalSec = 60
	}
	if c.Reindex.Concurrency <= 0 {
		c.Reindex.Concurrency = 4
	}
}

// Validate checks the configuration for correctness.
//
//nolint:gocyclo // flat list of checks
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	switch c.Database.Driver {
	case "redis", "valkey":
	default:
		return fmt.Errorf("database.driver must be \"redis\" or \"valkey\", got %q", c.Database.Driver)
	}

	switch c.Index.Primary {
	case "qdrant", "redis", "memory":
	default:
		return fmt.Errorf("index.primary must be one of qdrant, redis, memory, got %q", c.Index.Primary)
	}
	switch c.Index.Secondary {
	case "redis", "memory", "none":
	default:
		return fmt.Errorf("index.secondary must be one of redis, memory, none, got %q", c.Index.Secondary)
	}
	if c.Index.Secondary == c.Index.Primary {
		return fmt.Errorf("index.secondary must differ from index.primary (%q)", c.Index.Primary)
	}
	if c.Index.Breaker.FailureRatio > 1 {
		return fmt.Errorf("index.breaker.failure_ratio must be in (0,1], got %g", c.Index.Breaker.FailureRatio)
	}

	if c.Embedding.Dense.Provider != "openai" {
		return fmt.Errorf("embedding.dense.provider must be \"openai\", got %q", c.Embedding.Dense.Provider)
	}
	switch c.Embedding.Sparse.Provider {
	case "local":
	case "tei":
		if c.Embedding.Sparse.URL == "" {
			return fmt.Errorf("embedding.sparse.url is required for the tei provider")
		}
	default:
		return fmt.Errorf("embedding.sparse.provider must be \"local\" or \"tei\", got %q", c.Embedding.Sparse.Provider)
	}

	switch c.Reasoning.Provider {
	case "openai", "ollama":
		if c.Reasoning.Model == "" {
			return fmt.Errorf("reasoning.model is required for provider %q", c.Reasoning.Provider)
		}
	case "none":
	default:
		return fmt.Errorf("reasoning.provider must be one of openai, ollama, none, got %q", c.Reasoning.Provider)
	}

	if _, err := parseStrategy(c.Ranking.Strategy); err != nil {
		return err
	}
	if c.Ranking.Alpha < 0 || c.Ranking.Alpha > 1 {
		return fmt.Errorf("ranking.alpha must be in [0,1], got %g", c.Ranking.Alpha)
	}
	if c.Ranking.DefaultLimit > c.Ranking.MaxLimit {
		return fmt.Errorf("ranking.default_limit (%d) exceeds ranking.max_limit (%d)",
			c.Ranking.DefaultLimit, c.Ranking.MaxLimit)
	}
	if c.Intent.ConfidenceThreshold < 0 || c.Intent.ConfidenceThreshold > 1 {
		return fmt.Errorf("intent.confidence_threshold must be in [0,1], got %g", c.Intent.ConfidenceThreshold)
	}

	switch c.Ledger.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("ledger.driver must be \"postgres\" or \"sqlite\", got %q", c.Ledger.Driver)
	}
	if c.Ledger.DSN == "" {
		return fmt.Errorf("ledger.dsn is required")
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when nats.enabled is true")
	}
	return nil
}

func parseStrategy(s string) (string, error) {
	switch s {
	case "rrf", "dbsf":
		return s, nil
	default:
		return "", fmt.Errorf("ranking.strategy must be \"rrf\" or \"dbsf\", got %q", s)
	}
}

// findConfigPath locates the config file. KINDRED_CONFIG overrides the lookup.
func findConfigPath(env string) string {
	if p := os.Getenv("KINDRED_CONFIG"); p != "" {
		return p
	}

	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
