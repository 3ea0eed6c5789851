package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/rawblock/txflow-engine/internal/heuristics"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when CONFIG_PATH is unset
const DefaultPath = "config.yaml"

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Chain    ChainConfig    `yaml:"chain"`
	Engine   EngineConfig   `yaml:"engine"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Port            string        `yaml:"port" default:"5339" validate:"required,numeric"`
	RequestTimeout  time.Duration `yaml:"request_timeout" default:"30s" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s" validate:"gt=0"`
	// AuthToken enables bearer auth on /api/v1 when non-empty
	AuthToken   string          `yaml:"auth_token"`
	CORSOrigins []string        `yaml:"cors_origins"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" default:"10" validate:"gt=0"`
	Burst             int     `yaml:"burst" default:"20" validate:"gte=1"`
}

// DatabaseConfig selects the ledger. An empty URL runs on the in-memory ledger.
type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	MaxConns        int32         `yaml:"max_conns" default:"10" validate:"gte=1"`
	MinConns        int32         `yaml:"min_conns" default:"1" validate:"gte=0"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" default:"30m"`
}

// RedisConfig enables the transaction cache when Addr is set
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db" validate:"gte=0"`
	Prefix   string        `yaml:"prefix" default:"txflow"`
	TTL      time.Duration `yaml:"ttl" default:"5m" validate:"gt=0"`
}

type ChainConfig struct {
	RPCURL     string `yaml:"rpc_url" default:"https://api.mainnet-beta.solana.com" validate:"required,url"`
	Commitment string `yaml:"commitment" default:"confirmed" validate:"oneof=processed confirmed finalized"`
	SyncLimit  int    `yaml:"sync_limit" default:"100" validate:"min=1,max=1000"`
	// FetchConcurrency bounds parallel getTransaction calls per sync
	FetchConcurrency int `yaml:"fetch_concurrency" default:"4" validate:"min=1,max=32"`
	// WatchAddresses are re-synced and re-clustered every PollInterval
	WatchAddresses []string      `yaml:"watch_addresses" validate:"dive,required"`
	PollInterval   time.Duration `yaml:"poll_interval" default:"30s" validate:"gt=0"`
}

// EngineConfig exposes the heuristic knobs operators tune most often
type EngineConfig struct {
	TimeWindow           time.Duration `yaml:"time_window" default:"24h" validate:"gt=0"`
	MinTransactions      int           `yaml:"min_transactions" default:"3" validate:"min=1"`
	SimilarityThreshold  float64       `yaml:"similarity_threshold" default:"0.7" validate:"gt=0,lte=1"`
	TransactionLimit     int           `yaml:"transaction_limit" default:"100" validate:"min=1,max=10000"`
	TraceDepth           int           `yaml:"trace_depth" default:"3" validate:"min=1,max=5"`
	AssociationThreshold float64       `yaml:"association_threshold" default:"0.5" validate:"gte=0,lte=1"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Format string `yaml:"format" default:"json" validate:"oneof=json console"`
}

var validate = validator.New()

// Load builds the configuration from defaults, the optional YAML file at
// path, then environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("read config: %w", err)
	}

	c.applyEnv()

	if err := validate.Struct(&c); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadFromEnv loads the file named by CONFIG_PATH (default config.yaml)
func LoadFromEnv() (*Config, error) {
	return Load(getEnvOrDefault("CONFIG_PATH", DefaultPath))
}

func (c *Config) applyEnv() {
	c.Database.URL = getEnvOrDefault("DATABASE_URL", c.Database.URL)
	c.Redis.Addr = getEnvOrDefault("REDIS_ADDR", c.Redis.Addr)
	c.Chain.RPCURL = getEnvOrDefault("SOLANA_RPC_URL", c.Chain.RPCURL)
	c.Server.Port = getEnvOrDefault("PORT", c.Server.Port)
	c.Server.AuthToken = getEnvOrDefault("API_AUTH_TOKEN", c.Server.AuthToken)
	c.Log.Level = getEnvOrDefault("LOG_LEVEL", c.Log.Level)
}

// Heuristics maps the engine knobs onto the full heuristic parameter set
func (c *Config) Heuristics() heuristics.Config {
	h := heuristics.DefaultConfig()
	h.Grouping.TimeWindow = c.Engine.TimeWindow
	h.Grouping.MinTransactions = c.Engine.MinTransactions
	h.Merge.SimilarityThreshold = c.Engine.SimilarityThreshold
	h.Trace.DefaultDepth = c.Engine.TraceDepth
	h.Association.ReportingThreshold = c.Engine.AssociationThreshold
	return h
}

// getEnvOrDefault returns the env var value or fallback when unset or empty
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
