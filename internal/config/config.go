package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kelseyhightower/envconfig"

	"github.com/bimakw/transfer-indexer/internal/domain/apperrors"
)

// Database engines
const (
	EnginePostgres = "postgres"
	EngineSqlite   = "sqlite"
)

// Config holds all configuration for the application
type Config struct {
	// Ethereum node configuration
	Ethereum EthereumConfig

	// Database configuration
	Database DatabaseConfig

	// Redis configuration
	Redis RedisConfig

	// API server configuration
	API APIConfig

	// Indexer configuration
	Indexer IndexerConfig

	// Logging configuration
	Log LogConfig
}

// EthereumConfig holds Ethereum node connection settings
type EthereumConfig struct {
	RPCURL         string        `envconfig:"ETH_RPC_URL" default:"http://localhost:8545"`
	ChainID        int64         `envconfig:"ETH_CHAIN_ID" default:"0"` // 0 skips the chain ID check
	RequestTimeout time.Duration `envconfig:"ETH_REQUEST_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds storage connection settings
type DatabaseConfig struct {
	Engine          string        `envconfig:"DB_ENGINE" default:"postgres"`
	Host            string        `envconfig:"DB_HOST" default:"localhost"`
	Port            int           `envconfig:"DB_PORT" default:"5432"`
	User            string        `envconfig:"DB_USER" default:"indexer"`
	Password        string        `envconfig:"DB_PASSWORD" default:"indexer"`
	Name            string        `envconfig:"DB_NAME" default:"transfer_indexer"`
	SSLMode         string        `envconfig:"DB_SSL_MODE" default:"disable"`
	SqliteFile      string        `envconfig:"DB_SQLITE_FILE" default:"transfers.db"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
	QueryTimeout    time.Duration `envconfig:"DB_QUERY_TIMEOUT" default:"10s"`
	AutoMigrate     bool          `envconfig:"DB_AUTO_MIGRATE" default:"true"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool   `envconfig:"REDIS_ENABLED" default:"true"`
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

// APIConfig holds API server settings
type APIConfig struct {
	Host            string        `envconfig:"API_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"API_PORT" default:"8081"`
	ReadTimeout     time.Duration `envconfig:"API_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"5m"`
	ShutdownTimeout time.Duration `envconfig:"API_SHUTDOWN_TIMEOUT" default:"30s"`
	RateLimitRPS    int           `envconfig:"API_RATE_LIMIT_RPS" default:"100"`
	CacheTTL        time.Duration `envconfig:"API_CACHE_TTL" default:"30s"`
	DefaultLimit    int           `envconfig:"API_DEFAULT_LIMIT" default:"100"`
	MaxLimit        int           `envconfig:"API_MAX_LIMIT" default:"1000"`
	IndexEnabled    bool          `envconfig:"API_INDEX_ENABLED" default:"true"`
}

// IndexerConfig holds indexer-specific settings
type IndexerConfig struct {
	MetricsPort        int           `envconfig:"INDEXER_METRICS_PORT" default:"8080"`
	BatchSize          uint64        `envconfig:"INDEXER_BATCH_SIZE" default:"1000"`
	MaxRetries         int           `envconfig:"INDEXER_MAX_RETRIES" default:"3"`
	RetryBackoff       time.Duration `envconfig:"INDEXER_RETRY_BACKOFF" default:"500ms"`
	RetryMaxBackoff    time.Duration `envconfig:"INDEXER_RETRY_MAX_BACKOFF" default:"10s"`
	FetchConcurrency   int           `envconfig:"INDEXER_FETCH_CONCURRENCY" default:"1"`
	WorkerCount        int           `envconfig:"INDEXER_WORKER_COUNT" default:"4"`
	PollInterval       time.Duration `envconfig:"INDEXER_POLL_INTERVAL" default:"10s"`
	BlockConfirmations uint64        `envconfig:"INDEXER_BLOCK_CONFIRMATIONS" default:"0"`
	StartBlock         int64         `envconfig:"INDEXER_START_BLOCK" default:"-1"` // -1 starts at the tip
	MaxScanDuration    time.Duration `envconfig:"INDEXER_MAX_SCAN_DURATION" default:"5m"`
	LatestBlocks       uint64        `envconfig:"INDEXER_LATEST_BLOCKS" default:"1000"`
	TimestampFallback  bool          `envconfig:"INDEXER_TIMESTAMP_FALLBACK" default:"false"`

	// Tokens to index (comma-separated addresses), empty indexes every token
	TokenAddresses []string `envconfig:"INDEXER_TOKEN_ADDRESSES" default:""`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"json"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, apperrors.Configuration("load config", "%v", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot check by itself
func (c *Config) Validate() error {
	const op = "validate config"

	switch c.Database.Engine {
	case EnginePostgres, EngineSqlite:
	default:
		return apperrors.Configuration(op, "unknown DB_ENGINE %q", c.Database.Engine)
	}
	if c.Database.Engine == EngineSqlite && c.Database.SqliteFile == "" {
		return apperrors.Configuration(op, "DB_SQLITE_FILE is required for the sqlite engine")
	}
	if c.Ethereum.RPCURL == "" {
		return apperrors.Configuration(op, "ETH_RPC_URL is required")
	}
	if c.Indexer.BatchSize == 0 {
		return apperrors.Configuration(op, "INDEXER_BATCH_SIZE must be positive")
	}
	if c.Indexer.MaxRetries < 0 {
		return apperrors.Configuration(op, "INDEXER_MAX_RETRIES must not be negative")
	}
	if c.Indexer.PollInterval <= 0 {
		return apperrors.Configuration(op, "INDEXER_POLL_INTERVAL must be positive")
	}
	if c.API.DefaultLimit <= 0 || c.API.MaxLimit <= 0 || c.API.DefaultLimit > c.API.MaxLimit {
		return apperrors.Configuration(op, "API_DEFAULT_LIMIT must be in [1, API_MAX_LIMIT]")
	}
	for _, addr := range c.Indexer.TokenAddresses {
		if !common.IsHexAddress(strings.TrimSpace(addr)) {
			return apperrors.Configuration(op, "invalid token address %q", addr)
		}
	}
	return nil
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return "host=" + c.Host +
		" port=" + strconv.Itoa(c.Port) +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.Name +
		" sslmode=" + c.SSLMode
}
