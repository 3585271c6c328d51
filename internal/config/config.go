package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pendergraft/deploycheck/internal/chains/evm"
	"github.com/pendergraft/deploycheck/internal/validation"
)

// Ledger types
const (
	LedgerNone     = "none"
	LedgerSQLite   = "sqlite"
	LedgerPostgres = "postgres"
)

// Config holds all configuration for the harness, the sandbox and the CLI
type Config struct {
	Harness   HarnessConfig
	Sandbox   SandboxConfig
	Server    ServerConfig
	Ledger    LedgerConfig
	Logging   LoggingConfig
	Metrics   MetricsConfig
	RateLimit RateLimitConfig
}

// HarnessConfig holds the deployment harness settings
type HarnessConfig struct {
	Endpoint      string
	ReadyTimeout  time.Duration
	ReadyInterval time.Duration
	PollInterval  time.Duration
	DeployTimeout time.Duration
	Factory       string
	PrivateKeys   []string // hex, optional local signers
}

// SandboxConfig holds the sandbox node settings
type SandboxConfig struct {
	Accounts     int
	ChainID      int64
	Seed         string
	MiningDelay  time.Duration
	StartupDelay time.Duration
}

// ServerConfig holds the sandbox HTTP server configuration
type ServerConfig struct {
	Port          int
	Host          string
	ReadTimeout   int // seconds
	WriteTimeout  int // seconds
	IdleTimeout   int // seconds
	MaxBodySizeMB int
}

// LedgerConfig holds the attempt ledger settings
type LedgerConfig struct {
	Type     string // "none", "sqlite" or "postgres"
	Postgres PostgresConfig
	SQLite   SQLiteConfig
}

// PostgresConfig holds Postgres connection settings
type PostgresConfig struct {
	URL string
}

// SQLiteConfig holds SQLite settings
type SQLiteConfig struct {
	Path string
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string
	Format string // "text" or "json"
}

// MetricsConfig holds metrics settings
type MetricsConfig struct {
	Enabled bool
}

// RateLimitConfig holds the sandbox's simulated provider throttling
type RateLimitConfig struct {
	Enabled        bool
	RequestsPerSec float64
	BurstSize      int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Harness: HarnessConfig{
			Endpoint:      getEnv("SANDBOX_URL", "http://localhost:8545"),
			ReadyTimeout:  time.Duration(getEnvInt("READY_TIMEOUT_SECONDS", 300)) * time.Second,
			ReadyInterval: time.Duration(getEnvInt("READY_INTERVAL_MS", 500)) * time.Millisecond,
			PollInterval:  time.Duration(getEnvInt("POLL_INTERVAL_MS", 250)) * time.Millisecond,
			DeployTimeout: time.Duration(getEnvInt("DEPLOY_TIMEOUT_SECONDS", 120)) * time.Second,
			Factory:       getEnv("FACTORY_ADDRESS", evm.DefaultFactory.Hex()),
			PrivateKeys:   getEnvStringSlice("TEST_PRIVATE_KEYS", nil),
		},
		Sandbox: SandboxConfig{
			Accounts:     getEnvInt("SANDBOX_ACCOUNTS", 10),
			ChainID:      int64(getEnvInt("SANDBOX_CHAIN_ID", 31337)),
			Seed:         getEnv("SANDBOX_SEED", "deploycheck"),
			MiningDelay:  time.Duration(getEnvInt("SANDBOX_MINING_DELAY_MS", 500)) * time.Millisecond,
			StartupDelay: time.Duration(getEnvInt("SANDBOX_STARTUP_DELAY_MS", 0)) * time.Millisecond,
		},
		Server: ServerConfig{
			Port:          getEnvInt("PORT", 8545),
			Host:          getEnv("HOST", "127.0.0.1"),
			ReadTimeout:   getEnvInt("SERVER_READ_TIMEOUT", 30),
			WriteTimeout:  getEnvInt("SERVER_WRITE_TIMEOUT", 60),
			IdleTimeout:   getEnvInt("SERVER_IDLE_TIMEOUT", 120),
			MaxBodySizeMB: getEnvInt("SERVER_MAX_BODY_SIZE_MB", 8),
		},
		Ledger: LedgerConfig{
			Type: getEnv("LEDGER_TYPE", LedgerNone),
			Postgres: PostgresConfig{
				URL: getEnv("DATABASE_URL", ""),
			},
			SQLite: SQLiteConfig{
				Path: getEnv("SQLITE_PATH", "./data/deploycheck.db"),
			},
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", false),
		},
		RateLimit: RateLimitConfig{
			Enabled:        getEnvBool("SANDBOX_RATE_LIMIT_ENABLED", false),
			RequestsPerSec: getEnvFloat("SANDBOX_RATE_LIMIT_RPS", 50),
			BurstSize:      getEnvInt("SANDBOX_RATE_LIMIT_BURST", 100),
		},
	}

	// If DATABASE_URL is set, default to postgres
	if cfg.Ledger.Postgres.URL != "" && os.Getenv("LEDGER_TYPE") == "" {
		cfg.Ledger.Type = LedgerPostgres
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted silently.
func (c *Config) Validate() error {
	if err := validation.ValidateAddress(c.Harness.Factory); err != nil {
		return fmt.Errorf("FACTORY_ADDRESS: %w", err)
	}
	switch c.Ledger.Type {
	case LedgerNone, LedgerSQLite:
	case LedgerPostgres:
		if c.Ledger.Postgres.URL == "" {
			return fmt.Errorf("LEDGER_TYPE=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("unsupported LEDGER_TYPE %q (want none, sqlite or postgres)", c.Ledger.Type)
	}
	if c.Sandbox.Accounts < 0 {
		return fmt.Errorf("SANDBOX_ACCOUNTS must not be negative")
	}
	if err := validation.ValidateChainID(c.Sandbox.ChainID); err != nil {
		return fmt.Errorf("SANDBOX_CHAIN_ID: %w", err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
