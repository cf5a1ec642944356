package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/openmmo/querymanager/internal/bytesize"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyDatabaseDefaults(&cfg.Database)
	applyHostCacheDefaults(&cfg.HostCache)
	applyMetricsDefaults(&cfg.Metrics)
	applyShutdownTimeoutDefaults(cfg)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets listener and worker pool defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Port == 0 {
		cfg.Port = 7174
	}
	// Password defaults to empty. Clients must then present an empty
	// password, which only makes sense for local development setups.
	if cfg.BufferSize == 0 {
		cfg.BufferSize = bytesize.MiB
	}
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = 25
	}
	if cfg.MaxConnectionIdleTime == 0 {
		cfg.MaxConnectionIdleTime = 60 * time.Second
	}
	if cfg.WorkerThreads == 0 {
		cfg.WorkerThreads = 1
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
}

// applyDatabaseDefaults sets backend defaults for both database types.
func applyDatabaseDefaults(cfg *DatabaseConfig) {
	if cfg.Type == "" {
		cfg.Type = DatabaseTypeSQLite
	}
	if cfg.MaxCachedStatements == 0 {
		cfg.MaxCachedStatements = 100
	}

	if cfg.SQLite.Path == "" {
		cfg.SQLite.Path = "tibia.db"
	}
	if cfg.SQLite.PatchDir == "" {
		cfg.SQLite.PatchDir = filepath.Join(filepath.Dir(cfg.SQLite.Path), "patches")
	}

	if cfg.Postgres.Host == "" {
		cfg.Postgres.Host = "localhost"
	}
	if cfg.Postgres.Port == 0 {
		cfg.Postgres.Port = 5432
	}
	if cfg.Postgres.Database == "" {
		cfg.Postgres.Database = "tibia"
	}
	if cfg.Postgres.User == "" {
		cfg.Postgres.User = "postgres"
	}
	if cfg.Postgres.SSLMode == "" {
		cfg.Postgres.SSLMode = "prefer"
	}
}

// applyHostCacheDefaults sets host cache defaults.
func applyHostCacheDefaults(cfg *HostCacheConfig) {
	if cfg.MaxEntries == 0 {
		cfg.MaxEntries = 100
	}
	if cfg.ExpireTime == 0 {
		cfg.ExpireTime = 30 * time.Minute
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false (opt-in for metrics)
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applyShutdownTimeoutDefaults sets shutdown timeout defaults.
func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Database: DatabaseConfig{
			Type: DatabaseTypeSQLite, // Default to SQLite for single-node
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
