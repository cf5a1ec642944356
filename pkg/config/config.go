package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/openmmo/querymanager/internal/bytesize"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the query manager configuration.
//
// This structure captures the static configuration of the service:
//   - Logging configuration
//   - Server settings (port, password, buffer sizing, worker pool)
//   - Database connection (SQLite or PostgreSQL)
//   - Host cache tuning for game server address resolution
//   - Prometheus metrics server
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (QUERYMANAGER_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server configures the TCP listener and the query worker pool
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Database configures the backing store (SQLite or PostgreSQL)
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`

	// HostCache tunes the game server host name resolution cache
	HostCache HostCacheConfig `mapstructure:"host_cache" yaml:"host_cache"`

	// Metrics contains Prometheus metrics server configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// ServerConfig configures the loopback TCP listener and query processing.
//
// The listener only ever binds the loopback interface. Game servers, login
// servers and the website run on the same host and authenticate with the
// shared password; nothing here is reachable from outside.
type ServerConfig struct {
	// Port is the TCP port bound on 127.0.0.1
	// Default: 7174
	Port uint16 `mapstructure:"port" validate:"required" yaml:"port"`

	// Password is the shared secret clients present in their login frame.
	// At most 29 characters are significant on the wire.
	Password string `mapstructure:"password" yaml:"password,omitempty"`

	// BufferSize is the size of each connection's request/response buffer.
	// Frames larger than this fail the connection.
	// Supports human-readable formats: "1Mi", "64Ki", "524288"
	// Default: 1Mi
	BufferSize bytesize.ByteSize `mapstructure:"buffer_size" yaml:"buffer_size"`

	// MaxConnections caps concurrently served connections. The query queue
	// is sized to twice this value.
	// Default: 25
	MaxConnections int `mapstructure:"max_connections" validate:"required,min=1" yaml:"max_connections"`

	// MaxConnectionIdleTime drops connections with no completed request
	// for this long.
	// Default: 60s
	MaxConnectionIdleTime time.Duration `mapstructure:"max_connection_idle_time" validate:"required,gt=0" yaml:"max_connection_idle_time"`

	// WorkerThreads is the requested number of query workers. The effective
	// pool size is capped by the database backend's concurrency limit, so
	// SQLite always runs a single worker.
	// Default: 1
	WorkerThreads int `mapstructure:"worker_threads" validate:"required,min=1" yaml:"worker_threads"`

	// MaxAttempts is the total number of times a query is attempted before
	// it is reported as failed.
	// Default: 3
	MaxAttempts int `mapstructure:"max_attempts" validate:"required,min=1" yaml:"max_attempts"`
}

// DatabaseType identifies the database backend.
type DatabaseType string

const (
	// DatabaseTypeSQLite uses an embedded SQLite database (single writer)
	DatabaseTypeSQLite DatabaseType = "sqlite"

	// DatabaseTypePostgres connects to a PostgreSQL server
	DatabaseTypePostgres DatabaseType = "postgres"
)

// DatabaseConfig configures the backing store.
type DatabaseConfig struct {
	// Type selects the backend
	// Valid values: sqlite, postgres
	Type DatabaseType `mapstructure:"type" validate:"required,oneof=sqlite postgres" yaml:"type"`

	// MaxCachedStatements caps each worker's prepared statement cache.
	// PostgreSQL clamps this to 9999 because statement names carry a
	// four-digit suffix.
	// Default: 100
	MaxCachedStatements int `mapstructure:"max_cached_statements" validate:"required,min=1" yaml:"max_cached_statements"`

	// SQLite configures the sqlite backend (used when Type is "sqlite")
	SQLite SQLiteConfig `mapstructure:"sqlite" yaml:"sqlite"`

	// Postgres configures the postgres backend (used when Type is "postgres")
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

// SQLiteConfig contains SQLite-specific configuration.
type SQLiteConfig struct {
	// Path is the database file path
	// Default: tibia.db
	Path string `mapstructure:"path" yaml:"path"`

	// PatchDir is the directory scanned for *.sql schema patches at startup.
	// Patches run in lexicographic order and each applied file is recorded,
	// so re-runs are no-ops.
	// Default: "patches" next to the database file
	PatchDir string `mapstructure:"patch_dir" yaml:"patch_dir,omitempty"`
}

// PostgresConfig contains PostgreSQL-specific configuration.
type PostgresConfig struct {
	// Host is the PostgreSQL server hostname
	// Default: localhost
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the PostgreSQL server port
	// Default: 5432
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// Database is the database name
	// Default: tibia
	Database string `mapstructure:"database" yaml:"database"`

	// User is the database user
	// Default: postgres
	User string `mapstructure:"user" yaml:"user"`

	// Password is the database password
	Password string `mapstructure:"password" yaml:"password,omitempty"`

	// SSLMode controls TLS for the database connection
	// Valid values: disable, allow, prefer, require, verify-ca, verify-full
	// Default: prefer
	SSLMode string `mapstructure:"ssl_mode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full" yaml:"ssl_mode"`

	// SSLRootCert is the path to the CA certificate for verify-ca/verify-full
	SSLRootCert string `mapstructure:"ssl_root_cert" yaml:"ssl_root_cert,omitempty"`
}

// DSN returns the PostgreSQL connection string in key=value form.
func (c *PostgresConfig) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Database, c.SSLMode)
	if c.Password != "" {
		dsn += fmt.Sprintf(" password=%s", c.Password)
	}
	if c.SSLRootCert != "" {
		dsn += fmt.Sprintf(" sslrootcert=%s", c.SSLRootCert)
	}
	return dsn
}

// HostCacheConfig tunes the game server host name resolution cache.
type HostCacheConfig struct {
	// MaxEntries is the number of host names cached at once
	// Default: 100
	MaxEntries int `mapstructure:"max_entries" validate:"required,min=1" yaml:"max_entries"`

	// ExpireTime is how long a resolution (success or failure) stays fresh
	// Default: 30m
	ExpireTime time.Duration `mapstructure:"expire_time" validate:"required,gt=0" yaml:"expire_time"`
}

// MetricsConfig configures the Prometheus metrics HTTP server.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics collection and HTTP server are enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Host is the metrics listen address
	// Default: 127.0.0.1
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the HTTP port for the metrics endpoint
	// Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (QUERYMANAGER_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Configure viper
	setupViper(v, configPath)

	// Read configuration file if it exists
	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	// If no config file was found, use defaults
	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	// Unmarshal into config struct with custom decode hooks
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply defaults for any missing values
	ApplyDefaults(&cfg)

	// Validate configuration
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages.
// It checks if the config file exists and provides user-friendly instructions if not.
func MustLoad(configPath string) (*Config, error) {
	// Determine config path
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  querymanager init\n\n"+
				"Or specify a custom config file:\n"+
				"  querymanager <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  querymanager init --config %s",
				configPath, configPath)
		}
	}

	// Load configuration
	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path.
// The configuration is saved in YAML format using proper yaml tags.
func SaveConfig(cfg *Config, path string) error {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Use yaml.Marshal directly to respect yaml tags
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write to file with restricted permissions (0600 = owner read/write only).
	// The file carries the shared client password and database credentials.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Set up environment variable support
	// Environment variables use QUERYMANAGER_ prefix and underscores
	// Example: QUERYMANAGER_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("QUERYMANAGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Configure config file search
	if configPath != "" {
		// Use explicitly specified config file
		v.SetConfigFile(configPath)
	} else {
		// Use default location: $XDG_CONFIG_HOME/querymanager/config.yaml
		configDir := getConfigDir()
		v.AddConfigPath(configDir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error) where fileFound indicates if a config file was found.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		// Check if error is "config file not found"
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is acceptable - use defaults
			return false, nil
		}
		// Also check for os.PathError when explicit config file doesn't exist
		if os.IsNotExist(err) {
			return false, nil
		}
		// Other errors are problems
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
// This includes ByteSize and time.Duration parsing.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook returns a mapstructure decode hook that converts strings
// and integers to bytesize.ByteSize. This enables config files to use
// human-readable sizes like "1Mi", "64Ki", or plain numbers.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		// Only handle conversion to ByteSize
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook returns a mapstructure decode hook that converts strings
// to time.Duration. This enables config files to use human-readable durations
// like "30s", "5m", "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		// Only handle conversion to time.Duration
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	// Check XDG_CONFIG_HOME
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "querymanager")
	}

	// Fall back to ~/.config
	home, err := os.UserHomeDir()
	if err != nil {
		// If we can't get home dir, use current directory as last resort
		return "."
	}

	return filepath.Join(home, ".config", "querymanager")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	path := GetDefaultConfigPath()
	_, err := os.Stat(path)
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
