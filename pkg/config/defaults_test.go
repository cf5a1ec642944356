package config

import (
	"testing"
	"time"

	"github.com/openmmo/querymanager/internal/bytesize"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output 'stdout', got %q", cfg.Logging.Output)
	}
}

func TestApplyDefaults_ShutdownTimeout(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout 30s, got %v", cfg.ShutdownTimeout)
	}
}

func TestApplyDefaults_Server(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Server.Port != 7174 {
		t.Errorf("Expected default port 7174, got %d", cfg.Server.Port)
	}
	if cfg.Server.BufferSize != bytesize.MiB {
		t.Errorf("Expected default buffer size 1Mi, got %d", cfg.Server.BufferSize)
	}
	if cfg.Server.MaxConnections != 25 {
		t.Errorf("Expected default max connections 25, got %d", cfg.Server.MaxConnections)
	}
	if cfg.Server.MaxConnectionIdleTime != 60*time.Second {
		t.Errorf("Expected default idle time 60s, got %v", cfg.Server.MaxConnectionIdleTime)
	}
	if cfg.Server.WorkerThreads != 1 {
		t.Errorf("Expected default worker threads 1, got %d", cfg.Server.WorkerThreads)
	}
	if cfg.Server.MaxAttempts != 3 {
		t.Errorf("Expected default max attempts 3, got %d", cfg.Server.MaxAttempts)
	}
}

func TestApplyDefaults_Database(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Database.Type != DatabaseTypeSQLite {
		t.Errorf("Expected default database type sqlite, got %q", cfg.Database.Type)
	}
	if cfg.Database.MaxCachedStatements != 100 {
		t.Errorf("Expected default max cached statements 100, got %d", cfg.Database.MaxCachedStatements)
	}
	if cfg.Database.SQLite.Path != "tibia.db" {
		t.Errorf("Expected default sqlite path 'tibia.db', got %q", cfg.Database.SQLite.Path)
	}
	if cfg.Database.SQLite.PatchDir != "patches" {
		t.Errorf("Expected default patch dir 'patches', got %q", cfg.Database.SQLite.PatchDir)
	}
	if cfg.Database.Postgres.Host != "localhost" {
		t.Errorf("Expected default postgres host 'localhost', got %q", cfg.Database.Postgres.Host)
	}
	if cfg.Database.Postgres.SSLMode != "prefer" {
		t.Errorf("Expected default postgres ssl mode 'prefer', got %q", cfg.Database.Postgres.SSLMode)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{
			Level:  "DEBUG",
			Format: "json",
			Output: "/var/log/querymanager.log",
		},
		Server: ServerConfig{
			Port:           7999,
			MaxConnections: 50,
		},
		Database: DatabaseConfig{
			Type: DatabaseTypePostgres,
		},
		ShutdownTimeout: 60 * time.Second,
	}

	ApplyDefaults(cfg)

	// Verify explicit values were preserved
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected explicit level 'DEBUG' to be preserved, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected explicit format 'json' to be preserved, got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "/var/log/querymanager.log" {
		t.Errorf("Expected explicit output to be preserved, got %q", cfg.Logging.Output)
	}
	if cfg.Server.Port != 7999 {
		t.Errorf("Expected explicit port 7999 to be preserved, got %d", cfg.Server.Port)
	}
	if cfg.Server.MaxConnections != 50 {
		t.Errorf("Expected explicit max connections 50 to be preserved, got %d", cfg.Server.MaxConnections)
	}
	if cfg.Database.Type != DatabaseTypePostgres {
		t.Errorf("Expected explicit database type to be preserved, got %q", cfg.Database.Type)
	}
	if cfg.ShutdownTimeout != 60*time.Second {
		t.Errorf("Expected explicit timeout 60s to be preserved, got %v", cfg.ShutdownTimeout)
	}
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	cfg := GetDefaultConfig()

	// The default config should pass validation
	err := Validate(cfg)
	if err != nil {
		t.Errorf("Default config should be valid, got error: %v", err)
	}
}

func TestGetDefaultConfig_HasRequiredFields(t *testing.T) {
	cfg := GetDefaultConfig()

	// Check all required sections are present
	if cfg.Logging.Level == "" {
		t.Error("Default config missing logging level")
	}
	if cfg.Server.Port == 0 {
		t.Error("Default config missing server port")
	}
	if cfg.Database.SQLite.Path == "" {
		t.Error("Default config missing sqlite path")
	}
	if cfg.HostCache.MaxEntries == 0 {
		t.Error("Default config missing host cache size")
	}
}
