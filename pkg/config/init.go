package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// InitConfig creates a sample configuration file at the default location.
// Returns the path of the created file. Fails if the file already exists
// unless force is true.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath creates a sample configuration file at the given path.
// Fails if the file already exists unless force is true.
//
// The generated file carries a freshly generated random password so a new
// installation never runs with an empty shared secret.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("configuration file already exists: %s\n\n"+
				"Use --force to overwrite it", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	password, err := generatePassword()
	if err != nil {
		return fmt.Errorf("failed to generate password: %w", err)
	}

	content := fmt.Sprintf(sampleConfig, password)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// generatePassword returns a random hex password that fits a login frame.
func generatePassword() (string, error) {
	var raw [12]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw[:]), nil
}

// sampleConfig is the commented template written by init. The single %s
// placeholder receives the generated password.
const sampleConfig = `# Query Manager Configuration File
#
# The query manager fronts the game database for game servers, the login
# server and the website. It listens on the loopback interface only; every
# client presents the shared password below in its login frame.
#
# Any value here can be overridden with a QUERYMANAGER_* environment
# variable, e.g. QUERYMANAGER_LOGGING_LEVEL=DEBUG.

logging:
  # Minimum log level: DEBUG, INFO, WARN, ERROR
  level: "INFO"
  # Output format: text, json
  format: "text"
  # Where logs are written: stdout, stderr, or a file path
  output: "stdout"

server:
  # TCP port bound on 127.0.0.1
  port: 7174
  # Shared secret presented by game servers, login server and website
  password: "%s"
  # Per-connection request/response buffer; frames larger than this fail
  # the connection
  buffer_size: "1Mi"
  # Concurrently served connections; the query queue holds twice this many
  max_connections: 25
  # Connections idle longer than this are dropped
  max_connection_idle_time: "60s"
  # Requested query workers; SQLite caps the pool at a single worker
  worker_threads: 1
  # Total attempts per query before it is reported as failed
  max_attempts: 3

database:
  # Backend: sqlite, postgres
  type: "sqlite"
  # Per-worker prepared statement cache size
  max_cached_statements: 100

  sqlite:
    path: "tibia.db"
    # Directory scanned for *.sql schema patches, applied in name order
    # patch_dir: "patches"

  postgres:
    host: "localhost"
    port: 5432
    database: "tibia"
    user: "postgres"
    # password: ""
    # TLS mode: disable, allow, prefer, require, verify-ca, verify-full
    ssl_mode: "prefer"
    # ssl_root_cert: "/etc/ssl/certs/ca.pem"

host_cache:
  # Game server host names cached at once
  max_entries: 100
  # How long a resolution (success or failure) stays fresh
  expire_time: "30m"

metrics:
  # Prometheus metrics HTTP server (disabled by default)
  enabled: false
  host: "127.0.0.1"
  port: 9090

# Maximum time to wait for in-flight queries during shutdown
shutdown_timeout: "30s"
`
