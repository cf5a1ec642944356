package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// maxPasswordLength is the longest password that fits a login frame's
// 30-byte string field. Longer passwords could never match on the wire.
const maxPasswordLength = 29

// Validate checks the configuration for errors.
//
// Struct tags cover value-level constraints (ranges, enumerations); the
// cross-field rules that depend on which backend is selected are checked
// explicitly afterwards.
func Validate(cfg *Config) error {
	validate := validator.New()

	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if len(cfg.Server.Password) > maxPasswordLength {
		return fmt.Errorf("server password is %d characters; at most %d fit a login frame",
			len(cfg.Server.Password), maxPasswordLength)
	}

	switch cfg.Database.Type {
	case DatabaseTypeSQLite:
		if cfg.Database.SQLite.Path == "" {
			return fmt.Errorf("database type is sqlite but sqlite path is empty")
		}
	case DatabaseTypePostgres:
		if cfg.Database.Postgres.Host == "" {
			return fmt.Errorf("database type is postgres but postgres host is empty")
		}
		if cfg.Database.Postgres.Database == "" {
			return fmt.Errorf("database type is postgres but postgres database is empty")
		}
		if cfg.Database.Postgres.User == "" {
			return fmt.Errorf("database type is postgres but postgres user is empty")
		}
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Port == 0 {
		return fmt.Errorf("metrics enabled but no port configured")
	}

	return nil
}
