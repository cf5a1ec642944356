// Package database fronts the game database for the query workers.
//
// Each worker owns a Session holding a dedicated connection and a
// prepared statement cache, so the hot path never re-prepares SQL and
// transactions never interleave across workers. Every game query is
// written once in SQLite form; statements that genuinely diverge carry a
// PostgreSQL override, everything else is rebound mechanically.
//
// Opening the database also brings the schema up to date: SQLite runs the
// embedded schema plus any pending patch files, PostgreSQL runs the
// embedded migrations.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"

	_ "github.com/glebarez/go-sqlite"  // registers the "sqlite" driver
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver

	"github.com/openmmo/querymanager/internal/logger"
	"github.com/openmmo/querymanager/pkg/config"
)

// maxPostgresStatements caps the per session statement cache for
// PostgreSQL. Far more than the distinct statements the service runs.
const maxPostgresStatements = 9999

// Database is a handle on the configured backend. It hands out worker
// Sessions and owns the underlying connection pool.
type Database struct {
	db                  *sql.DB
	dialect             dialect
	maxCachedStatements int

	stmtHits      atomic.Uint64
	stmtMisses    atomic.Uint64
	stmtEvictions atomic.Uint64
}

// Stats is a cumulative snapshot of statement cache activity summed over
// all sessions since the database was opened.
type Stats struct {
	StatementHits      uint64
	StatementMisses    uint64
	StatementEvictions uint64
}

// Stats reports statement cache activity for metrics exposition.
func (d *Database) Stats() Stats {
	return Stats{
		StatementHits:      d.stmtHits.Load(),
		StatementMisses:    d.stmtMisses.Load(),
		StatementEvictions: d.stmtEvictions.Load(),
	}
}

// Open connects to the configured backend and brings the schema up to
// date before returning.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (*Database, error) {
	switch cfg.Type {
	case config.DatabaseTypeSQLite:
		return openSQLite(ctx, cfg)
	case config.DatabaseTypePostgres:
		return openPostgres(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown database type %q", cfg.Type)
	}
}

func openSQLite(ctx context.Context, cfg *config.DatabaseConfig) (*Database, error) {
	db, err := sql.Open("sqlite", cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %q: %w", cfg.SQLite.Path, err)
	}

	// A single connection mirrors the single writer the backend supports.
	// The lone worker session and the schema phase share it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database %q: %w", cfg.SQLite.Path, err)
	}

	// The service owns schema and data, so refuse read only files up front
	// instead of failing on the first write.
	if _, err := db.ExecContext(ctx, "BEGIN IMMEDIATE; ROLLBACK"); err != nil {
		db.Close()
		return nil, fmt.Errorf("database %q is not writable: %w", cfg.SQLite.Path, err)
	}

	if err := checkSQLiteSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	if err := applySQLitePatches(ctx, db, cfg.SQLite.PatchDir); err != nil {
		db.Close()
		return nil, err
	}

	logger.InfoCtx(ctx, "Database ready",
		logger.Database("sqlite"), logger.Path(cfg.SQLite.Path))
	return &Database{
		db:                  db,
		dialect:             sqliteDialect{},
		maxCachedStatements: cfg.MaxCachedStatements,
	}, nil
}

func openPostgres(ctx context.Context, cfg *config.DatabaseConfig) (*Database, error) {
	dsn := cfg.Postgres.DSN()
	if !strings.Contains(dsn, "application_name=") {
		dsn += " application_name=querymanager"
	}

	if err := migratePostgres(ctx, dsn); err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s:%d: %w",
			cfg.Postgres.Host, cfg.Postgres.Port, err)
	}

	maxStmts := cfg.MaxCachedStatements
	if maxStmts > maxPostgresStatements {
		logger.WarnCtx(ctx, "Statement cache capped for PostgreSQL",
			logger.Statements(maxPostgresStatements))
		maxStmts = maxPostgresStatements
	}

	logger.InfoCtx(ctx, "Database ready",
		logger.Database("postgres"),
		logger.Address(fmt.Sprintf("%s:%d", cfg.Postgres.Host, cfg.Postgres.Port)))
	return &Database{
		db:                  db,
		dialect:             postgresDialect{},
		maxCachedStatements: maxStmts,
	}, nil
}

// Close releases the connection pool. Sessions must be closed first.
func (d *Database) Close() error {
	return d.db.Close()
}

// Kind returns the backend name for logs.
func (d *Database) Kind() string {
	return d.dialect.name()
}

// MaxConcurrency returns how many worker sessions may execute queries at
// the same time. Zero means the backend imposes no limit.
func (d *Database) MaxConcurrency() int {
	return d.dialect.maxConcurrency()
}

// SchemaStatus is the schema revision of an open database.
type SchemaStatus struct {
	// Version is the SQLite user_version or the PostgreSQL migration
	// number.
	Version int64

	// Patches counts applied SQLite patch files. Always zero for
	// PostgreSQL, whose patches are regular migrations.
	Patches int64
}

// SchemaStatus reports the schema revision. Open has already verified it,
// so this is informational, for the migrate command and status output.
func (d *Database) SchemaStatus(ctx context.Context) (SchemaStatus, error) {
	var s SchemaStatus
	var err error

	switch d.dialect.(type) {
	case sqliteDialect:
		s.Version, err = pragmaInt(ctx, d.db, "user_version")
		if err != nil {
			return SchemaStatus{}, err
		}
		// The bookkeeping table only exists once a patch directory has
		// been configured.
		err = d.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'AppliedPatches'").
			Scan(&s.Patches)
		if err != nil {
			return SchemaStatus{}, fmt.Errorf("failed to inspect schema: %w", err)
		}
		if s.Patches > 0 {
			err = d.db.QueryRowContext(ctx,
				"SELECT COUNT(*) FROM AppliedPatches").Scan(&s.Patches)
			if err != nil {
				return SchemaStatus{}, fmt.Errorf("failed to count patches: %w", err)
			}
		}
	default:
		err = d.db.QueryRowContext(ctx,
			"SELECT version FROM schema_migrations").Scan(&s.Version)
		if err != nil {
			return SchemaStatus{}, fmt.Errorf("failed to read migration version: %w", err)
		}
	}
	return s, nil
}

// Migrate brings the schema up to date and reports the resulting revision.
// Open performs the same work at startup; this is the entry point for the
// migrate command.
func Migrate(ctx context.Context, cfg *config.DatabaseConfig) (SchemaStatus, error) {
	db, err := Open(ctx, cfg)
	if err != nil {
		return SchemaStatus{}, err
	}
	defer db.Close()
	return db.SchemaStatus(ctx)
}
