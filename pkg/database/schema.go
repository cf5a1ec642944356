package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/openmmo/querymanager/internal/logger"
)

// sqliteApplicationID tags the database file as ours. ASCII "TiDB" for
// "Tibia Database". A file with a different non-zero id belongs to some
// other program and is never touched.
const sqliteApplicationID = 0x54694442

// sqliteSchemaVersion is the user_version the embedded schema produces.
// A file with a different version was created by a different release and
// aborts startup rather than being silently reinterpreted.
const sqliteSchemaVersion = 1

//go:embed migrations/sqlite/schema.sql
var sqliteSchema embed.FS

// checkSQLiteSchema validates the schema markers and installs the embedded
// schema into a fresh database file. Fresh means both application_id and
// user_version read zero, which is what SQLite stamps on a newly created
// file.
func checkSQLiteSchema(ctx context.Context, db *sql.DB) error {
	appID, err := pragmaInt(ctx, db, "application_id")
	if err != nil {
		return err
	}
	version, err := pragmaInt(ctx, db, "user_version")
	if err != nil {
		return err
	}

	if appID != sqliteApplicationID {
		if appID != 0 {
			return fmt.Errorf("database has unknown application id %08X (expected %08X)",
				appID, sqliteApplicationID)
		}
		if version != 0 {
			return fmt.Errorf("database has no application id but non-zero user version %d", version)
		}
		if err := initSQLiteSchema(ctx, db); err != nil {
			return err
		}
		version = sqliteSchemaVersion
	}

	if version != sqliteSchemaVersion {
		return fmt.Errorf("database schema version %d does not match %d, run a matching release or restore from backup",
			version, sqliteSchemaVersion)
	}

	logger.InfoCtx(ctx, "Database schema verified", logger.Version(uint32(version)))
	return nil
}

// initSQLiteSchema runs the embedded schema and stamps both markers inside
// one transaction, so a failure leaves the file fresh and retryable.
func initSQLiteSchema(ctx context.Context, db *sql.DB) error {
	schema, err := sqliteSchema.ReadFile("migrations/sqlite/schema.sql")
	if err != nil {
		return fmt.Errorf("embedded schema unavailable: %w", err)
	}

	logger.InfoCtx(ctx, "Initializing database schema")

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start schema transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(schema)); err != nil {
		return fmt.Errorf("failed to execute embedded schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("PRAGMA application_id = %d", sqliteApplicationID)); err != nil {
		return fmt.Errorf("failed to set application id: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("PRAGMA user_version = %d", sqliteSchemaVersion)); err != nil {
		return fmt.Errorf("failed to set user version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema transaction: %w", err)
	}
	return nil
}

// pragmaInt reads an integer pragma. Pragmas take no bound parameters, so
// the name is interpolated; callers only pass literals.
func pragmaInt(ctx context.Context, db *sql.DB, name string) (int64, error) {
	var value int64
	if err := db.QueryRowContext(ctx, "PRAGMA "+name).Scan(&value); err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return value, nil
}

// applySQLitePatches runs the *.sql files under dir that have not been
// applied yet, in lexicographic order, each inside its own transaction.
// Applied file names are recorded in AppliedPatches, so re-running the
// service with the same patch directory is a no-op. A missing directory
// means no patches, which is the normal state of a fresh install.
func applySQLitePatches(ctx context.Context, db *sql.DB, dir string) error {
	if dir == "" {
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			logger.DebugCtx(ctx, "No patch directory", logger.Path(dir))
			return nil
		}
		return fmt.Errorf("failed to read patch directory %q: %w", dir, err)
	}

	if _, err := db.ExecContext(ctx,
		"CREATE TABLE IF NOT EXISTS AppliedPatches (Name TEXT PRIMARY KEY, AppliedAt INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("failed to create patch bookkeeping table: %w", err)
	}

	applied := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		var one int
		err := db.QueryRowContext(ctx,
			"SELECT 1 FROM AppliedPatches WHERE Name = ?1", name).Scan(&one)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("failed to check patch %q: %w", name, err)
		}

		if err := applySQLitePatch(ctx, db, dir, name); err != nil {
			return err
		}
		applied++
	}

	if applied > 0 {
		logger.InfoCtx(ctx, "Applied schema patches", logger.Rows(int64(applied)))
	}
	return nil
}

func applySQLitePatch(ctx context.Context, db *sql.DB, dir, name string) error {
	text, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("failed to read patch %q: %w", name, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start patch transaction: %w", err)
	}
	defer tx.Rollback()

	if len(strings.TrimSpace(string(text))) > 0 {
		if _, err := tx.ExecContext(ctx, string(text)); err != nil {
			return fmt.Errorf("failed to execute patch %q: %w", name, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO AppliedPatches (Name, AppliedAt) VALUES (?1, UNIXEPOCH())", name); err != nil {
		return fmt.Errorf("failed to record patch %q: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit patch %q: %w", name, err)
	}

	logger.InfoCtx(ctx, "Applied schema patch", logger.Patch(name))
	return nil
}
