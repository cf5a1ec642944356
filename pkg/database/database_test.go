package database

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmmo/querymanager/pkg/config"
)

func testDatabaseConfig(t *testing.T) *config.DatabaseConfig {
	t.Helper()
	dir := t.TempDir()
	return &config.DatabaseConfig{
		Type:                config.DatabaseTypeSQLite,
		MaxCachedStatements: 64,
		SQLite: config.SQLiteConfig{
			Path:     filepath.Join(dir, "game.db"),
			PatchDir: filepath.Join(dir, "patches"),
		},
	}
}

func openTestDatabase(t *testing.T) *Database {
	t.Helper()
	db, err := Open(context.Background(), testDatabaseConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// newTestSession opens a fresh database and hands out its worker session.
// SQLite allows a single connection, so everything in a test goes through
// the session, exactly like production traffic does.
func newTestSession(t *testing.T) (context.Context, *Session) {
	t.Helper()
	ctx := context.Background()
	db := openTestDatabase(t)
	s, err := db.NewSession(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close(ctx) })
	return ctx, s
}

func seedWorld(t *testing.T, ctx context.Context, s *Session, id int, name string) {
	t.Helper()
	q := stmt{
		name: "SeedWorld",
		text: "INSERT INTO Worlds (WorldID, Name, Host, Port, MaxPlayers)" +
			" VALUES (?1, ?2, 'game.test', 7172, 900)",
	}
	_, ok := s.exec(ctx, q, id, name)
	require.True(t, ok)
}

func seedAccount(t *testing.T, ctx context.Context, s *Session, id uint32, email string) {
	t.Helper()
	auth := bytes.Repeat([]byte{0x5A}, authBlobSize)
	require.True(t, s.CreateAccount(ctx, id, email, auth))
}

func seedCharacter(t *testing.T, ctx context.Context, s *Session, worldID int, accountID uint32, name string) uint32 {
	t.Helper()
	require.True(t, s.CreateCharacter(ctx, worldID, accountID, name, 1))
	id, ok := s.GetCharacterID(ctx, worldID, name)
	require.True(t, ok)
	require.NotZero(t, id)
	return id
}

func countRows(t *testing.T, ctx context.Context, s *Session, table string) int {
	t.Helper()
	q := stmt{name: "Count" + table, text: "SELECT COUNT(*) FROM " + table}
	var n int
	_, ok := s.queryRow(ctx, q, nil, &n)
	require.True(t, ok)
	return n
}

func TestOpenInitializesFreshDatabase(t *testing.T) {
	ctx := context.Background()
	cfg := testDatabaseConfig(t)

	db, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer db.Close()

	appID, err := pragmaInt(ctx, db.db, "application_id")
	require.NoError(t, err)
	assert.Equal(t, int64(sqliteApplicationID), appID)

	version, err := pragmaInt(ctx, db.db, "user_version")
	require.NoError(t, err)
	assert.Equal(t, int64(sqliteSchemaVersion), version)

	assert.Equal(t, "sqlite", db.Kind())
	assert.Equal(t, 1, db.MaxConcurrency())
}

func TestOpenAcceptsExistingDatabase(t *testing.T) {
	ctx := context.Background()
	cfg := testDatabaseConfig(t)

	db, err := Open(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(ctx, cfg)
	require.NoError(t, err)
	assert.NoError(t, db.Close())
}

func TestOpenRejectsForeignDatabase(t *testing.T) {
	ctx := context.Background()
	cfg := testDatabaseConfig(t)

	raw, err := sql.Open("sqlite", cfg.SQLite.Path)
	require.NoError(t, err)
	_, err = raw.ExecContext(ctx, "CREATE TABLE Alien (X INTEGER)")
	require.NoError(t, err)
	_, err = raw.ExecContext(ctx, "PRAGMA application_id = 305419896")
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	_, err = Open(ctx, cfg)
	require.ErrorContains(t, err, "unknown application id")
}

func TestOpenRejectsUnknownSchemaVersion(t *testing.T) {
	ctx := context.Background()
	cfg := testDatabaseConfig(t)

	raw, err := sql.Open("sqlite", cfg.SQLite.Path)
	require.NoError(t, err)
	_, err = raw.ExecContext(ctx,
		fmt.Sprintf("PRAGMA application_id = %d", sqliteApplicationID))
	require.NoError(t, err)
	_, err = raw.ExecContext(ctx, "PRAGMA user_version = 7")
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	_, err = Open(ctx, cfg)
	require.ErrorContains(t, err, "does not match")
}

func TestOpenRejectsVersionWithoutApplicationID(t *testing.T) {
	ctx := context.Background()
	cfg := testDatabaseConfig(t)

	raw, err := sql.Open("sqlite", cfg.SQLite.Path)
	require.NoError(t, err)
	_, err = raw.ExecContext(ctx, "PRAGMA user_version = 3")
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	_, err = Open(ctx, cfg)
	require.ErrorContains(t, err, "no application id")
}

func TestOpenAppliesPatchesOnce(t *testing.T) {
	ctx := context.Background()
	cfg := testDatabaseConfig(t)

	require.NoError(t, os.MkdirAll(cfg.SQLite.PatchDir, 0o755))
	writePatch := func(name, text string) {
		require.NoError(t, os.WriteFile(
			filepath.Join(cfg.SQLite.PatchDir, name), []byte(text), 0o644))
	}
	writePatch("001-world-motd.sql",
		"ALTER TABLE Worlds ADD COLUMN Motd TEXT NOT NULL DEFAULT '';")
	writePatch("002-placeholder.sql", "\n\n")
	writePatch("notes.txt", "not a patch")

	db, err := Open(ctx, cfg)
	require.NoError(t, err)

	var n int
	require.NoError(t, db.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM AppliedPatches").Scan(&n))
	assert.Equal(t, 2, n)
	require.NoError(t, db.Close())

	// A second startup must skip both; re-running the ALTER TABLE would
	// fail on the duplicate column.
	db, err = Open(ctx, cfg)
	require.NoError(t, err)
	assert.NoError(t, db.Close())
}

func TestOpenRejectsFailingPatch(t *testing.T) {
	ctx := context.Background()
	cfg := testDatabaseConfig(t)

	require.NoError(t, os.MkdirAll(cfg.SQLite.PatchDir, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(cfg.SQLite.PatchDir, "001-broken.sql"),
		[]byte("ALTER TABLE NoSuchTable ADD COLUMN X INTEGER;"), 0o644))

	_, err := Open(ctx, cfg)
	require.ErrorContains(t, err, "001-broken.sql")

	// The failed patch was not recorded, so fixing the file lets the next
	// startup apply it.
	require.NoError(t, os.WriteFile(
		filepath.Join(cfg.SQLite.PatchDir, "001-broken.sql"),
		[]byte("ALTER TABLE Worlds ADD COLUMN X INTEGER;"), 0o644))
	db, err := Open(ctx, cfg)
	require.NoError(t, err)
	assert.NoError(t, db.Close())
}

func TestOpenRejectsUnknownType(t *testing.T) {
	_, err := Open(context.Background(), &config.DatabaseConfig{Type: "oracle"})
	require.ErrorContains(t, err, "unknown database type")
}

func TestMigrateReportsSchemaStatus(t *testing.T) {
	ctx := context.Background()
	cfg := testDatabaseConfig(t)

	status, err := Migrate(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, int64(sqliteSchemaVersion), status.Version)
	assert.Equal(t, int64(0), status.Patches)

	require.NoError(t, os.MkdirAll(cfg.SQLite.PatchDir, 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(cfg.SQLite.PatchDir, "001-world-motd.sql"),
		[]byte("ALTER TABLE Worlds ADD COLUMN Motd TEXT NOT NULL DEFAULT '';"), 0o644))

	status, err = Migrate(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, int64(sqliteSchemaVersion), status.Version)
	assert.Equal(t, int64(1), status.Patches)
}

func TestSessionCachesStatements(t *testing.T) {
	ctx, s := newTestSession(t)
	seedWorld(t, ctx, s, 1, "Antica")
	before := s.CachedStatements()

	id, ok := s.GetWorldID(ctx, "Antica")
	require.True(t, ok)
	require.Equal(t, 1, id)
	assert.Equal(t, before+1, s.CachedStatements())

	// A repeat of the same query reuses the cached handle.
	_, ok = s.GetWorldID(ctx, "Antica")
	require.True(t, ok)
	assert.Equal(t, before+1, s.CachedStatements())
}

func TestSessionCheckpoint(t *testing.T) {
	ctx, s := newTestSession(t)
	assert.True(t, s.Checkpoint(ctx))
}

func TestTxScopeRollsBackOnClose(t *testing.T) {
	ctx, s := newTestSession(t)
	seedWorld(t, ctx, s, 1, "Antica")
	seedAccount(t, ctx, s, 10001, "a@example.com")
	char := seedCharacter(t, ctx, s, 1, 10001, "Rollback Case")

	tx, ok := s.Begin(ctx)
	require.True(t, ok)
	require.True(t, s.InsertNotation(ctx, char, 0x7F000001, 0, "abuse", "spam"))
	tx.Close(ctx)

	n, ok := s.GetNotationCount(ctx, char)
	require.True(t, ok)
	assert.Zero(t, n)
}

func TestTxScopeCommit(t *testing.T) {
	ctx, s := newTestSession(t)
	seedWorld(t, ctx, s, 1, "Antica")
	seedAccount(t, ctx, s, 10001, "a@example.com")
	char := seedCharacter(t, ctx, s, 1, 10001, "Commit Case")

	tx, ok := s.Begin(ctx)
	require.True(t, ok)
	require.True(t, s.InsertNotation(ctx, char, 0x7F000001, 0, "abuse", "spam"))
	require.True(t, tx.Commit(ctx))
	tx.Close(ctx) // no-op after commit

	n, ok := s.GetNotationCount(ctx, char)
	require.True(t, ok)
	assert.Equal(t, 1, n)
}
