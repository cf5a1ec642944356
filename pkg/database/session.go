package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/openmmo/querymanager/internal/logger"
)

// Session is a single worker's view of the database: one dedicated
// connection plus a prepared statement cache bound to it. Sessions are
// not safe for concurrent use; each worker owns exactly one.
type Session struct {
	db    *Database
	conn  *sql.Conn
	cache *stmtCache
}

// NewSession acquires a dedicated connection for a worker.
func (d *Database) NewSession(ctx context.Context) (*Session, error) {
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	return &Session{
		db:    d,
		conn:  conn,
		cache: newStmtCache(d.maxCachedStatements),
	}, nil
}

// Close releases the cached statements and returns the connection to the
// pool. For PostgreSQL it also drops server side statements that may
// survive a connection reset.
func (s *Session) Close(ctx context.Context) {
	for _, st := range s.cache.discard() {
		if err := st.Close(); err != nil {
			logger.DebugCtx(ctx, "Failed to close cached statement", logger.Err(err))
		}
	}
	if s.conn == nil {
		return
	}
	if teardown := s.db.dialect.teardownSQL(); teardown != "" {
		if _, err := s.conn.ExecContext(ctx, teardown); err != nil {
			logger.DebugCtx(ctx, "Failed to release server statements", logger.Err(err))
		}
	}
	if err := s.conn.Close(); err != nil {
		logger.DebugCtx(ctx, "Failed to release database connection", logger.Err(err))
	}
	s.conn = nil
}

// Checkpoint verifies the session is healthy before work is pulled from
// the queue. SQLite sessions cannot lose their connection so there is
// nothing to check. A lost PostgreSQL connection is replaced and the
// statement cache dropped, since cached handles are bound to the old
// connection.
func (s *Session) Checkpoint(ctx context.Context) bool {
	if s.conn != nil {
		if !s.db.dialect.canReconnect() {
			return true
		}
		if err := s.conn.PingContext(ctx); err == nil {
			return true
		}
		logger.WarnCtx(ctx, "Database connection lost, reconnecting",
			logger.Database(s.db.dialect.name()))
		s.dropConnection()
	}

	conn, err := s.db.db.Conn(ctx)
	if err != nil {
		logger.ErrorCtx(ctx, "Failed to reestablish database connection", logger.Err(err))
		return false
	}
	s.conn = conn
	return true
}

// CachedStatements reports how many prepared statements the session
// currently holds.
func (s *Session) CachedStatements() int {
	return s.cache.size()
}

// dropConnection discards the statement cache and the connection without
// logging close errors; the connection is already known to be gone.
func (s *Session) dropConnection() {
	for _, st := range s.cache.discard() {
		_ = st.Close()
	}
	_ = s.conn.Close()
	s.conn = nil
}

// prepare returns a cached statement for q, preparing and caching it on a
// miss. A full cache evicts the least recently used statement.
func (s *Session) prepare(ctx context.Context, q stmt) (*sql.Stmt, bool) {
	if s.conn == nil {
		logger.ErrorCtx(ctx, "No database connection", logger.Query(q.name))
		return nil, false
	}

	text := s.db.dialect.sql(q)
	if st := s.cache.lookup(text); st != nil {
		s.db.stmtHits.Add(1)
		return st, true
	}
	s.db.stmtMisses.Add(1)

	st, err := s.conn.PrepareContext(ctx, text)
	if err != nil {
		logger.ErrorCtx(ctx, "Failed to prepare statement",
			logger.Query(q.name), logger.Err(err))
		return nil, false
	}

	if evicted := s.cache.insert(text, st); evicted != nil {
		s.db.stmtEvictions.Add(1)
		if err := evicted.Close(); err != nil {
			logger.DebugCtx(ctx, "Failed to close evicted statement", logger.Err(err))
		}
	}
	return st, true
}

// exec runs a statement and returns the number of affected rows.
func (s *Session) exec(ctx context.Context, q stmt, args ...any) (int64, bool) {
	st, ok := s.prepare(ctx, q)
	if !ok {
		return 0, false
	}
	res, err := st.ExecContext(ctx, args...)
	if err != nil {
		logger.ErrorCtx(ctx, "Failed to execute statement",
			logger.Query(q.name), logger.Err(err))
		return 0, false
	}
	rows, _ := res.RowsAffected()
	return rows, true
}

// tryInsert runs an INSERT whose unique constraint races with concurrent
// writers. A constraint failure reports false without an error log so the
// caller can retry after re-checking its preconditions.
func (s *Session) tryInsert(ctx context.Context, q stmt, args ...any) bool {
	st, ok := s.prepare(ctx, q)
	if !ok {
		return false
	}
	if _, err := st.ExecContext(ctx, args...); err != nil {
		if !s.db.dialect.isConstraintViolation(err) {
			logger.ErrorCtx(ctx, "Failed to execute statement",
				logger.Query(q.name), logger.Err(err))
		}
		return false
	}
	return true
}

// queryRow runs a single row query. The first result reports whether a
// row was found, the second whether the query executed cleanly.
func (s *Session) queryRow(ctx context.Context, q stmt, args []any, dest ...any) (bool, bool) {
	st, ok := s.prepare(ctx, q)
	if !ok {
		return false, false
	}
	err := st.QueryRowContext(ctx, args...).Scan(dest...)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, true
	case err != nil:
		logger.ErrorCtx(ctx, "Failed to execute statement",
			logger.Query(q.name), logger.Err(err))
		return false, false
	}
	return true, true
}

// exists runs a `SELECT 1 ...` probe.
func (s *Session) exists(ctx context.Context, q stmt, args ...any) (bool, bool) {
	var one int
	return s.queryRow(ctx, q, args, &one)
}

// query runs a multi row query. Callers must close the returned rows and
// finish with rowsDone.
func (s *Session) query(ctx context.Context, q stmt, args ...any) (*sql.Rows, bool) {
	st, ok := s.prepare(ctx, q)
	if !ok {
		return nil, false
	}
	rows, err := st.QueryContext(ctx, args...)
	if err != nil {
		logger.ErrorCtx(ctx, "Failed to execute statement",
			logger.Query(q.name), logger.Err(err))
		return nil, false
	}
	return rows, true
}

// scanFailed reports a row decoding error.
func (s *Session) scanFailed(ctx context.Context, q stmt, err error) {
	logger.ErrorCtx(ctx, "Failed to scan result row",
		logger.Query(q.name), logger.Err(err))
}

// rowsDone consumes the terminal state of a row iteration.
func (s *Session) rowsDone(ctx context.Context, q stmt, rows *sql.Rows) bool {
	if err := rows.Err(); err != nil {
		logger.ErrorCtx(ctx, "Failed to read query results",
			logger.Query(q.name), logger.Err(err))
		return false
	}
	return true
}

// ip encodes an IPv4 address parameter for the active backend.
func (s *Session) ip(v uint32) any {
	return s.db.dialect.bindIP(v)
}

// epoch encodes a Unix timestamp parameter for the active backend.
func (s *Session) epoch(v int64) any {
	return s.db.dialect.bindEpoch(v)
}

// execRaw runs text directly on the session connection, outside the
// statement cache. Used for transaction control.
func (s *Session) execRaw(ctx context.Context, text string) bool {
	if s.conn == nil {
		logger.ErrorCtx(ctx, "No database connection", logger.Query(text))
		return false
	}
	if _, err := s.conn.ExecContext(ctx, text); err != nil {
		logger.ErrorCtx(ctx, "Failed to execute statement",
			logger.Query(text), logger.Err(err))
		return false
	}
	return true
}

// TxScope is a transaction on the session connection. Transaction control
// runs as plain statements rather than through database/sql transactions
// so cached prepared statements keep working inside the transaction.
type TxScope struct {
	s      *Session
	active bool
}

// Begin opens a transaction. Callers defer Close immediately so an early
// return rolls back.
func (s *Session) Begin(ctx context.Context) (*TxScope, bool) {
	if !s.execRaw(ctx, "BEGIN") {
		return nil, false
	}
	return &TxScope{s: s, active: true}, true
}

// Commit finishes the transaction.
func (t *TxScope) Commit(ctx context.Context) bool {
	if !t.active {
		return false
	}
	t.active = false
	return t.s.execRaw(ctx, "COMMIT")
}

// Close rolls the transaction back unless Commit already ran.
func (t *TxScope) Close(ctx context.Context) {
	if !t.active {
		return
	}
	t.active = false
	t.s.execRaw(ctx, "ROLLBACK")
}
