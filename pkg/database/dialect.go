package database

import (
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// stmt is a statement carried in both backend flavors. The sqlite text is
// authoritative and uses numbered ?N placeholders. When the postgres text is
// empty the sqlite text is rebound to $N placeholders, otherwise the override
// is used as is. Overrides exist where the backends genuinely diverge:
// UNIXEPOCH() arithmetic against TIMESTAMPTZ columns, interval math and
// INSERT ... RETURNING column typing.
type stmt struct {
	name     string
	text     string
	postgres string
}

// dialect captures the differences between the SQLite and PostgreSQL
// backends: statement text selection, parameter encoding, concurrency
// limits and error classification.
type dialect interface {
	name() string

	// maxConcurrency returns how many sessions may execute queries at the
	// same time. Zero means unlimited.
	maxConcurrency() int

	// canReconnect reports whether a lost session can be reestablished
	// without restarting the process.
	canReconnect() bool

	// sql returns the statement text for this backend.
	sql(q stmt) string

	// bindIP encodes a host byte order IPv4 address as a query parameter.
	bindIP(ip uint32) any

	// bindEpoch encodes a Unix timestamp as a query parameter.
	bindEpoch(secs int64) any

	// isConstraintViolation reports whether err is a constraint failure
	// rather than a connection or syntax problem.
	isConstraintViolation(err error) bool

	// teardownSQL returns a statement run when a session closes, or the
	// empty string when the backend needs none.
	teardownSQL() string
}

type sqliteDialect struct{}

func (sqliteDialect) name() string        { return "sqlite" }
func (sqliteDialect) maxConcurrency() int { return 1 }
func (sqliteDialect) canReconnect() bool  { return false }

func (sqliteDialect) sql(q stmt) string { return q.text }

func (sqliteDialect) bindIP(ip uint32) any { return int64(ip) }

func (sqliteDialect) bindEpoch(secs int64) any { return secs }

func (sqliteDialect) teardownSQL() string { return "" }

func (sqliteDialect) isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	// The pure Go sqlite driver does not export typed errors for
	// constraint failures, but the message always carries the SQLITE
	// result code name.
	msg := err.Error()
	return strings.Contains(msg, "constraint failed") ||
		strings.Contains(msg, "SQLITE_CONSTRAINT")
}

type postgresDialect struct{}

func (postgresDialect) name() string        { return "postgres" }
func (postgresDialect) maxConcurrency() int { return 0 }
func (postgresDialect) canReconnect() bool  { return true }

func (postgresDialect) sql(q stmt) string {
	if q.postgres != "" {
		return q.postgres
	}
	return rebind(q.text)
}

func (postgresDialect) bindIP(ip uint32) any { return FormatIP(ip) }

func (postgresDialect) bindEpoch(secs int64) any { return time.Unix(secs, 0).UTC() }

// Named statements prepared during the session can outlive client side
// handles when the server connection was reset mid session.
func (postgresDialect) teardownSQL() string { return "DEALLOCATE ALL" }

func (postgresDialect) isConstraintViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 23 covers all integrity constraint violations.
		return strings.HasPrefix(pgErr.Code, "23")
	}
	return false
}

// rebind converts numbered ?N placeholders to the $N form PostgreSQL
// expects. Statement texts never contain string literals with question
// marks, so a plain scan is enough.
func rebind(text string) string {
	if !strings.ContainsRune(text, '?') {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); i++ {
		if text[i] == '?' {
			b.WriteByte('$')
			continue
		}
		b.WriteByte(text[i])
	}
	return b.String()
}
