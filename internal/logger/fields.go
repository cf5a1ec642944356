package logger

import (
	"log/slog"
	"time"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so connection,
// query, and database events can be correlated and queried together.
const (
	// ========================================================================
	// Connection
	// ========================================================================
	KeyConnectionID = "connection_id" // Server-assigned connection number
	KeyRemoteAddr   = "remote_addr"   // Peer address including port
	KeyClientIP     = "client_ip"     // Peer IP address without port
	KeyRole         = "role"          // Connection role: game, login, web
	KeyWorld        = "world"         // Game world name bound to the connection
	KeyWorldID      = "world_id"      // Numeric world identifier

	// ========================================================================
	// Query Processing
	// ========================================================================
	KeyQuery       = "query"        // Query name: LOGIN_GAME, GET_WORLDS, etc.
	KeyOpcode      = "opcode"       // Raw opcode byte
	KeyStatus      = "status"       // Query status: OK, ERROR, FAILED
	KeyErrorCode   = "error_code"   // Operation-specific refusal code
	KeyWorker      = "worker"       // Worker thread number
	KeyAttempt     = "attempt"      // Execution attempt number
	KeyMaxAttempts = "max_attempts" // Configured attempt budget
	KeyQueueLen    = "queue_len"    // Queries waiting in the queue
	KeyQueueCap    = "queue_cap"    // Queue capacity

	// ========================================================================
	// Database
	// ========================================================================
	KeyDatabase   = "database"   // Backend type: sqlite, postgres
	KeyStatements = "statements" // Prepared statements currently cached
	KeyRows       = "rows"       // Rows touched or returned
	KeyPatch      = "patch"      // Schema patch file name
	KeyVersion    = "version"    // Schema version

	// ========================================================================
	// Game Entities
	// ========================================================================
	KeyAccountID   = "account_id"
	KeyCharacterID = "character_id"
	KeyCharacter   = "character"
	KeyHouseID     = "house_id"
	KeyStatementID = "statement_id"
	KeyTimestamp   = "timestamp"

	// ========================================================================
	// Host Cache
	// ========================================================================
	KeyHostname = "hostname"

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyReason     = "reason"      // Human-readable cause for a refusal or drop
	KeyPath       = "path"        // File path (config, database, pid file)
	KeyAddress    = "address"     // Listen address
	KeyPort       = "port"        // Listen port
	KeyPID        = "pid"         // Process ID
	KeySignal     = "signal"      // OS signal name
)

// ============================================================================
// Field constructors for type safety
// These functions provide type-safe construction of slog.Attr values.
// ============================================================================

// ConnectionID returns a slog.Attr for the server-assigned connection number
func ConnectionID(id uint64) slog.Attr {
	return slog.Uint64(KeyConnectionID, id)
}

// RemoteAddr returns a slog.Attr for the peer address including port
func RemoteAddr(addr string) slog.Attr {
	return slog.String(KeyRemoteAddr, addr)
}

// ClientIP returns a slog.Attr for the peer IP without port
func ClientIP(ip string) slog.Attr {
	return slog.String(KeyClientIP, ip)
}

// Role returns a slog.Attr for the connection role
func Role(role string) slog.Attr {
	return slog.String(KeyRole, role)
}

// World returns a slog.Attr for a game world name
func World(name string) slog.Attr {
	return slog.String(KeyWorld, name)
}

// WorldID returns a slog.Attr for a numeric world identifier
func WorldID(id int) slog.Attr {
	return slog.Int(KeyWorldID, id)
}

// Query returns a slog.Attr for a query name (LOGIN_GAME, GET_WORLDS, ...)
func Query(name string) slog.Attr {
	return slog.String(KeyQuery, name)
}

// Opcode returns a slog.Attr for a raw opcode byte
func Opcode(code uint8) slog.Attr {
	return slog.Int(KeyOpcode, int(code))
}

// Status returns a slog.Attr for a query status name
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// ErrorCode returns a slog.Attr for an operation-specific refusal code
func ErrorCode(code uint8) slog.Attr {
	return slog.Int(KeyErrorCode, int(code))
}

// Worker returns a slog.Attr for a worker thread number
func Worker(id int) slog.Attr {
	return slog.Int(KeyWorker, id)
}

// Attempt returns a slog.Attr for an execution attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// MaxAttempts returns a slog.Attr for the configured attempt budget
func MaxAttempts(n int) slog.Attr {
	return slog.Int(KeyMaxAttempts, n)
}

// QueueLen returns a slog.Attr for the number of queued queries
func QueueLen(n int) slog.Attr {
	return slog.Int(KeyQueueLen, n)
}

// QueueCap returns a slog.Attr for the queue capacity
func QueueCap(n int) slog.Attr {
	return slog.Int(KeyQueueCap, n)
}

// Database returns a slog.Attr for the backend type
func Database(kind string) slog.Attr {
	return slog.String(KeyDatabase, kind)
}

// Statements returns a slog.Attr for the cached statement count
func Statements(n int) slog.Attr {
	return slog.Int(KeyStatements, n)
}

// Rows returns a slog.Attr for rows touched or returned
func Rows(n int64) slog.Attr {
	return slog.Int64(KeyRows, n)
}

// Patch returns a slog.Attr for a schema patch file name
func Patch(name string) slog.Attr {
	return slog.String(KeyPatch, name)
}

// Version returns a slog.Attr for a schema version
func Version(v uint32) slog.Attr {
	return slog.Uint64(KeyVersion, uint64(v))
}

// AccountID returns a slog.Attr for an account identifier
func AccountID(id uint32) slog.Attr {
	return slog.Uint64(KeyAccountID, uint64(id))
}

// CharacterID returns a slog.Attr for a character identifier
func CharacterID(id uint32) slog.Attr {
	return slog.Uint64(KeyCharacterID, uint64(id))
}

// Character returns a slog.Attr for a character name
func Character(name string) slog.Attr {
	return slog.String(KeyCharacter, name)
}

// HouseID returns a slog.Attr for a house identifier
func HouseID(id uint16) slog.Attr {
	return slog.Int(KeyHouseID, int(id))
}

// StatementID returns a slog.Attr for a chat statement identifier
func StatementID(id uint32) slog.Attr {
	return slog.Uint64(KeyStatementID, uint64(id))
}

// Timestamp returns a slog.Attr for a game-reported Unix timestamp
func Timestamp(ts uint32) slog.Attr {
	return slog.Uint64(KeyTimestamp, uint64(ts))
}

// Hostname returns a slog.Attr for a resolved host name
func Hostname(name string) slog.Attr {
	return slog.String(KeyHostname, name)
}

// DurationMs returns a slog.Attr for elapsed time since start in milliseconds
func DurationMs(start time.Time) slog.Attr {
	return slog.Float64(KeyDurationMs, Duration(start))
}

// Err returns a slog.Attr for an error message. A nil error yields an
// empty attr, which handlers drop.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Reason returns a slog.Attr for the cause of a refusal or drop
func Reason(r string) slog.Attr {
	return slog.String(KeyReason, r)
}

// Path returns a slog.Attr for a file path
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// Address returns a slog.Attr for a listen address
func Address(addr string) slog.Attr {
	return slog.String(KeyAddress, addr)
}

// Port returns a slog.Attr for a listen port
func Port(p uint16) slog.Attr {
	return slog.Int(KeyPort, int(p))
}

// PID returns a slog.Attr for a process ID
func PID(pid int) slog.Attr {
	return slog.Int(KeyPID, pid)
}

// Signal returns a slog.Attr for an OS signal name
func Signal(sig string) slog.Attr {
	return slog.String(KeySignal, sig)
}
