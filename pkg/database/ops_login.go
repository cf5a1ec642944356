package database

import "context"

var insertLoginAttemptStmt = stmt{
	name: "InsertLoginAttempt",
	text: "INSERT INTO LoginAttempts (AccountID, IPAddress, Timestamp, Failed)" +
		" VALUES (?1, ?2, UNIXEPOCH(), ?3)",
	postgres: "INSERT INTO LoginAttempts (AccountID, IPAddress, Timestamp, Failed)" +
		" VALUES ($1, $2, now(), $3)",
}

// InsertLoginAttempt records one login attempt. Attempts against unknown
// account numbers are recorded too; the account id is whatever the client
// claimed.
func (s *Session) InsertLoginAttempt(ctx context.Context, accountID uint32, ip uint32, failed bool) bool {
	_, ok := s.exec(ctx, insertLoginAttemptStmt, accountID, s.ip(ip), failed)
	return ok
}

var accountFailedAttemptsStmt = stmt{
	name: "GetAccountFailedLoginAttempts",
	text: "SELECT COUNT(*) FROM LoginAttempts" +
		" WHERE AccountID = ?1 AND (UNIXEPOCH() - Timestamp) <= ?2 AND Failed != 0",
	postgres: "SELECT COUNT(*) FROM LoginAttempts" +
		" WHERE AccountID = $1 AND Timestamp >= now() - make_interval(secs => $2) AND Failed",
}

// GetAccountFailedLoginAttempts counts failed attempts against the
// account within the last window seconds.
func (s *Session) GetAccountFailedLoginAttempts(ctx context.Context, accountID uint32, window int64) (int, bool) {
	var count int
	_, ok := s.queryRow(ctx, accountFailedAttemptsStmt, args(accountID, window), &count)
	return count, ok
}

var ipFailedAttemptsStmt = stmt{
	name: "GetIPAddressFailedLoginAttempts",
	text: "SELECT COUNT(*) FROM LoginAttempts" +
		" WHERE IPAddress = ?1 AND (UNIXEPOCH() - Timestamp) <= ?2 AND Failed != 0",
	postgres: "SELECT COUNT(*) FROM LoginAttempts" +
		" WHERE IPAddress = $1 AND Timestamp >= now() - make_interval(secs => $2) AND Failed",
}

// GetIPFailedLoginAttempts counts failed attempts from the address within
// the last window seconds.
func (s *Session) GetIPFailedLoginAttempts(ctx context.Context, ip uint32, window int64) (int, bool) {
	var count int
	_, ok := s.queryRow(ctx, ipFailedAttemptsStmt, args(s.ip(ip), window), &count)
	return count, ok
}
