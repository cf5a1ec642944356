package database

import "context"

// sha256 auth blob: 32 byte digest followed by the 32 byte salt.
const authBlobSize = 64

var accountNumberExistsStmt = stmt{
	name: "AccountNumberExists",
	text: "SELECT 1 FROM Accounts WHERE AccountID = ?1",
}

// AccountNumberExists reports whether an account with the given number
// exists.
func (s *Session) AccountNumberExists(ctx context.Context, accountID uint32) (bool, bool) {
	return s.exists(ctx, accountNumberExistsStmt, accountID)
}

var accountEmailExistsStmt = stmt{
	name: "AccountEmailExists",
	text: "SELECT 1 FROM Accounts WHERE Email = ?1",
}

// AccountEmailExists reports whether any account uses the given email
// address. The comparison is case-insensitive per the column collation.
func (s *Session) AccountEmailExists(ctx context.Context, email string) (bool, bool) {
	return s.exists(ctx, accountEmailExistsStmt, email)
}

var createAccountStmt = stmt{
	name: "CreateAccount",
	text: "INSERT INTO Accounts (AccountID, Email, Auth) VALUES (?1, ?2, ?3)",
}

// CreateAccount inserts a fresh account row. A duplicate number or email
// that raced past the caller's existence checks reports false without an
// error log; the retry re-runs the checks and refuses cleanly.
func (s *Session) CreateAccount(ctx context.Context, accountID uint32, email string, auth []byte) bool {
	return s.tryInsert(ctx, createAccountStmt, accountID, email, auth)
}

var getAccountDataStmt = stmt{
	name: "GetAccountData",
	text: "SELECT AccountID, Email, Auth, MAX(PremiumEnd - UNIXEPOCH(), 0)," +
		" PendingPremiumDays, Deleted FROM Accounts WHERE AccountID = ?1",
	postgres: "SELECT AccountID, Email, Auth," +
		" (GREATEST(PremiumEnd - now(), INTERVAL '0'))::TEXT," +
		" PendingPremiumDays, Deleted FROM Accounts WHERE AccountID = $1",
}

// GetAccountData loads the authentication view of an account. A zero
// AccountID in the result means no such account.
func (s *Session) GetAccountData(ctx context.Context, accountID uint32) (Account, bool) {
	var (
		acct    Account
		premium intervalSeconds
		deleted boolFlag
	)
	found, ok := s.queryRow(ctx, getAccountDataStmt, args(accountID),
		&acct.AccountID, &acct.Email, &acct.Auth, &premium,
		&acct.PendingPremiumDays, &deleted)
	if !found || !ok {
		return Account{}, ok
	}

	acct.PremiumDays = premium.Days()
	acct.Deleted = bool(deleted)
	if len(acct.Auth) != authBlobSize {
		acct.Auth = nil
	}
	return acct, true
}

var getAccountOnlineCharactersStmt = stmt{
	name: "GetAccountOnlineCharacters",
	text: "SELECT COUNT(*) FROM Characters WHERE AccountID = ?1 AND IsOnline != 0",
}

// GetAccountOnlineCharacters counts how many of the account's characters
// are currently online across all worlds.
func (s *Session) GetAccountOnlineCharacters(ctx context.Context, accountID uint32) (int, bool) {
	var count int
	_, ok := s.queryRow(ctx, getAccountOnlineCharactersStmt, args(accountID), &count)
	return count, ok
}

var activatePendingPremiumStmt = stmt{
	name: "ActivatePendingPremiumDays",
	text: "UPDATE Accounts SET" +
		" PremiumEnd = MAX(PremiumEnd, UNIXEPOCH()) + PendingPremiumDays * 86400," +
		" PendingPremiumDays = 0" +
		" WHERE AccountID = ?1 AND PendingPremiumDays > 0",
	postgres: "UPDATE Accounts SET" +
		" PremiumEnd = GREATEST(PremiumEnd, now()) + PendingPremiumDays * INTERVAL '1 day'," +
		" PendingPremiumDays = 0" +
		" WHERE AccountID = $1 AND PendingPremiumDays > 0",
}

// ActivatePendingPremiumDays converts an account's pending premium days
// into paid time starting now, or extending current paid time.
func (s *Session) ActivatePendingPremiumDays(ctx context.Context, accountID uint32) bool {
	_, ok := s.exec(ctx, activatePendingPremiumStmt, accountID)
	return ok
}
