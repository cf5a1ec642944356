package database

import "context"

var getNamelockStatusStmt = stmt{
	name: "GetNamelockStatus",
	text: "SELECT Approved FROM Namelocks WHERE CharacterID = ?1",
}

// GetNamelockStatus reports whether the character has been namelocked and
// whether any of its locks was already approved by a gamemaster.
func (s *Session) GetNamelockStatus(ctx context.Context, characterID uint32) (NamelockStatus, bool) {
	rows, ok := s.query(ctx, getNamelockStatusStmt, characterID)
	if !ok {
		return NamelockStatus{}, false
	}
	defer rows.Close()

	var status NamelockStatus
	for rows.Next() {
		var approved boolFlag
		if err := rows.Scan(&approved); err != nil {
			s.scanFailed(ctx, getNamelockStatusStmt, err)
			return NamelockStatus{}, false
		}
		status.Namelocked = true
		status.Approved = status.Approved || bool(approved)
	}
	return status, s.rowsDone(ctx, getNamelockStatusStmt, rows)
}

var insertNamelockStmt = stmt{
	name: "InsertNamelock",
	text: "INSERT INTO Namelocks (CharacterID, IPAddress, GamemasterID, Reason, Comment)" +
		" VALUES (?1, ?2, ?3, ?4, ?5)",
}

// InsertNamelock locks the character's name pending a rename.
func (s *Session) InsertNamelock(ctx context.Context, characterID uint32, ip uint32, gamemasterID uint32, reason, comment string) bool {
	_, ok := s.exec(ctx, insertNamelockStmt, characterID, s.ip(ip),
		gamemasterID, reason, comment)
	return ok
}

var isAccountBanishedStmt = stmt{
	name: "IsAccountBanished",
	text: "SELECT 1 FROM Banishments" +
		" WHERE AccountID = ?1 AND (Until = Issued OR Until > UNIXEPOCH())",
	postgres: "SELECT 1 FROM Banishments" +
		" WHERE AccountID = $1 AND (Until = Issued OR Until > now())",
}

// IsAccountBanished reports whether the account has an active banishment.
func (s *Session) IsAccountBanished(ctx context.Context, accountID uint32) (bool, bool) {
	return s.exists(ctx, isAccountBanishedStmt, accountID)
}

var getBanishmentStatusStmt = stmt{
	name: "GetBanishmentStatus",
	text: "SELECT B.FinalWarning, (B.Until = B.Issued OR B.Until > UNIXEPOCH())" +
		" FROM Banishments AS B" +
		" INNER JOIN Characters AS C ON C.AccountID = B.AccountID" +
		" WHERE C.CharacterID = ?1",
	postgres: "SELECT B.FinalWarning, (B.Until = B.Issued OR B.Until > now())" +
		" FROM Banishments AS B" +
		" INNER JOIN Characters AS C ON C.AccountID = B.AccountID" +
		" WHERE C.CharacterID = $1",
}

// GetBanishmentStatus summarizes the banishment history of the
// character's account: how many times it was banished, whether a final
// warning was ever issued, and whether a banishment is active right now.
func (s *Session) GetBanishmentStatus(ctx context.Context, characterID uint32) (BanishmentStatus, bool) {
	rows, ok := s.query(ctx, getBanishmentStatusStmt, characterID)
	if !ok {
		return BanishmentStatus{}, false
	}
	defer rows.Close()

	var status BanishmentStatus
	for rows.Next() {
		var finalWarning, active boolFlag
		if err := rows.Scan(&finalWarning, &active); err != nil {
			s.scanFailed(ctx, getBanishmentStatusStmt, err)
			return BanishmentStatus{}, false
		}
		status.TimesBanished++
		status.FinalWarning = status.FinalWarning || bool(finalWarning)
		status.Banished = status.Banished || bool(active)
	}
	return status, s.rowsDone(ctx, getBanishmentStatusStmt, rows)
}

var insertBanishmentStmt = stmt{
	name: "InsertBanishment",
	text: "INSERT INTO Banishments" +
		" (AccountID, IPAddress, GamemasterID, Reason, Comment, FinalWarning, Issued, Until)" +
		" SELECT AccountID, ?2, ?3, ?4, ?5, ?6, UNIXEPOCH(), UNIXEPOCH() + ?7" +
		" FROM Characters WHERE CharacterID = ?1" +
		" RETURNING BanishmentID",
	postgres: "INSERT INTO Banishments" +
		" (AccountID, IPAddress, GamemasterID, Reason, Comment, FinalWarning, Issued, Until)" +
		" SELECT AccountID, $2, $3, $4, $5, $6, now(), now() + make_interval(secs => $7)" +
		" FROM Characters WHERE CharacterID = $1" +
		" RETURNING BanishmentID",
}

// InsertBanishment banishes the character's account for duration seconds.
// A zero duration leaves Until equal to Issued, which never expires.
// Returns the new banishment id, or false if the character does not exist
// or the insert failed.
func (s *Session) InsertBanishment(ctx context.Context, characterID uint32, ip uint32, gamemasterID uint32, reason, comment string, finalWarning bool, duration int64) (uint32, bool) {
	var banishmentID uint32
	found, ok := s.queryRow(ctx, insertBanishmentStmt,
		args(characterID, s.ip(ip), gamemasterID, reason, comment,
			finalWarning, duration),
		&banishmentID)
	if !found || !ok {
		return 0, false
	}
	return banishmentID, true
}

var getNotationCountStmt = stmt{
	name: "GetNotationCount",
	text: "SELECT COUNT(*) FROM Notations WHERE CharacterID = ?1",
}

// GetNotationCount counts the notations filed against the character.
func (s *Session) GetNotationCount(ctx context.Context, characterID uint32) (int, bool) {
	var count int
	_, ok := s.queryRow(ctx, getNotationCountStmt, args(characterID), &count)
	return count, ok
}

var insertNotationStmt = stmt{
	name: "InsertNotation",
	text: "INSERT INTO Notations (CharacterID, IPAddress, GamemasterID, Reason, Comment)" +
		" VALUES (?1, ?2, ?3, ?4, ?5)",
}

// InsertNotation files a notation against the character.
func (s *Session) InsertNotation(ctx context.Context, characterID uint32, ip uint32, gamemasterID uint32, reason, comment string) bool {
	_, ok := s.exec(ctx, insertNotationStmt, characterID, s.ip(ip),
		gamemasterID, reason, comment)
	return ok
}

var isIPBanishedStmt = stmt{
	name: "IsIPBanished",
	text: "SELECT 1 FROM IPBanishments" +
		" WHERE IPAddress = ?1 AND (Until = Issued OR Until > UNIXEPOCH())",
	postgres: "SELECT 1 FROM IPBanishments" +
		" WHERE IPAddress = $1 AND (Until = Issued OR Until > now())",
}

// IsIPBanished reports whether the address has an active banishment.
func (s *Session) IsIPBanished(ctx context.Context, ip uint32) (bool, bool) {
	return s.exists(ctx, isIPBanishedStmt, s.ip(ip))
}

var insertIPBanishmentStmt = stmt{
	name: "InsertIPBanishment",
	text: "INSERT INTO IPBanishments" +
		" (CharacterID, IPAddress, GamemasterID, Reason, Comment, Issued, Until)" +
		" VALUES (?1, ?2, ?3, ?4, ?5, UNIXEPOCH(), UNIXEPOCH() + ?6)",
	postgres: "INSERT INTO IPBanishments" +
		" (CharacterID, IPAddress, GamemasterID, Reason, Comment, Issued, Until)" +
		" VALUES ($1, $2, $3, $4, $5, now(), now() + make_interval(secs => $6))",
}

// InsertIPBanishment banishes the address for duration seconds.
// CharacterID records whose report triggered the banishment and may be
// zero.
func (s *Session) InsertIPBanishment(ctx context.Context, characterID uint32, ip uint32, gamemasterID uint32, reason, comment string, duration int64) bool {
	_, ok := s.exec(ctx, insertIPBanishmentStmt, characterID, s.ip(ip),
		gamemasterID, reason, comment, duration)
	return ok
}
