package database

import (
	"context"
	"database/sql"
	"strings"
)

var getCharacterEndpointsStmt = stmt{
	name: "GetCharacterEndpoints",
	text: "SELECT C.Name, W.Name, W.Host, W.Port FROM Characters AS C" +
		" INNER JOIN Worlds AS W ON W.WorldID = C.WorldID" +
		" WHERE C.AccountID = ?1",
}

// GetCharacterEndpoints lists an account's characters with the host and
// port of their world's game server.
func (s *Session) GetCharacterEndpoints(ctx context.Context, accountID uint32) ([]CharacterEndpoint, bool) {
	rows, ok := s.query(ctx, getCharacterEndpointsStmt, accountID)
	if !ok {
		return nil, false
	}
	defer rows.Close()

	var endpoints []CharacterEndpoint
	for rows.Next() {
		var e CharacterEndpoint
		if err := rows.Scan(&e.Name, &e.World, &e.Host, &e.Port); err != nil {
			s.scanFailed(ctx, getCharacterEndpointsStmt, err)
			return nil, false
		}
		endpoints = append(endpoints, e)
	}
	return endpoints, s.rowsDone(ctx, getCharacterEndpointsStmt, rows)
}

var getCharacterSummariesStmt = stmt{
	name: "GetCharacterSummaries",
	text: "SELECT C.Name, W.Name, C.Level, C.Profession, C.IsOnline, C.Deleted" +
		" FROM Characters AS C" +
		" LEFT JOIN Worlds AS W ON W.WorldID = C.WorldID" +
		" WHERE C.AccountID = ?1",
}

// GetCharacterSummaries lists an account's characters for the account
// summary page.
func (s *Session) GetCharacterSummaries(ctx context.Context, accountID uint32) ([]CharacterSummary, bool) {
	rows, ok := s.query(ctx, getCharacterSummariesStmt, accountID)
	if !ok {
		return nil, false
	}
	defer rows.Close()

	var summaries []CharacterSummary
	for rows.Next() {
		var (
			c       CharacterSummary
			world   sql.NullString
			online  int
			deleted boolFlag
		)
		if err := rows.Scan(&c.Name, &world, &c.Level, &c.Profession,
			&online, &deleted); err != nil {
			s.scanFailed(ctx, getCharacterSummariesStmt, err)
			return nil, false
		}
		c.World = world.String
		c.Online = online > 0
		c.Deleted = bool(deleted)
		summaries = append(summaries, c)
	}
	return summaries, s.rowsDone(ctx, getCharacterSummariesStmt, rows)
}

var characterNameExistsStmt = stmt{
	name: "CharacterNameExists",
	text: "SELECT 1 FROM Characters WHERE Name = ?1",
}

// CharacterNameExists reports whether the name is taken on any world. The
// comparison is case-insensitive per the column collation.
func (s *Session) CharacterNameExists(ctx context.Context, name string) (bool, bool) {
	return s.exists(ctx, characterNameExistsStmt, name)
}

var createCharacterStmt = stmt{
	name: "CreateCharacter",
	text: "INSERT INTO Characters (WorldID, AccountID, Name, Sex) VALUES (?1, ?2, ?3, ?4)",
}

// CreateCharacter inserts a fresh character row. A duplicate name that
// raced past the caller's existence check reports false without an error
// log; the retry re-runs the check and refuses cleanly.
func (s *Session) CreateCharacter(ctx context.Context, worldID int, accountID uint32, name string, sex uint8) bool {
	return s.tryInsert(ctx, createCharacterStmt, worldID, accountID, name, sex)
}

var getCharacterIDStmt = stmt{
	name: "GetCharacterID",
	text: "SELECT CharacterID FROM Characters WHERE WorldID = ?1 AND Name = ?2",
}

// GetCharacterID resolves a character name on a world. Zero means no such
// character.
func (s *Session) GetCharacterID(ctx context.Context, worldID int, name string) (uint32, bool) {
	var id uint32
	_, ok := s.queryRow(ctx, getCharacterIDStmt, args(worldID, name), &id)
	return id, ok
}

var getCharacterLoginDataStmt = stmt{
	name: "GetCharacterLoginData",
	text: "SELECT WorldID, CharacterID, AccountID, Name, Sex, Guild, Rank, Title, Deleted" +
		" FROM Characters WHERE Name = ?1",
}

// GetCharacterLoginData loads the character row examined during game
// login. A zero CharacterID in the result means no such character.
func (s *Session) GetCharacterLoginData(ctx context.Context, name string) (CharacterLoginData, bool) {
	var (
		c       CharacterLoginData
		deleted boolFlag
	)
	found, ok := s.queryRow(ctx, getCharacterLoginDataStmt, args(name),
		&c.WorldID, &c.CharacterID, &c.AccountID, &c.Name, &c.Sex,
		&c.Guild, &c.Rank, &c.Title, &deleted)
	if !found || !ok {
		return CharacterLoginData{}, ok
	}
	c.Deleted = bool(deleted)
	return c, true
}

var getCharacterProfileStmt = stmt{
	name: "GetCharacterProfile",
	text: "SELECT C.Name, W.Name, C.Sex, C.Guild, C.Rank, C.Title, C.Level," +
		" C.Profession, C.Residence, C.LastLoginTime, C.IsOnline, C.Deleted," +
		" MAX(A.PremiumEnd - UNIXEPOCH(), 0)" +
		" FROM Characters AS C" +
		" LEFT JOIN Worlds AS W ON W.WorldID = C.WorldID" +
		" LEFT JOIN Accounts AS A ON A.AccountID = C.AccountID" +
		" LEFT JOIN CharacterRights AS R ON R.CharacterID = C.CharacterID" +
		" AND R.\"Right\" = 'NO_STATISTICS'" +
		" WHERE C.Name = ?1 AND R.\"Right\" IS NULL",
	postgres: "SELECT C.Name, W.Name, C.Sex, C.Guild, C.Rank, C.Title, C.Level," +
		" C.Profession, C.Residence, C.LastLoginTime, C.IsOnline, C.Deleted," +
		" (GREATEST(A.PremiumEnd - now(), INTERVAL '0'))::TEXT" +
		" FROM Characters AS C" +
		" LEFT JOIN Worlds AS W ON W.WorldID = C.WorldID" +
		" LEFT JOIN Accounts AS A ON A.AccountID = C.AccountID" +
		" LEFT JOIN CharacterRights AS R ON R.CharacterID = C.CharacterID" +
		" AND R.\"Right\" = 'NO_STATISTICS'" +
		" WHERE C.Name = $1 AND R.\"Right\" IS NULL",
}

// GetCharacterProfile loads the public character sheet. Characters with
// the NO_STATISTICS right are invisible here. An empty Name in the result
// means no (visible) character.
func (s *Session) GetCharacterProfile(ctx context.Context, name string) (CharacterProfile, bool) {
	var (
		p         CharacterProfile
		world     sql.NullString
		lastLogin epochSeconds
		online    int
		deleted   boolFlag
		premium   intervalSeconds
	)
	found, ok := s.queryRow(ctx, getCharacterProfileStmt, args(name),
		&p.Name, &world, &p.Sex, &p.Guild, &p.Rank, &p.Title, &p.Level,
		&p.Profession, &p.Residence, &lastLogin, &online, &deleted, &premium)
	if !found || !ok {
		return CharacterProfile{}, ok
	}

	p.World = world.String
	p.LastLogin = lastLogin.Uint32()
	p.Online = online > 0
	p.Deleted = bool(deleted)
	p.PremiumDays = premium.Days()
	return p, true
}

var getCharacterRightStmt = stmt{
	name: "GetCharacterRight",
	text: "SELECT 1 FROM CharacterRights WHERE CharacterID = ?1 AND \"Right\" = ?2",
}

// HasRight reports whether the character holds the named right.
func (s *Session) HasRight(ctx context.Context, characterID uint32, right string) (bool, bool) {
	return s.exists(ctx, getCharacterRightStmt, characterID, right)
}

var getCharacterRightsStmt = stmt{
	name: "GetCharacterRights",
	text: "SELECT \"Right\" FROM CharacterRights WHERE CharacterID = ?1",
}

// GetCharacterRights lists every right the character holds.
func (s *Session) GetCharacterRights(ctx context.Context, characterID uint32) ([]string, bool) {
	rows, ok := s.query(ctx, getCharacterRightsStmt, characterID)
	if !ok {
		return nil, false
	}
	defer rows.Close()

	var rights []string
	for rows.Next() {
		var right string
		if err := rows.Scan(&right); err != nil {
			s.scanFailed(ctx, getCharacterRightsStmt, err)
			return nil, false
		}
		rights = append(rights, right)
	}
	return rights, s.rowsDone(ctx, getCharacterRightsStmt, rows)
}

var getGuildLeaderStatusStmt = stmt{
	name: "GetGuildLeaderStatus",
	text: "SELECT Guild, Rank FROM Characters WHERE WorldID = ?1 AND CharacterID = ?2",
}

// IsGuildLeader reports whether the character currently leads a guild.
func (s *Session) IsGuildLeader(ctx context.Context, worldID int, characterID uint32) (bool, bool) {
	var guild, rank string
	found, ok := s.queryRow(ctx, getGuildLeaderStatusStmt,
		args(worldID, characterID), &guild, &rank)
	if !found || !ok {
		return false, ok
	}
	return guild != "" && strings.EqualFold(rank, "Leader"), true
}

var isCharacterOnlineStmt = stmt{
	name: "IsCharacterOnline",
	text: "SELECT 1 FROM Characters WHERE CharacterID = ?1 AND IsOnline != 0",
}

// IsCharacterOnline reports whether the character itself is currently
// counted as online.
func (s *Session) IsCharacterOnline(ctx context.Context, characterID uint32) (bool, bool) {
	return s.exists(ctx, isCharacterOnlineStmt, characterID)
}

var incrementIsOnlineStmt = stmt{
	name: "IncrementIsOnline",
	text: "UPDATE Characters SET IsOnline = IsOnline + 1" +
		" WHERE WorldID = ?1 AND CharacterID = ?2",
}

// IncrementIsOnline bumps the character's online counter at game login.
func (s *Session) IncrementIsOnline(ctx context.Context, worldID int, characterID uint32) bool {
	_, ok := s.exec(ctx, incrementIsOnlineStmt, worldID, characterID)
	return ok
}

var decrementIsOnlineStmt = stmt{
	name: "DecrementIsOnline",
	text: "UPDATE Characters SET IsOnline = IsOnline - 1" +
		" WHERE WorldID = ?1 AND CharacterID = ?2",
}

// DecrementIsOnline drops the character's online counter, used when a
// game server discards a login it had already reported.
func (s *Session) DecrementIsOnline(ctx context.Context, worldID int, characterID uint32) bool {
	_, ok := s.exec(ctx, decrementIsOnlineStmt, worldID, characterID)
	return ok
}

var clearIsOnlineStmt = stmt{
	name: "ClearIsOnline",
	text: "UPDATE Characters SET IsOnline = 0 WHERE WorldID = ?1 AND IsOnline != 0",
}

// ClearIsOnline marks every character of the world offline and returns
// how many rows changed. Run by a game server after an unclean restart.
func (s *Session) ClearIsOnline(ctx context.Context, worldID int) (int64, bool) {
	return s.exec(ctx, clearIsOnlineStmt, worldID)
}

var logoutCharacterStmt = stmt{
	name: "LogoutCharacter",
	text: "UPDATE Characters SET Level = ?3, Profession = ?4, Residence = ?5," +
		" LastLoginTime = ?6, TutorActivities = ?7, IsOnline = IsOnline - 1" +
		" WHERE WorldID = ?1 AND CharacterID = ?2",
}

// LogoutCharacter persists the character state reported at game logout.
func (s *Session) LogoutCharacter(ctx context.Context, worldID int, characterID uint32,
	level uint16, profession, residence string, lastLogin uint32, tutorActivities uint16) bool {
	_, ok := s.exec(ctx, logoutCharacterStmt, worldID, characterID,
		level, profession, residence, s.epoch(int64(lastLogin)), tutorActivities)
	return ok
}

var getCharacterIndexStmt = stmt{
	name: "GetCharacterIndexEntries",
	text: "SELECT CharacterID, Name FROM Characters" +
		" WHERE WorldID = ?1 AND CharacterID >= ?2" +
		" ORDER BY CharacterID ASC LIMIT ?3",
}

// GetCharacterIndexEntries pages through a world's characters in
// ascending identifier order, at most limit entries per call.
func (s *Session) GetCharacterIndexEntries(ctx context.Context, worldID int, minCharacterID uint32, limit int) ([]CharacterIndexEntry, bool) {
	rows, ok := s.query(ctx, getCharacterIndexStmt, worldID, minCharacterID, limit)
	if !ok {
		return nil, false
	}
	defer rows.Close()

	var entries []CharacterIndexEntry
	for rows.Next() {
		var e CharacterIndexEntry
		if err := rows.Scan(&e.CharacterID, &e.Name); err != nil {
			s.scanFailed(ctx, getCharacterIndexStmt, err)
			return nil, false
		}
		entries = append(entries, e)
	}
	return entries, s.rowsDone(ctx, getCharacterIndexStmt, rows)
}

var insertCharacterDeathStmt = stmt{
	name: "InsertCharacterDeath",
	text: "INSERT INTO CharacterDeaths" +
		" (CharacterID, Level, OffenderID, Remark, Unjustified, Timestamp)" +
		" SELECT ?2, ?3, ?4, ?5, ?6, ?7 FROM Characters" +
		" WHERE WorldID = ?1 AND CharacterID = ?2",
}

// InsertCharacterDeath records a death, provided the character belongs to
// the world; rows for foreign or unknown characters are silently skipped.
func (s *Session) InsertCharacterDeath(ctx context.Context, worldID int, characterID uint32,
	level uint16, offenderID uint32, remark string, unjustified bool, timestamp uint32) bool {
	_, ok := s.exec(ctx, insertCharacterDeathStmt, worldID, characterID,
		level, offenderID, remark, unjustified, s.epoch(int64(timestamp)))
	return ok
}
