package database

import "context"

var getKillStatisticsStmt = stmt{
	name: "GetKillStatistics",
	text: "SELECT RaceName, TimesKilled, PlayersKilled FROM KillStatistics" +
		" WHERE WorldID = ?1",
}

// GetKillStatistics lists the per race kill counters of the world.
func (s *Session) GetKillStatistics(ctx context.Context, worldID int) ([]KillStatistics, bool) {
	rows, ok := s.query(ctx, getKillStatisticsStmt, worldID)
	if !ok {
		return nil, false
	}
	defer rows.Close()

	var stats []KillStatistics
	for rows.Next() {
		var k KillStatistics
		if err := rows.Scan(&k.RaceName, &k.TimesKilled, &k.PlayersKilled); err != nil {
			s.scanFailed(ctx, getKillStatisticsStmt, err)
			return nil, false
		}
		stats = append(stats, k)
	}
	return stats, s.rowsDone(ctx, getKillStatisticsStmt, rows)
}

var mergeKillStatisticsStmt = stmt{
	name: "MergeKillStatistics",
	text: "INSERT INTO KillStatistics (WorldID, RaceName, TimesKilled, PlayersKilled)" +
		" VALUES (?1, ?2, ?3, ?4)" +
		" ON CONFLICT (WorldID, RaceName) DO UPDATE SET" +
		" TimesKilled = TimesKilled + EXCLUDED.TimesKilled," +
		" PlayersKilled = PlayersKilled + EXCLUDED.PlayersKilled",
	postgres: "INSERT INTO KillStatistics (WorldID, RaceName, TimesKilled, PlayersKilled)" +
		" VALUES ($1, $2, $3, $4)" +
		" ON CONFLICT (WorldID, RaceName) DO UPDATE SET" +
		" TimesKilled = KillStatistics.TimesKilled + EXCLUDED.TimesKilled," +
		" PlayersKilled = KillStatistics.PlayersKilled + EXCLUDED.PlayersKilled",
}

// MergeKillStatistics adds the uploaded deltas into the world's kill
// counters, creating rows for races seen for the first time.
func (s *Session) MergeKillStatistics(ctx context.Context, worldID int, stats []KillStatistics) bool {
	for i := range stats {
		k := &stats[i]
		if _, ok := s.exec(ctx, mergeKillStatisticsStmt, worldID,
			k.RaceName, k.TimesKilled, k.PlayersKilled); !ok {
			return false
		}
	}
	return true
}

var getOnlineCharactersStmt = stmt{
	name: "GetOnlineCharacters",
	text: "SELECT Name, Level, Profession FROM OnlineCharacters WHERE WorldID = ?1",
}

// GetOnlineCharacters returns the world's last published who-is-online
// list.
func (s *Session) GetOnlineCharacters(ctx context.Context, worldID int) ([]OnlineCharacter, bool) {
	rows, ok := s.query(ctx, getOnlineCharactersStmt, worldID)
	if !ok {
		return nil, false
	}
	defer rows.Close()

	var online []OnlineCharacter
	for rows.Next() {
		var c OnlineCharacter
		if err := rows.Scan(&c.Name, &c.Level, &c.Profession); err != nil {
			s.scanFailed(ctx, getOnlineCharactersStmt, err)
			return nil, false
		}
		online = append(online, c)
	}
	return online, s.rowsDone(ctx, getOnlineCharactersStmt, rows)
}

var deleteOnlineCharactersStmt = stmt{
	name: "DeleteOnlineCharacters",
	text: "DELETE FROM OnlineCharacters WHERE WorldID = ?1",
}

// DeleteOnlineCharacters clears the world's published who-is-online list
// ahead of a fresh upload.
func (s *Session) DeleteOnlineCharacters(ctx context.Context, worldID int) bool {
	_, ok := s.exec(ctx, deleteOnlineCharactersStmt, worldID)
	return ok
}

var insertOnlineCharacterStmt = stmt{
	name: "InsertOnlineCharacters",
	text: "INSERT INTO OnlineCharacters (WorldID, Name, Level, Profession)" +
		" VALUES (?1, ?2, ?3, ?4)",
}

// InsertOnlineCharacters uploads the world's who-is-online list.
func (s *Session) InsertOnlineCharacters(ctx context.Context, worldID int, online []OnlineCharacter) bool {
	for i := range online {
		c := &online[i]
		if _, ok := s.exec(ctx, insertOnlineCharacterStmt, worldID,
			c.Name, c.Level, c.Profession); !ok {
			return false
		}
	}
	return true
}

var checkOnlineRecordStmt = stmt{
	name: "CheckOnlineRecord",
	text: "UPDATE Worlds SET OnlineRecord = ?2, OnlineRecordTimestamp = UNIXEPOCH()" +
		" WHERE WorldID = ?1 AND OnlineRecord < ?2",
	postgres: "UPDATE Worlds SET OnlineRecord = $2, OnlineRecordTimestamp = now()" +
		" WHERE WorldID = $1 AND OnlineRecord < $2",
}

// CheckOnlineRecord stores the player count as the world's online record
// if it beats the current one. The first result reports whether a new
// record was set.
func (s *Session) CheckOnlineRecord(ctx context.Context, worldID int, players uint16) (bool, bool) {
	changed, ok := s.exec(ctx, checkOnlineRecordStmt, worldID, players)
	return changed > 0, ok
}
