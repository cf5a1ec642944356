package database

import "context"

var getWorldIDStmt = stmt{
	name: "GetWorldID",
	text: "SELECT WorldID FROM Worlds WHERE Name = ?1",
}

// GetWorldID resolves a world name to its identifier. Zero means no such
// world.
func (s *Session) GetWorldID(ctx context.Context, name string) (int, bool) {
	var id int
	_, ok := s.queryRow(ctx, getWorldIDStmt, args(name), &id)
	return id, ok
}

var getWorldsStmt = stmt{
	name: "GetWorlds",
	text: "WITH N (WorldID, NumPlayers) AS" +
		" (SELECT WorldID, COUNT(*) FROM OnlineCharacters GROUP BY WorldID)" +
		" SELECT W.Name, W.Type, COALESCE(N.NumPlayers, 0), W.MaxPlayers," +
		" W.OnlineRecord, W.OnlineRecordTimestamp" +
		" FROM Worlds AS W LEFT JOIN N ON W.WorldID = N.WorldID",
}

// GetWorlds lists every world with its current and record population.
func (s *Session) GetWorlds(ctx context.Context) ([]World, bool) {
	rows, ok := s.query(ctx, getWorldsStmt)
	if !ok {
		return nil, false
	}
	defer rows.Close()

	var worlds []World
	for rows.Next() {
		var w World
		var record epochSeconds
		if err := rows.Scan(&w.Name, &w.Type, &w.NumPlayers,
			&w.MaxPlayers, &w.OnlineRecord, &record); err != nil {
			s.scanFailed(ctx, getWorldsStmt, err)
			return nil, false
		}
		w.OnlineRecordTimestamp = record.Uint32()
		worlds = append(worlds, w)
	}
	return worlds, s.rowsDone(ctx, getWorldsStmt, rows)
}

var getWorldConfigStmt = stmt{
	name: "GetWorldConfig",
	text: "SELECT WorldID, Type, RebootTime, Host, Port, MaxPlayers," +
		" PremiumPlayerBuffer, MaxNewbies, PremiumNewbieBuffer" +
		" FROM Worlds WHERE WorldID = ?1",
}

// GetWorldConfig loads a world's game server configuration. A zero
// WorldID in the result means the world does not exist.
func (s *Session) GetWorldConfig(ctx context.Context, worldID int) (WorldConfig, bool) {
	var cfg WorldConfig
	_, ok := s.queryRow(ctx, getWorldConfigStmt, args(worldID),
		&cfg.WorldID, &cfg.Type, &cfg.RebootTime, &cfg.Host, &cfg.Port,
		&cfg.MaxPlayers, &cfg.PremiumPlayerBuffer, &cfg.MaxNewbies,
		&cfg.PremiumNewbieBuffer)
	return cfg, ok
}

// args builds a parameter slice. Keeps call sites aligned with the
// queryRow signature, which separates parameters from scan destinations.
func args(v ...any) []any { return v }
