package database

import "context"

var insertBuddyStmt = stmt{
	name: "InsertBuddy",
	text: "INSERT OR IGNORE INTO Buddies (WorldID, AccountID, BuddyID)" +
		" SELECT ?1, ?2, ?3 FROM Characters" +
		" WHERE WorldID = ?1 AND CharacterID = ?3",
	postgres: "INSERT INTO Buddies (WorldID, AccountID, BuddyID)" +
		" SELECT $1, $2, $3 FROM Characters" +
		" WHERE WorldID = $1 AND CharacterID = $3" +
		" ON CONFLICT DO NOTHING",
}

// InsertBuddy adds a character to an account's buddy list on a world.
// Adding a buddy twice or naming a character from another world is a
// no-op.
func (s *Session) InsertBuddy(ctx context.Context, worldID int, accountID, buddyID uint32) bool {
	_, ok := s.exec(ctx, insertBuddyStmt, worldID, accountID, buddyID)
	return ok
}

var deleteBuddyStmt = stmt{
	name: "DeleteBuddy",
	text: "DELETE FROM Buddies" +
		" WHERE WorldID = ?1 AND AccountID = ?2 AND BuddyID = ?3",
}

// DeleteBuddy removes a character from an account's buddy list.
func (s *Session) DeleteBuddy(ctx context.Context, worldID int, accountID, buddyID uint32) bool {
	_, ok := s.exec(ctx, deleteBuddyStmt, worldID, accountID, buddyID)
	return ok
}

var getBuddiesStmt = stmt{
	name: "GetBuddies",
	text: "SELECT B.BuddyID, C.Name FROM Buddies AS B" +
		" INNER JOIN Characters AS C" +
		" ON C.WorldID = B.WorldID AND C.CharacterID = B.BuddyID" +
		" WHERE B.WorldID = ?1 AND B.AccountID = ?2",
}

// GetBuddies lists an account's buddies on a world.
func (s *Session) GetBuddies(ctx context.Context, worldID int, accountID uint32) ([]Buddy, bool) {
	rows, ok := s.query(ctx, getBuddiesStmt, worldID, accountID)
	if !ok {
		return nil, false
	}
	defer rows.Close()

	var buddies []Buddy
	for rows.Next() {
		var b Buddy
		if err := rows.Scan(&b.CharacterID, &b.Name); err != nil {
			s.scanFailed(ctx, getBuddiesStmt, err)
			return nil, false
		}
		buddies = append(buddies, b)
	}
	return buddies, s.rowsDone(ctx, getBuddiesStmt, rows)
}

var getWorldInvitationStmt = stmt{
	name: "GetWorldInvitation",
	text: "SELECT 1 FROM WorldInvitations WHERE WorldID = ?1 AND CharacterID = ?2",
}

// HasWorldInvitation reports whether the character is invited to the
// private world.
func (s *Session) HasWorldInvitation(ctx context.Context, worldID int, characterID uint32) (bool, bool) {
	return s.exists(ctx, getWorldInvitationStmt, worldID, characterID)
}
