package dispatch

import (
	"context"

	"github.com/openmmo/querymanager/internal/protocol"
	"github.com/openmmo/querymanager/internal/query"
	"github.com/openmmo/querymanager/pkg/database"
)

// characterIndexLimit is the page size of the bulk character index. The
// game server reads the index in pages of this fixed size at startup.
const characterIndexLimit = 10000

func (r *Registry) logCharacterDeath(ctx context.Context, s *database.Session, q *query.Query) {
	req := q.Request()
	characterID := req.Read32()
	level := req.Read16()
	offenderID := req.Read32()
	remark := req.ReadString(30)
	unjustified := req.ReadBool()
	timestamp := req.Read32()
	if req.Overflowed() {
		q.Failed()
		return
	}

	if !s.InsertCharacterDeath(ctx, q.WorldID(), characterID,
		level, offenderID, remark, unjustified, timestamp) {
		return
	}
	q.Ok()
}

func (r *Registry) addBuddy(ctx context.Context, s *database.Session, q *query.Query) {
	req := q.Request()
	accountID := req.Read32()
	buddyID := req.Read32()
	if req.Overflowed() {
		q.Failed()
		return
	}

	if !s.InsertBuddy(ctx, q.WorldID(), accountID, buddyID) {
		return
	}
	q.Ok()
}

func (r *Registry) removeBuddy(ctx context.Context, s *database.Session, q *query.Query) {
	req := q.Request()
	accountID := req.Read32()
	buddyID := req.Read32()
	if req.Overflowed() {
		q.Failed()
		return
	}

	if !s.DeleteBuddy(ctx, q.WorldID(), accountID, buddyID) {
		return
	}
	q.Ok()
}

func (r *Registry) decrementIsOnline(ctx context.Context, s *database.Session, q *query.Query) {
	req := q.Request()
	characterID := req.Read32()
	if req.Overflowed() {
		q.Failed()
		return
	}

	if !s.DecrementIsOnline(ctx, q.WorldID(), characterID) {
		return
	}
	q.Ok()
}

func (r *Registry) clearIsOnline(ctx context.Context, s *database.Session, q *query.Query) {
	affected, ok := s.ClearIsOnline(ctx, q.WorldID())
	if !ok {
		return
	}

	w := q.Begin(protocol.StatusOK)
	w.Write16(uint16(affected))
	q.Finish()
}

func (r *Registry) createPlayerlist(ctx context.Context, s *database.Session, q *query.Query) {
	tx, ok := s.Begin(ctx)
	if !ok {
		return
	}
	defer tx.Close(ctx)

	// The previous listing is dropped even when the server reports no
	// players at all.
	if !s.DeleteOnlineCharacters(ctx, q.WorldID()) {
		return
	}

	req := q.Request()
	count := int(req.Read16())

	// A count of 0xFFFF means the server has no data, not 65535 players.
	newRecord := false
	if count != 0xFFFF && count > 0 {
		online := make([]database.OnlineCharacter, count)
		for i := range online {
			online[i].Name = req.ReadString(30)
			online[i].Level = req.Read16()
			online[i].Profession = req.ReadString(30)
		}
		if req.Overflowed() {
			q.Failed()
			return
		}

		if !s.InsertOnlineCharacters(ctx, q.WorldID(), online) {
			return
		}
		newRecord, ok = s.CheckOnlineRecord(ctx, q.WorldID(), uint16(count))
		if !ok {
			return
		}
	}

	if !tx.Commit(ctx) {
		return
	}

	w := q.Begin(protocol.StatusOK)
	w.WriteBool(newRecord)
	q.Finish()
}

func (r *Registry) logKilledCreatures(ctx context.Context, s *database.Session, q *query.Query) {
	req := q.Request()
	count := int(req.Read16())
	stats := make([]database.KillStatistics, count)
	for i := range stats {
		stats[i].RaceName = req.ReadString(30)
		stats[i].PlayersKilled = req.Read32()
		stats[i].TimesKilled = req.Read32()
	}
	if req.Overflowed() {
		q.Failed()
		return
	}

	if count > 0 {
		tx, ok := s.Begin(ctx)
		if !ok {
			return
		}
		defer tx.Close(ctx)

		if !s.MergeKillStatistics(ctx, q.WorldID(), stats) {
			return
		}
		if !tx.Commit(ctx) {
			return
		}
	}
	q.Ok()
}

func (r *Registry) loadPlayers(ctx context.Context, s *database.Session, q *query.Query) {
	req := q.Request()
	minimumCharacterID := req.Read32()
	if req.Overflowed() {
		q.Failed()
		return
	}

	entries, ok := s.GetCharacterIndexEntries(ctx, q.WorldID(),
		minimumCharacterID, characterIndexLimit)
	if !ok {
		return
	}

	// The count is 32-bit here, unlike every other listing.
	w := q.Begin(protocol.StatusOK)
	w.Write32(uint32(len(entries)))
	for _, e := range entries {
		w.WriteString(e.Name)
		w.Write32(e.CharacterID)
	}
	q.Finish()
}
