package dispatch

import (
	"context"
	"math"

	"github.com/openmmo/querymanager/internal/protocol"
	"github.com/openmmo/querymanager/internal/query"
	"github.com/openmmo/querymanager/pkg/database"
)

func (r *Registry) finishAuctions(ctx context.Context, s *database.Session, q *query.Query) {
	auctions, ok := s.FinishHouseAuctions(ctx, q.WorldID())
	if !ok {
		return
	}

	w := q.Begin(protocol.StatusOK)
	n := capCount(len(auctions), math.MaxUint16)
	w.Write16(uint16(n))
	for _, a := range auctions[:n] {
		w.Write16(a.HouseID)
		w.Write32(a.BidderID)
		w.WriteString(a.BidderName)
		w.Write32(a.BidAmount)
	}
	q.Finish()
}

func (r *Registry) transferHouses(ctx context.Context, s *database.Session, q *query.Query) {
	transfers, ok := s.FinishHouseTransfers(ctx, q.WorldID())
	if !ok {
		return
	}

	w := q.Begin(protocol.StatusOK)
	n := capCount(len(transfers), math.MaxUint16)
	w.Write16(uint16(n))
	for _, t := range transfers[:n] {
		w.Write16(t.HouseID)
		w.Write32(t.NewOwnerID)
		w.WriteString(t.NewOwnerName)
		w.Write32(t.Price)
	}
	q.Finish()
}

func (r *Registry) evictFreeAccounts(ctx context.Context, s *database.Session, q *query.Query) {
	evictions, ok := s.GetFreeAccountEvictions(ctx, q.WorldID())
	if !ok {
		return
	}

	w := q.Begin(protocol.StatusOK)
	n := capCount(len(evictions), math.MaxUint16)
	w.Write16(uint16(n))
	for _, e := range evictions[:n] {
		w.Write16(e.HouseID)
		w.Write32(e.OwnerID)
	}
	q.Finish()
}

func (r *Registry) evictDeletedCharacters(ctx context.Context, s *database.Session, q *query.Query) {
	evictions, ok := s.GetDeletedCharacterEvictions(ctx, q.WorldID())
	if !ok {
		return
	}

	w := q.Begin(protocol.StatusOK)
	n := capCount(len(evictions), math.MaxUint16)
	w.Write16(uint16(n))
	for _, e := range evictions[:n] {
		w.Write16(e.HouseID)
	}
	q.Finish()
}

// evictExGuildleaders works the other way around from the other eviction
// queries. The game server is authoritative on house data but knows nothing
// about guilds, so it sends the guild houses with their owners and we answer
// with the subset whose owner still leads a guild.
func (r *Registry) evictExGuildleaders(ctx context.Context, s *database.Session, q *query.Query) {
	req := q.Request()
	count := int(req.Read16())
	type guildHouse struct {
		houseID uint16
		ownerID uint32
	}
	candidates := make([]guildHouse, count)
	for i := range candidates {
		candidates[i].houseID = req.Read16()
		candidates[i].ownerID = req.Read32()
	}
	if req.Overflowed() {
		q.Failed()
		return
	}

	var houses []uint16
	for _, c := range candidates {
		leader, ok := s.IsGuildLeader(ctx, q.WorldID(), c.ownerID)
		if !ok {
			return
		}
		if leader {
			houses = append(houses, c.houseID)
		}
	}

	w := q.Begin(protocol.StatusOK)
	n := capCount(len(houses), math.MaxUint16)
	w.Write16(uint16(n))
	for _, houseID := range houses[:n] {
		w.Write16(houseID)
	}
	q.Finish()
}

func (r *Registry) insertHouseOwner(ctx context.Context, s *database.Session, q *query.Query) {
	req := q.Request()
	houseID := req.Read16()
	ownerID := req.Read32()
	paidUntil := req.Read32()
	if req.Overflowed() {
		q.Failed()
		return
	}

	if !s.InsertHouseOwner(ctx, q.WorldID(), houseID, ownerID, paidUntil) {
		return
	}
	q.Ok()
}

func (r *Registry) updateHouseOwner(ctx context.Context, s *database.Session, q *query.Query) {
	req := q.Request()
	houseID := req.Read16()
	ownerID := req.Read32()
	paidUntil := req.Read32()
	if req.Overflowed() {
		q.Failed()
		return
	}

	if !s.UpdateHouseOwner(ctx, q.WorldID(), houseID, ownerID, paidUntil) {
		return
	}
	q.Ok()
}

func (r *Registry) deleteHouseOwner(ctx context.Context, s *database.Session, q *query.Query) {
	req := q.Request()
	houseID := req.Read16()
	if req.Overflowed() {
		q.Failed()
		return
	}

	if !s.DeleteHouseOwner(ctx, q.WorldID(), houseID) {
		return
	}
	q.Ok()
}

func (r *Registry) getHouseOwners(ctx context.Context, s *database.Session, q *query.Query) {
	owners, ok := s.GetHouseOwners(ctx, q.WorldID())
	if !ok {
		return
	}

	w := q.Begin(protocol.StatusOK)
	n := capCount(len(owners), math.MaxUint16)
	w.Write16(uint16(n))
	for _, o := range owners[:n] {
		w.Write16(o.HouseID)
		w.Write32(o.OwnerID)
		w.WriteString(o.OwnerName)
		w.Write32(o.PaidUntil)
	}
	q.Finish()
}

func (r *Registry) getAuctions(ctx context.Context, s *database.Session, q *query.Query) {
	auctions, ok := s.GetHouseAuctions(ctx, q.WorldID())
	if !ok {
		return
	}

	w := q.Begin(protocol.StatusOK)
	n := capCount(len(auctions), math.MaxUint16)
	w.Write16(uint16(n))
	for _, houseID := range auctions[:n] {
		w.Write16(houseID)
	}
	q.Finish()
}

func (r *Registry) startAuction(ctx context.Context, s *database.Session, q *query.Query) {
	req := q.Request()
	houseID := req.Read16()
	if req.Overflowed() {
		q.Failed()
		return
	}

	if !s.StartHouseAuction(ctx, q.WorldID(), houseID) {
		return
	}
	q.Ok()
}

func (r *Registry) insertHouses(ctx context.Context, s *database.Session, q *query.Query) {
	tx, ok := s.Begin(ctx)
	if !ok {
		return
	}
	defer tx.Close(ctx)

	if !s.DeleteHouses(ctx, q.WorldID()) {
		return
	}

	req := q.Request()
	count := int(req.Read16())
	if count > 0 {
		houses := make([]database.House, count)
		for i := range houses {
			houses[i].HouseID = req.Read16()
			houses[i].Name = req.ReadString(50)
			houses[i].Rent = req.Read32()
			houses[i].Description = req.ReadString(500)
			houses[i].Size = req.Read16()
			houses[i].PositionX = req.Read16()
			houses[i].PositionY = req.Read16()
			houses[i].PositionZ = req.Read8()
			houses[i].Town = req.ReadString(30)
			houses[i].GuildHouse = req.ReadBool()
		}
		if req.Overflowed() {
			q.Failed()
			return
		}

		if !s.InsertHouses(ctx, q.WorldID(), houses) {
			return
		}
	}

	if !tx.Commit(ctx) {
		return
	}
	q.Ok()
}

func (r *Registry) cancelHouseTransfer(ctx context.Context, s *database.Session, q *query.Query) {
	// TODO: decide whether cancelling marks the pending transfer row or
	// deletes it. The game servers only ever check the acknowledgement, so
	// this answers Ok without touching the row for now.
	q.Ok()
}
