package database

import (
	"context"
	"database/sql"
)

var finishHouseAuctionsStmt = stmt{
	name: "FinishHouseAuctions",
	text: "DELETE FROM HouseAuctions" +
		" WHERE WorldID = ?1 AND FinishTime IS NOT NULL AND FinishTime <= UNIXEPOCH()" +
		" RETURNING HouseID, BidderID, BidAmount",
	postgres: "DELETE FROM HouseAuctions" +
		" WHERE WorldID = $1 AND FinishTime IS NOT NULL AND FinishTime <= now()" +
		" RETURNING HouseID, BidderID, BidAmount",
}

// FinishHouseAuctions removes every auction on the world whose deadline
// passed and returns the winning bids. Auctions without a bid have no
// deadline and stay open.
func (s *Session) FinishHouseAuctions(ctx context.Context, worldID int) ([]HouseAuction, bool) {
	rows, ok := s.query(ctx, finishHouseAuctionsStmt, worldID)
	if !ok {
		return nil, false
	}
	defer rows.Close()

	var auctions []HouseAuction
	for rows.Next() {
		var (
			a         HouseAuction
			bidderID  sql.NullInt64
			bidAmount sql.NullInt64
		)
		if err := rows.Scan(&a.HouseID, &bidderID, &bidAmount); err != nil {
			s.scanFailed(ctx, finishHouseAuctionsStmt, err)
			return nil, false
		}
		a.BidderID = uint32(bidderID.Int64)
		a.BidAmount = uint32(bidAmount.Int64)
		auctions = append(auctions, a)
	}
	if !s.rowsDone(ctx, finishHouseAuctionsStmt, rows) {
		return nil, false
	}
	rows.Close()

	// Winner names come from a second lookup: RETURNING cannot join.
	for i := range auctions {
		name, ok := s.characterName(ctx, auctions[i].BidderID)
		if !ok {
			return nil, false
		}
		auctions[i].BidderName = name
	}
	return auctions, true
}

var finishHouseTransfersStmt = stmt{
	name: "FinishHouseTransfers",
	text: "DELETE FROM HouseTransfers WHERE WorldID = ?1" +
		" RETURNING HouseID, NewOwnerID, Price",
}

// FinishHouseTransfers removes and returns every pending ownership
// transfer on the world.
func (s *Session) FinishHouseTransfers(ctx context.Context, worldID int) ([]HouseTransfer, bool) {
	rows, ok := s.query(ctx, finishHouseTransfersStmt, worldID)
	if !ok {
		return nil, false
	}
	defer rows.Close()

	var transfers []HouseTransfer
	for rows.Next() {
		var t HouseTransfer
		if err := rows.Scan(&t.HouseID, &t.NewOwnerID, &t.Price); err != nil {
			s.scanFailed(ctx, finishHouseTransfersStmt, err)
			return nil, false
		}
		transfers = append(transfers, t)
	}
	if !s.rowsDone(ctx, finishHouseTransfersStmt, rows) {
		return nil, false
	}
	rows.Close()

	for i := range transfers {
		name, ok := s.characterName(ctx, transfers[i].NewOwnerID)
		if !ok {
			return nil, false
		}
		transfers[i].NewOwnerName = name
	}
	return transfers, true
}

var characterNameStmt = stmt{
	name: "GetCharacterName",
	text: "SELECT Name FROM Characters WHERE CharacterID = ?1",
}

// characterName resolves a character id to its name, empty when the
// character no longer exists.
func (s *Session) characterName(ctx context.Context, characterID uint32) (string, bool) {
	var name string
	_, ok := s.queryRow(ctx, characterNameStmt, args(characterID), &name)
	return name, ok
}

var freeAccountEvictionsStmt = stmt{
	name: "GetFreeAccountEvictions",
	text: "SELECT O.HouseID, O.OwnerID FROM HouseOwners AS O" +
		" LEFT JOIN Characters AS C ON C.CharacterID = O.OwnerID" +
		" LEFT JOIN Accounts AS A ON A.AccountID = C.AccountID" +
		" WHERE O.WorldID = ?1" +
		" AND (A.PremiumEnd IS NULL OR A.PremiumEnd < UNIXEPOCH())",
	postgres: "SELECT O.HouseID, O.OwnerID FROM HouseOwners AS O" +
		" LEFT JOIN Characters AS C ON C.CharacterID = O.OwnerID" +
		" LEFT JOIN Accounts AS A ON A.AccountID = C.AccountID" +
		" WHERE O.WorldID = $1" +
		" AND (A.PremiumEnd IS NULL OR A.PremiumEnd < now())",
}

// GetFreeAccountEvictions lists houses whose owner's account has no paid
// time left. Houses are premium-only.
func (s *Session) GetFreeAccountEvictions(ctx context.Context, worldID int) ([]HouseEviction, bool) {
	return s.evictionRows(ctx, freeAccountEvictionsStmt, worldID)
}

var deletedCharacterEvictionsStmt = stmt{
	name: "GetDeletedCharacterEvictions",
	text: "SELECT O.HouseID, O.OwnerID FROM HouseOwners AS O" +
		" LEFT JOIN Characters AS C ON C.CharacterID = O.OwnerID" +
		" WHERE O.WorldID = ?1" +
		" AND (C.CharacterID IS NULL OR C.Deleted != 0)",
	postgres: "SELECT O.HouseID, O.OwnerID FROM HouseOwners AS O" +
		" LEFT JOIN Characters AS C ON C.CharacterID = O.OwnerID" +
		" WHERE O.WorldID = $1" +
		" AND (C.CharacterID IS NULL OR C.Deleted)",
}

// GetDeletedCharacterEvictions lists houses whose owner no longer exists
// or is marked deleted.
func (s *Session) GetDeletedCharacterEvictions(ctx context.Context, worldID int) ([]HouseEviction, bool) {
	return s.evictionRows(ctx, deletedCharacterEvictionsStmt, worldID)
}

func (s *Session) evictionRows(ctx context.Context, q stmt, worldID int) ([]HouseEviction, bool) {
	rows, ok := s.query(ctx, q, worldID)
	if !ok {
		return nil, false
	}
	defer rows.Close()

	var evictions []HouseEviction
	for rows.Next() {
		var e HouseEviction
		if err := rows.Scan(&e.HouseID, &e.OwnerID); err != nil {
			s.scanFailed(ctx, q, err)
			return nil, false
		}
		evictions = append(evictions, e)
	}
	return evictions, s.rowsDone(ctx, q, rows)
}

var insertHouseOwnerStmt = stmt{
	name: "InsertHouseOwner",
	text: "INSERT INTO HouseOwners (WorldID, HouseID, OwnerID, PaidUntil)" +
		" VALUES (?1, ?2, ?3, ?4)",
}

// InsertHouseOwner records a new house ownership.
func (s *Session) InsertHouseOwner(ctx context.Context, worldID int, houseID uint16, ownerID uint32, paidUntil uint32) bool {
	_, ok := s.exec(ctx, insertHouseOwnerStmt, worldID, houseID, ownerID,
		s.epoch(int64(paidUntil)))
	return ok
}

var updateHouseOwnerStmt = stmt{
	name: "UpdateHouseOwner",
	text: "UPDATE HouseOwners SET OwnerID = ?3, PaidUntil = ?4" +
		" WHERE WorldID = ?1 AND HouseID = ?2",
}

// UpdateHouseOwner replaces the owner or the paid-until time of a house.
func (s *Session) UpdateHouseOwner(ctx context.Context, worldID int, houseID uint16, ownerID uint32, paidUntil uint32) bool {
	_, ok := s.exec(ctx, updateHouseOwnerStmt, worldID, houseID, ownerID,
		s.epoch(int64(paidUntil)))
	return ok
}

var deleteHouseOwnerStmt = stmt{
	name: "DeleteHouseOwner",
	text: "DELETE FROM HouseOwners WHERE WorldID = ?1 AND HouseID = ?2",
}

// DeleteHouseOwner clears a house's ownership.
func (s *Session) DeleteHouseOwner(ctx context.Context, worldID int, houseID uint16) bool {
	_, ok := s.exec(ctx, deleteHouseOwnerStmt, worldID, houseID)
	return ok
}

var getHouseOwnersStmt = stmt{
	name: "GetHouseOwners",
	text: "SELECT O.HouseID, O.OwnerID, C.Name, O.PaidUntil FROM HouseOwners AS O" +
		" LEFT JOIN Characters AS C ON C.CharacterID = O.OwnerID" +
		" WHERE O.WorldID = ?1",
}

// GetHouseOwners lists every house ownership on the world.
func (s *Session) GetHouseOwners(ctx context.Context, worldID int) ([]HouseOwner, bool) {
	rows, ok := s.query(ctx, getHouseOwnersStmt, worldID)
	if !ok {
		return nil, false
	}
	defer rows.Close()

	var owners []HouseOwner
	for rows.Next() {
		var (
			o         HouseOwner
			name      sql.NullString
			paidUntil epochSeconds
		)
		if err := rows.Scan(&o.HouseID, &o.OwnerID, &name, &paidUntil); err != nil {
			s.scanFailed(ctx, getHouseOwnersStmt, err)
			return nil, false
		}
		o.OwnerName = name.String
		o.PaidUntil = paidUntil.Uint32()
		owners = append(owners, o)
	}
	return owners, s.rowsDone(ctx, getHouseOwnersStmt, rows)
}

var getHouseAuctionsStmt = stmt{
	name: "GetHouseAuctions",
	text: "SELECT HouseID FROM HouseAuctions WHERE WorldID = ?1",
}

// GetHouseAuctions lists the houses currently up for auction on the
// world.
func (s *Session) GetHouseAuctions(ctx context.Context, worldID int) ([]uint16, bool) {
	rows, ok := s.query(ctx, getHouseAuctionsStmt, worldID)
	if !ok {
		return nil, false
	}
	defer rows.Close()

	var houses []uint16
	for rows.Next() {
		var id uint16
		if err := rows.Scan(&id); err != nil {
			s.scanFailed(ctx, getHouseAuctionsStmt, err)
			return nil, false
		}
		houses = append(houses, id)
	}
	return houses, s.rowsDone(ctx, getHouseAuctionsStmt, rows)
}

var startHouseAuctionStmt = stmt{
	name: "StartHouseAuction",
	text: "INSERT INTO HouseAuctions (WorldID, HouseID) VALUES (?1, ?2)",
}

// StartHouseAuction opens an auction for the house. No deadline is set
// until the first bid arrives.
func (s *Session) StartHouseAuction(ctx context.Context, worldID int, houseID uint16) bool {
	_, ok := s.exec(ctx, startHouseAuctionStmt, worldID, houseID)
	return ok
}

var deleteHousesStmt = stmt{
	name: "DeleteHouses",
	text: "DELETE FROM Houses WHERE WorldID = ?1",
}

// DeleteHouses drops the world's static house descriptions ahead of a
// fresh upload.
func (s *Session) DeleteHouses(ctx context.Context, worldID int) bool {
	_, ok := s.exec(ctx, deleteHousesStmt, worldID)
	return ok
}

var insertHouseStmt = stmt{
	name: "InsertHouses",
	text: "INSERT INTO Houses (WorldID, HouseID, Name, Rent, Description," +
		" Size, PositionX, PositionY, PositionZ, Town, GuildHouse)" +
		" VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?10, ?11)",
}

// InsertHouses uploads the world's static house descriptions.
func (s *Session) InsertHouses(ctx context.Context, worldID int, houses []House) bool {
	for i := range houses {
		h := &houses[i]
		if _, ok := s.exec(ctx, insertHouseStmt, worldID, h.HouseID, h.Name,
			h.Rent, h.Description, h.Size, h.PositionX, h.PositionY,
			h.PositionZ, h.Town, h.GuildHouse); !ok {
			return false
		}
	}
	return true
}

var excludeFromAuctionsStmt = stmt{
	name: "ExcludeFromAuctions",
	text: "INSERT INTO HouseAuctionExclusions (CharacterID, Issued, Until, BanishmentID)" +
		" SELECT ?2, UNIXEPOCH(), (UNIXEPOCH() + ?3), ?4 FROM Characters" +
		" WHERE WorldID = ?1 AND CharacterID = ?2",
	postgres: "INSERT INTO HouseAuctionExclusions (CharacterID, Issued, Until, BanishmentID)" +
		" SELECT $2, now(), now() + make_interval(secs => $3), $4 FROM Characters" +
		" WHERE WorldID = $1 AND CharacterID = $2",
}

// ExcludeFromAuctions bars the character from house auctions for duration
// seconds, optionally linked to the banishment that caused it.
func (s *Session) ExcludeFromAuctions(ctx context.Context, worldID int, characterID uint32, duration int64, banishmentID uint32) bool {
	_, ok := s.exec(ctx, excludeFromAuctionsStmt, worldID, characterID, duration, banishmentID)
	return ok
}
