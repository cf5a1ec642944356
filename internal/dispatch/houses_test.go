package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmmo/querymanager/internal/protocol"
)

func TestFinishAuctions(t *testing.T) {
	e := newTestEnv(t)
	e.seedWorld(t, 1, "Zanera")
	e.seedAccount(t, 10001, "a@example.com", "secret")
	alice := e.seedCharacter(t, 1, 10001, "Alice")

	require.True(t, e.s.StartHouseAuction(e.ctx, 1, 4001))
	require.True(t, e.s.StartHouseAuction(e.ctx, 1, 4002))
	// Only the first auction has a bid, and its deadline has passed.
	e.exec(t, "UPDATE HouseAuctions SET BidderID = ?, BidAmount = 150000,"+
		" FinishTime = UNIXEPOCH() - 10 WHERE HouseID = 4001", alice)

	q := e.run(t, 1, protocol.OpFinishAuctions, func(w *protocol.WriteBuffer) {})
	require.Equal(t, protocol.StatusOK, q.Status())

	r := body(t, q)
	require.Equal(t, uint16(1), r.Read16())
	assert.Equal(t, uint16(4001), r.Read16())
	assert.Equal(t, alice, r.Read32())
	assert.Equal(t, "Alice", r.ReadString(30))
	assert.Equal(t, uint32(150000), r.Read32())

	assert.Equal(t, 1, e.countRows(t, "HouseAuctions"), "the unbid auction stays open")
}

func TestTransferHouses(t *testing.T) {
	e := newTestEnv(t)
	e.seedWorld(t, 1, "Zanera")
	e.seedAccount(t, 10001, "a@example.com", "secret")
	bob := e.seedCharacter(t, 1, 10001, "Bob")

	e.exec(t, "INSERT INTO HouseTransfers (WorldID, HouseID, NewOwnerID, Price)"+
		" VALUES (1, 4001, ?, 250000)", bob)

	q := e.run(t, 1, protocol.OpTransferHouses, func(w *protocol.WriteBuffer) {})
	require.Equal(t, protocol.StatusOK, q.Status())

	r := body(t, q)
	require.Equal(t, uint16(1), r.Read16())
	assert.Equal(t, uint16(4001), r.Read16())
	assert.Equal(t, bob, r.Read32())
	assert.Equal(t, "Bob", r.ReadString(30))
	assert.Equal(t, uint32(250000), r.Read32())

	assert.Zero(t, e.countRows(t, "HouseTransfers"), "transfers are consumed")
}

func TestEvictFreeAccounts(t *testing.T) {
	e := newTestEnv(t)
	e.seedWorld(t, 1, "Zanera")
	e.seedAccount(t, 10001, "free@example.com", "secret")
	e.seedAccount(t, 10002, "paying@example.com", "secret")
	pauper := e.seedCharacter(t, 1, 10001, "Pauper")
	patron := e.seedCharacter(t, 1, 10002, "Patron")
	e.exec(t, "UPDATE Accounts SET PremiumEnd = UNIXEPOCH() + 86400 WHERE AccountID = 10002")

	require.True(t, e.s.InsertHouseOwner(e.ctx, 1, 4001, pauper, 0))
	require.True(t, e.s.InsertHouseOwner(e.ctx, 1, 4002, patron, 0))

	q := e.run(t, 1, protocol.OpEvictFreeAccounts, func(w *protocol.WriteBuffer) {})
	require.Equal(t, protocol.StatusOK, q.Status())

	r := body(t, q)
	require.Equal(t, uint16(1), r.Read16())
	assert.Equal(t, uint16(4001), r.Read16())
	assert.Equal(t, pauper, r.Read32())
}

func TestEvictDeletedCharacters(t *testing.T) {
	e := newTestEnv(t)
	e.seedWorld(t, 1, "Zanera")
	e.seedAccount(t, 10001, "a@example.com", "secret")
	alice := e.seedCharacter(t, 1, 10001, "Alice")
	bob := e.seedCharacter(t, 1, 10001, "Bob")
	e.exec(t, "UPDATE Characters SET Deleted = 1 WHERE CharacterID = ?", bob)

	require.True(t, e.s.InsertHouseOwner(e.ctx, 1, 4001, alice, 0))
	require.True(t, e.s.InsertHouseOwner(e.ctx, 1, 4002, bob, 0))

	q := e.run(t, 1, protocol.OpEvictDeletedCharacters, func(w *protocol.WriteBuffer) {})
	require.Equal(t, protocol.StatusOK, q.Status())

	r := body(t, q)
	require.Equal(t, uint16(1), r.Read16())
	assert.Equal(t, uint16(4002), r.Read16())
}

func TestEvictExGuildleaders(t *testing.T) {
	e := newTestEnv(t)
	e.seedWorld(t, 1, "Zanera")
	e.seedAccount(t, 10001, "a@example.com", "secret")
	leader := e.seedCharacter(t, 1, 10001, "Leader")
	deposed := e.seedCharacter(t, 1, 10001, "Deposed")
	e.exec(t, "UPDATE Characters SET Guild = 'Alliance', Rank = 'Leader'"+
		" WHERE CharacterID = ?", leader)

	q := e.run(t, 1, protocol.OpEvictExGuildleaders, func(w *protocol.WriteBuffer) {
		w.Write16(2)
		w.Write16(4001)
		w.Write32(leader)
		w.Write16(4002)
		w.Write32(deposed)
	})
	require.Equal(t, protocol.StatusOK, q.Status())

	// The answer is the subset whose owner still leads a guild, not the
	// ones to evict.
	r := body(t, q)
	require.Equal(t, uint16(1), r.Read16())
	assert.Equal(t, uint16(4001), r.Read16())
}

func TestHouseOwnerRoundtrip(t *testing.T) {
	e := newTestEnv(t)
	e.seedWorld(t, 1, "Zanera")
	e.seedAccount(t, 10001, "a@example.com", "secret")
	alice := e.seedCharacter(t, 1, 10001, "Alice")
	bob := e.seedCharacter(t, 1, 10001, "Bob")

	q := e.run(t, 1, protocol.OpInsertHouseOwner, func(w *protocol.WriteBuffer) {
		w.Write16(4001)
		w.Write32(alice)
		w.Write32(1800000000)
	})
	assert.Equal(t, protocol.StatusOK, q.Status())

	q = e.run(t, 1, protocol.OpUpdateHouseOwner, func(w *protocol.WriteBuffer) {
		w.Write16(4001)
		w.Write32(bob)
		w.Write32(1900000000)
	})
	assert.Equal(t, protocol.StatusOK, q.Status())

	q = e.run(t, 1, protocol.OpGetHouseOwners, func(w *protocol.WriteBuffer) {})
	require.Equal(t, protocol.StatusOK, q.Status())

	r := body(t, q)
	require.Equal(t, uint16(1), r.Read16())
	assert.Equal(t, uint16(4001), r.Read16())
	assert.Equal(t, bob, r.Read32())
	assert.Equal(t, "Bob", r.ReadString(30))
	assert.Equal(t, uint32(1900000000), r.Read32())

	q = e.run(t, 1, protocol.OpDeleteHouseOwner, func(w *protocol.WriteBuffer) {
		w.Write16(4001)
	})
	assert.Equal(t, protocol.StatusOK, q.Status())
	assert.Zero(t, e.countRows(t, "HouseOwners"))
}

func TestGetAuctions(t *testing.T) {
	e := newTestEnv(t)
	e.seedWorld(t, 1, "Zanera")

	q := e.run(t, 1, protocol.OpStartAuction, func(w *protocol.WriteBuffer) {
		w.Write16(4001)
	})
	assert.Equal(t, protocol.StatusOK, q.Status())

	q = e.run(t, 1, protocol.OpGetAuctions, func(w *protocol.WriteBuffer) {})
	require.Equal(t, protocol.StatusOK, q.Status())

	r := body(t, q)
	require.Equal(t, uint16(1), r.Read16())
	assert.Equal(t, uint16(4001), r.Read16())
}

func TestInsertHouses(t *testing.T) {
	e := newTestEnv(t)
	e.seedWorld(t, 1, "Zanera")

	q := e.run(t, 1, protocol.OpInsertHouses, func(w *protocol.WriteBuffer) {
		w.Write16(1)
		w.Write16(4001)
		w.WriteString("Coastwood 1")
		w.Write32(800)
		w.WriteString("A small house near the beach.")
		w.Write16(32)
		w.Write16(32100)
		w.Write16(31800)
		w.Write8(7)
		w.WriteString("Thais")
		w.WriteBool(false)
	})
	assert.Equal(t, protocol.StatusOK, q.Status())
	assert.Equal(t, 1, e.countRows(t, "Houses"))

	// A truncated upload must not destroy the previous listing.
	q = e.run(t, 1, protocol.OpInsertHouses, func(w *protocol.WriteBuffer) {
		w.Write16(2)
		w.Write16(4002)
		w.WriteString("Coastwood 2")
	})
	assert.Equal(t, protocol.StatusFailed, q.Status())
	assert.Equal(t, 1, e.countRows(t, "Houses"))
}

func TestCancelHouseTransfer(t *testing.T) {
	e := newTestEnv(t)
	e.seedWorld(t, 1, "Zanera")

	q := e.run(t, 1, protocol.OpCancelHouseTransfer, func(w *protocol.WriteBuffer) {
		w.Write16(4001)
	})
	assert.Equal(t, protocol.StatusOK, q.Status())

	resp, ok := q.Response()
	require.True(t, ok)
	assert.Len(t, resp, 3, "acknowledgement only")
}
