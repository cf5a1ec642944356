package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmmo/querymanager/internal/protocol"
	"github.com/openmmo/querymanager/pkg/database"
)

func TestLoadWorldConfig(t *testing.T) {
	e := newTestEnv(t)
	e.seedWorld(t, 1, "Zanera")

	q := e.run(t, 1, protocol.OpLoadWorldConfig, func(w *protocol.WriteBuffer) {})
	require.Equal(t, protocol.StatusOK, q.Status())

	r := body(t, q)
	assert.Zero(t, r.Read8(), "type")
	assert.Zero(t, r.Read8(), "reboot time")
	assert.Equal(t, uint32(0x0100007F), r.Read32(),
		"the address travels in network byte order")
	assert.Equal(t, uint16(7172), r.Read16())
	assert.Equal(t, uint16(50), r.Read16(), "max players")
	assert.Zero(t, r.Read16(), "premium player buffer")
	assert.Zero(t, r.Read16(), "max newbies")
	assert.Zero(t, r.Read16(), "premium newbie buffer")

	q = e.run(t, 9, protocol.OpLoadWorldConfig, func(w *protocol.WriteBuffer) {})
	assert.Equal(t, protocol.StatusFailed, q.Status(), "no such world")
}

func TestGetWorlds(t *testing.T) {
	e := newTestEnv(t)
	e.seedWorld(t, 1, "Zanera")
	require.True(t, e.s.InsertOnlineCharacters(e.ctx, 1, []database.OnlineCharacter{
		{Name: "Alice", Level: 20, Profession: "Knight"},
		{Name: "Bob", Level: 35, Profession: "Paladin"},
	}))
	e.exec(t, "UPDATE Worlds SET OnlineRecord = 2, OnlineRecordTimestamp = 1700000000"+
		" WHERE WorldID = 1")

	q := e.run(t, 0, protocol.OpGetWorlds, func(w *protocol.WriteBuffer) {})
	require.Equal(t, protocol.StatusOK, q.Status())

	r := body(t, q)
	require.Equal(t, uint8(1), r.Read8())
	assert.Equal(t, "Zanera", r.ReadString(30))
	assert.Zero(t, r.Read8(), "type")
	assert.Equal(t, uint16(2), r.Read16(), "current population")
	assert.Equal(t, uint16(50), r.Read16(), "max players")
	assert.Equal(t, uint16(2), r.Read16(), "online record")
	assert.Equal(t, uint32(1700000000), r.Read32())
}

func TestGetOnlineCharacters(t *testing.T) {
	e := newTestEnv(t)
	e.seedWorld(t, 1, "Zanera")
	require.True(t, e.s.InsertOnlineCharacters(e.ctx, 1, []database.OnlineCharacter{
		{Name: "Alice", Level: 20, Profession: "Knight"},
	}))

	q := e.run(t, 0, protocol.OpGetOnlineCharacters, func(w *protocol.WriteBuffer) {
		w.WriteString("Zanera")
	})
	require.Equal(t, protocol.StatusOK, q.Status())

	r := body(t, q)
	require.Equal(t, uint16(1), r.Read16())
	assert.Equal(t, "Alice", r.ReadString(30))
	assert.Equal(t, uint16(20), r.Read16())
	assert.Equal(t, "Knight", r.ReadString(30))

	q = e.run(t, 0, protocol.OpGetOnlineCharacters, func(w *protocol.WriteBuffer) {
		w.WriteString("Atlantis")
	})
	assert.Equal(t, protocol.StatusFailed, q.Status(), "no such world")
}

func TestGetKillStatisticsQuery(t *testing.T) {
	e := newTestEnv(t)
	e.seedWorld(t, 1, "Zanera")
	require.True(t, e.s.MergeKillStatistics(e.ctx, 1, []database.KillStatistics{
		{RaceName: "Demon", TimesKilled: 10, PlayersKilled: 3},
	}))

	q := e.run(t, 0, protocol.OpGetKillStatistics, func(w *protocol.WriteBuffer) {
		w.WriteString("Zanera")
	})
	require.Equal(t, protocol.StatusOK, q.Status())

	r := body(t, q)
	require.Equal(t, uint16(1), r.Read16())
	assert.Equal(t, "Demon", r.ReadString(30))
	assert.Equal(t, uint32(3), r.Read32(), "players killed comes first")
	assert.Equal(t, uint32(10), r.Read32())

	q = e.run(t, 0, protocol.OpGetKillStatistics, func(w *protocol.WriteBuffer) {
		w.WriteString("Atlantis")
	})
	assert.Equal(t, protocol.StatusFailed, q.Status(), "no such world")
}
