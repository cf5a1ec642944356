// Package dispatch maps query opcodes to the functions that execute them
// against a worker's database session.
//
// Handlers follow one status discipline: they decode the request, run the
// session operations, and only write a response once the outcome is known.
// A handler that returns without writing anything leaves the query Pending,
// which the worker pool treats as retryable; Error carries an operation
// specific refusal code back to the client and Failed rejects the request
// outright. Because the request and response share one buffer, decoding
// must be complete before the first response byte is written.
package dispatch

import (
	"context"

	"github.com/openmmo/querymanager/internal/hostcache"
	"github.com/openmmo/querymanager/internal/protocol"
	"github.com/openmmo/querymanager/internal/query"
	"github.com/openmmo/querymanager/pkg/database"
)

// Handler executes one query against a worker's database session.
type Handler = func(ctx context.Context, s *database.Session, q *query.Query)

// Registry is the opcode handler table. It also carries the host cache,
// which the login and world configuration handlers need to turn stored
// host names into wire addresses.
type Registry struct {
	hosts *hostcache.Cache
	table map[protocol.Opcode]Handler
}

// New builds the handler table. Login has no entry because the connection
// layer consumes login frames before anything reaches the worker pool, and
// the reserved admin opcode has no handler at all.
func New(hosts *hostcache.Cache) *Registry {
	r := &Registry{hosts: hosts}
	r.table = map[protocol.Opcode]Handler{
		protocol.OpResolveWorld: r.resolveWorld,

		protocol.OpCheckAccountPassword: r.checkAccountPassword,
		protocol.OpLoginAccount:         r.loginAccount,

		protocol.OpLoginGame:              r.loginGame,
		protocol.OpLogoutGame:             r.logoutGame,
		protocol.OpSetNamelock:            r.setNamelock,
		protocol.OpBanishAccount:          r.banishAccount,
		protocol.OpSetNotation:            r.setNotation,
		protocol.OpReportStatement:        r.reportStatement,
		protocol.OpBanishIPAddress:        r.banishIPAddress,
		protocol.OpLogCharacterDeath:      r.logCharacterDeath,
		protocol.OpAddBuddy:               r.addBuddy,
		protocol.OpRemoveBuddy:            r.removeBuddy,
		protocol.OpDecrementIsOnline:      r.decrementIsOnline,
		protocol.OpFinishAuctions:         r.finishAuctions,
		protocol.OpTransferHouses:         r.transferHouses,
		protocol.OpEvictFreeAccounts:      r.evictFreeAccounts,
		protocol.OpEvictDeletedCharacters: r.evictDeletedCharacters,
		protocol.OpEvictExGuildleaders:    r.evictExGuildleaders,
		protocol.OpInsertHouseOwner:       r.insertHouseOwner,
		protocol.OpUpdateHouseOwner:       r.updateHouseOwner,
		protocol.OpDeleteHouseOwner:       r.deleteHouseOwner,
		protocol.OpGetHouseOwners:         r.getHouseOwners,
		protocol.OpGetAuctions:            r.getAuctions,
		protocol.OpStartAuction:           r.startAuction,
		protocol.OpInsertHouses:           r.insertHouses,
		protocol.OpClearIsOnline:          r.clearIsOnline,
		protocol.OpCreatePlayerlist:       r.createPlayerlist,
		protocol.OpLogKilledCreatures:     r.logKilledCreatures,
		protocol.OpLoadPlayers:            r.loadPlayers,
		protocol.OpExcludeFromAuctions:    r.excludeFromAuctions,
		protocol.OpCancelHouseTransfer:    r.cancelHouseTransfer,
		protocol.OpLoadWorldConfig:        r.loadWorldConfig,

		protocol.OpCreateAccount:       r.createAccount,
		protocol.OpCreateCharacter:     r.createCharacter,
		protocol.OpGetAccountSummary:   r.getAccountSummary,
		protocol.OpGetCharacterProfile: r.getCharacterProfile,

		protocol.OpGetWorlds:           r.getWorlds,
		protocol.OpGetOnlineCharacters: r.getOnlineCharacters,
		protocol.OpGetKillStatistics:   r.getKillStatistics,
	}
	return r
}

// Lookup returns the handler for op, or nil when the opcode has none.
func (r *Registry) Lookup(op protocol.Opcode) Handler {
	return r.table[op]
}

// capCount clamps a response list length to its wire counter width.
func capCount(n, max int) int {
	if n > max {
		return max
	}
	return n
}

// parseOptionalIP parses a request IP string, treating the empty string as
// address zero. Moderation requests omit the address when the gamemaster
// acts from the console.
func parseOptionalIP(s string) (uint32, bool) {
	if s == "" {
		return 0, true
	}
	return database.ParseIP(s)
}
