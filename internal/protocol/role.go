package protocol

// Role is the client type announced in the login frame. It decides which
// opcodes the connection may issue and whether a world name is expected.
type Role uint8

const (
	RoleGame  Role = 1
	RoleLogin Role = 2
	RoleWeb   Role = 3
)

// Valid reports whether the role is one of the three known client types.
func (r Role) Valid() bool {
	return r == RoleGame || r == RoleLogin || r == RoleWeb
}

func (r Role) String() string {
	switch r {
	case RoleGame:
		return "game"
	case RoleLogin:
		return "login"
	case RoleWeb:
		return "web"
	default:
		return "invalid"
	}
}

var gameOpcodes = map[Opcode]struct{}{
	OpLoginGame:              {},
	OpLogoutGame:             {},
	OpSetNamelock:            {},
	OpBanishAccount:          {},
	OpSetNotation:            {},
	OpReportStatement:        {},
	OpBanishIPAddress:        {},
	OpLogCharacterDeath:      {},
	OpAddBuddy:               {},
	OpRemoveBuddy:            {},
	OpDecrementIsOnline:      {},
	OpFinishAuctions:         {},
	OpTransferHouses:         {},
	OpEvictFreeAccounts:      {},
	OpEvictDeletedCharacters: {},
	OpEvictExGuildleaders:    {},
	OpInsertHouseOwner:       {},
	OpUpdateHouseOwner:       {},
	OpDeleteHouseOwner:       {},
	OpGetHouseOwners:         {},
	OpGetAuctions:            {},
	OpStartAuction:           {},
	OpInsertHouses:           {},
	OpClearIsOnline:          {},
	OpCreatePlayerlist:       {},
	OpLogKilledCreatures:     {},
	OpLoadPlayers:            {},
	OpExcludeFromAuctions:    {},
	OpCancelHouseTransfer:    {},
	OpLoadWorldConfig:        {},
}

var webOpcodes = map[Opcode]struct{}{
	OpCheckAccountPassword: {},
	OpCreateAccount:        {},
	OpCreateCharacter:      {},
	OpGetAccountSummary:    {},
	OpGetCharacterProfile:  {},
	OpGetWorlds:            {},
	OpGetOnlineCharacters:  {},
	OpGetKillStatistics:    {},
}

// Allows reports whether a connection holding this role may issue op.
// Login and world resolution are handled before authorization and are
// never allowed through the whitelist.
func (r Role) Allows(op Opcode) bool {
	switch r {
	case RoleGame:
		_, ok := gameOpcodes[op]
		return ok
	case RoleLogin:
		return op == OpLoginAccount
	case RoleWeb:
		_, ok := webOpcodes[op]
		return ok
	default:
		return false
	}
}
