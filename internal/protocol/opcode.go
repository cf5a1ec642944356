package protocol

// Opcode identifies a query. It travels as the first byte of every request
// payload and is the only part of a request decoded before dispatch.
type Opcode uint8

// Login and the internal world resolution query run before a connection is
// authorized; everything else is gated by the role whitelist.
const (
	OpLogin        Opcode = 0
	OpResolveWorld Opcode = 1

	OpCheckAccountPassword Opcode = 10
	OpLoginAccount         Opcode = 11

	// OpLoginAdmin is reserved in the protocol but has no handler and no
	// role that may issue it.
	OpLoginAdmin Opcode = 12

	OpLoginGame              Opcode = 20
	OpLogoutGame             Opcode = 21
	OpSetNamelock            Opcode = 23
	OpBanishAccount          Opcode = 25
	OpSetNotation            Opcode = 26
	OpReportStatement        Opcode = 27
	OpBanishIPAddress        Opcode = 28
	OpLogCharacterDeath      Opcode = 29
	OpAddBuddy               Opcode = 30
	OpRemoveBuddy            Opcode = 31
	OpDecrementIsOnline      Opcode = 32
	OpFinishAuctions         Opcode = 33
	OpTransferHouses         Opcode = 35
	OpEvictFreeAccounts      Opcode = 36
	OpEvictDeletedCharacters Opcode = 37
	OpEvictExGuildleaders    Opcode = 38
	OpInsertHouseOwner       Opcode = 39
	OpUpdateHouseOwner       Opcode = 40
	OpDeleteHouseOwner       Opcode = 41
	OpGetHouseOwners         Opcode = 42
	OpGetAuctions            Opcode = 43
	OpStartAuction           Opcode = 44
	OpInsertHouses           Opcode = 45
	OpClearIsOnline          Opcode = 46
	OpCreatePlayerlist       Opcode = 47
	OpLogKilledCreatures     Opcode = 48
	OpLoadPlayers            Opcode = 50
	OpExcludeFromAuctions    Opcode = 51
	OpCancelHouseTransfer    Opcode = 52
	OpLoadWorldConfig        Opcode = 53

	OpCreateAccount       Opcode = 100
	OpCreateCharacter     Opcode = 101
	OpGetAccountSummary   Opcode = 102
	OpGetCharacterProfile Opcode = 103

	OpGetWorlds           Opcode = 150
	OpGetOnlineCharacters Opcode = 151
	OpGetKillStatistics   Opcode = 152
)

var opcodeNames = map[Opcode]string{
	OpLogin:                  "LOGIN",
	OpResolveWorld:           "INTERNAL_RESOLVE_WORLD",
	OpCheckAccountPassword:   "CHECK_ACCOUNT_PASSWORD",
	OpLoginAccount:           "LOGIN_ACCOUNT",
	OpLoginAdmin:             "LOGIN_ADMIN",
	OpLoginGame:              "LOGIN_GAME",
	OpLogoutGame:             "LOGOUT_GAME",
	OpSetNamelock:            "SET_NAMELOCK",
	OpBanishAccount:          "BANISH_ACCOUNT",
	OpSetNotation:            "SET_NOTATION",
	OpReportStatement:        "REPORT_STATEMENT",
	OpBanishIPAddress:        "BANISH_IP_ADDRESS",
	OpLogCharacterDeath:      "LOG_CHARACTER_DEATH",
	OpAddBuddy:               "ADD_BUDDY",
	OpRemoveBuddy:            "REMOVE_BUDDY",
	OpDecrementIsOnline:      "DECREMENT_IS_ONLINE",
	OpFinishAuctions:         "FINISH_AUCTIONS",
	OpTransferHouses:         "TRANSFER_HOUSES",
	OpEvictFreeAccounts:      "EVICT_FREE_ACCOUNTS",
	OpEvictDeletedCharacters: "EVICT_DELETED_CHARACTERS",
	OpEvictExGuildleaders:    "EVICT_EX_GUILDLEADERS",
	OpInsertHouseOwner:       "INSERT_HOUSE_OWNER",
	OpUpdateHouseOwner:       "UPDATE_HOUSE_OWNER",
	OpDeleteHouseOwner:       "DELETE_HOUSE_OWNER",
	OpGetHouseOwners:         "GET_HOUSE_OWNERS",
	OpGetAuctions:            "GET_AUCTIONS",
	OpStartAuction:           "START_AUCTION",
	OpInsertHouses:           "INSERT_HOUSES",
	OpClearIsOnline:          "CLEAR_IS_ONLINE",
	OpCreatePlayerlist:       "CREATE_PLAYERLIST",
	OpLogKilledCreatures:     "LOG_KILLED_CREATURES",
	OpLoadPlayers:            "LOAD_PLAYERS",
	OpExcludeFromAuctions:    "EXCLUDE_FROM_AUCTIONS",
	OpCancelHouseTransfer:    "CANCEL_HOUSE_TRANSFER",
	OpLoadWorldConfig:        "LOAD_WORLD_CONFIG",
	OpCreateAccount:          "CREATE_ACCOUNT",
	OpCreateCharacter:        "CREATE_CHARACTER",
	OpGetAccountSummary:      "GET_ACCOUNT_SUMMARY",
	OpGetCharacterProfile:    "GET_CHARACTER_PROFILE",
	OpGetWorlds:              "GET_WORLDS",
	OpGetOnlineCharacters:    "GET_ONLINE_CHARACTERS",
	OpGetKillStatistics:      "GET_KILL_STATISTICS",
}

// String returns the log name of the opcode, or "UNKNOWN" for opcodes
// outside the dispatch table.
func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return "UNKNOWN"
}
