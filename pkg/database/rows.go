package database

// Row shapes passed between the query handlers and the session operations.
// Fields use the wire widths: identifiers and timestamps are 32-bit,
// counters 16-bit. The schema may store wider values; scans clamp through
// the column codecs.

// World is one row of the public world listing.
type World struct {
	Name                  string
	Type                  uint8
	NumPlayers            uint16
	MaxPlayers            uint16
	OnlineRecord          uint16
	OnlineRecordTimestamp uint32
}

// WorldConfig is the per-world game server configuration. Host is a name,
// resolved by the caller through the host cache.
type WorldConfig struct {
	WorldID             int
	Type                uint8
	RebootTime          uint8
	Host                string
	Port                uint16
	MaxPlayers          uint16
	PremiumPlayerBuffer uint16
	MaxNewbies          uint16
	PremiumNewbieBuffer uint16
}

// Account is the authentication view of an account row. Auth is the
// 64-byte password blob, nil when the stored blob is malformed, which
// never verifies. PremiumDays is the remaining paid time rounded up to
// whole days.
type Account struct {
	AccountID          uint32
	Email              string
	Auth               []byte
	PremiumDays        int
	PendingPremiumDays int
	Deleted            bool
}

// CharacterLoginData is the character row examined during game login.
type CharacterLoginData struct {
	WorldID     int
	CharacterID uint32
	AccountID   uint32
	Name        string
	Sex         uint8
	Guild       string
	Rank        string
	Title       string
	Deleted     bool
}

// CharacterProfile is the public character sheet.
type CharacterProfile struct {
	Name        string
	World       string
	Sex         uint8
	Guild       string
	Rank        string
	Title       string
	Level       uint16
	Profession  string
	Residence   string
	LastLogin   uint32
	PremiumDays int
	Online      bool
	Deleted     bool
}

// CharacterSummary is one character in an account summary listing.
type CharacterSummary struct {
	Name       string
	World      string
	Level      uint16
	Profession string
	Online     bool
	Deleted    bool
}

// CharacterEndpoint maps one of an account's characters to its world's
// game server endpoint.
type CharacterEndpoint struct {
	Name  string
	World string
	Host  string
	Port  uint16
}

// Buddy is one entry of an account's buddy list on a world.
type Buddy struct {
	CharacterID uint32
	Name        string
}

// CharacterIndexEntry is one row of the bulk character index.
type CharacterIndexEntry struct {
	CharacterID uint32
	Name        string
}

// HouseAuction is a finished auction: the house and the winning bid.
type HouseAuction struct {
	HouseID    uint16
	BidderID   uint32
	BidderName string
	BidAmount  uint32
}

// HouseTransfer is a pending ownership transfer between characters.
type HouseTransfer struct {
	HouseID      uint16
	NewOwnerID   uint32
	NewOwnerName string
	Price        uint32
}

// HouseEviction names a house whose owner no longer qualifies for it.
type HouseEviction struct {
	HouseID uint16
	OwnerID uint32
}

// HouseOwner is the current owner record of a house.
type HouseOwner struct {
	HouseID   uint16
	OwnerID   uint32
	OwnerName string
	PaidUntil uint32
}

// House is the static description a game server uploads at startup.
type House struct {
	HouseID     uint16
	Name        string
	Rent        uint32
	Description string
	Size        uint16
	PositionX   uint16
	PositionY   uint16
	PositionZ   uint8
	Town        string
	GuildHouse  bool
}

// NamelockStatus summarizes a character's namelock rows.
type NamelockStatus struct {
	Namelocked bool
	Approved   bool
}

// Active reports whether the character is currently locked out of its
// name: locked and no approved rename yet.
func (s NamelockStatus) Active() bool {
	return s.Namelocked && !s.Approved
}

// BanishmentStatus summarizes an account's banishment history, reached
// through one of its characters.
type BanishmentStatus struct {
	Banished      bool
	FinalWarning  bool
	TimesBanished int
}

// Statement is one recorded chat statement.
type Statement struct {
	StatementID uint32
	Timestamp   uint32
	CharacterID uint32
	Channel     string
	Text        string
}

// KillStatistics is the kill tally of one creature race on a world.
type KillStatistics struct {
	RaceName      string
	TimesKilled   uint32
	PlayersKilled uint32
}

// OnlineCharacter is one entry of a world's online character listing.
type OnlineCharacter struct {
	Name       string
	Level      uint16
	Profession string
}
