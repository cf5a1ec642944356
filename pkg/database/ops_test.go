package database

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func grantPremium(t *testing.T, ctx context.Context, s *Session, accountID uint32, seconds int64) {
	t.Helper()
	q := stmt{
		name: "GrantPremium",
		text: "UPDATE Accounts SET PremiumEnd = UNIXEPOCH() + ?2 WHERE AccountID = ?1",
		postgres: "UPDATE Accounts SET PremiumEnd = now() + make_interval(secs => $2)" +
			" WHERE AccountID = $1",
	}
	_, ok := s.exec(ctx, q, accountID, seconds)
	require.True(t, ok)
}

func TestGetWorldID(t *testing.T) {
	ctx, s := newTestSession(t)
	seedWorld(t, ctx, s, 3, "Antica")

	id, ok := s.GetWorldID(ctx, "Antica")
	require.True(t, ok)
	assert.Equal(t, 3, id)

	// World names match case-insensitively.
	id, ok = s.GetWorldID(ctx, "aNtIcA")
	require.True(t, ok)
	assert.Equal(t, 3, id)

	id, ok = s.GetWorldID(ctx, "Nova")
	require.True(t, ok)
	assert.Zero(t, id)
}

func TestGetWorlds(t *testing.T) {
	ctx, s := newTestSession(t)
	seedWorld(t, ctx, s, 1, "Antica")
	seedWorld(t, ctx, s, 2, "Secura")

	require.True(t, s.InsertOnlineCharacters(ctx, 1, []OnlineCharacter{
		{Name: "Alice", Level: 20, Profession: "Knight"},
		{Name: "Bob", Level: 31, Profession: "Druid"},
	}))

	record, ok := s.CheckOnlineRecord(ctx, 1, 2)
	require.True(t, ok)
	assert.True(t, record)

	worlds, ok := s.GetWorlds(ctx)
	require.True(t, ok)
	require.Len(t, worlds, 2)

	byName := map[string]World{}
	for _, w := range worlds {
		byName[w.Name] = w
	}

	antica := byName["Antica"]
	assert.Equal(t, uint16(2), antica.NumPlayers)
	assert.Equal(t, uint16(900), antica.MaxPlayers)
	assert.Equal(t, uint16(2), antica.OnlineRecord)
	assert.NotZero(t, antica.OnlineRecordTimestamp)

	secura := byName["Secura"]
	assert.Equal(t, uint16(0), secura.NumPlayers)
	assert.Equal(t, uint16(0), secura.OnlineRecord)
	assert.Zero(t, secura.OnlineRecordTimestamp)
}

func TestGetWorldConfig(t *testing.T) {
	ctx, s := newTestSession(t)
	seedWorld(t, ctx, s, 1, "Antica")

	cfg, ok := s.GetWorldConfig(ctx, 1)
	require.True(t, ok)
	assert.Equal(t, 1, cfg.WorldID)
	assert.Equal(t, "game.test", cfg.Host)
	assert.Equal(t, uint16(7172), cfg.Port)
	assert.Equal(t, uint16(900), cfg.MaxPlayers)

	cfg, ok = s.GetWorldConfig(ctx, 9)
	require.True(t, ok)
	assert.Zero(t, cfg.WorldID)
}

func TestCheckOnlineRecord(t *testing.T) {
	ctx, s := newTestSession(t)
	seedWorld(t, ctx, s, 1, "Antica")

	record, ok := s.CheckOnlineRecord(ctx, 1, 10)
	require.True(t, ok)
	assert.True(t, record)

	// Neither a lower count nor the same count beats the record.
	record, ok = s.CheckOnlineRecord(ctx, 1, 5)
	require.True(t, ok)
	assert.False(t, record)

	record, ok = s.CheckOnlineRecord(ctx, 1, 10)
	require.True(t, ok)
	assert.False(t, record)

	record, ok = s.CheckOnlineRecord(ctx, 1, 11)
	require.True(t, ok)
	assert.True(t, record)
}

func TestAccountLifecycle(t *testing.T) {
	ctx, s := newTestSession(t)

	found, ok := s.AccountNumberExists(ctx, 10001)
	require.True(t, ok)
	assert.False(t, found)

	auth := bytes.Repeat([]byte{0x5A}, authBlobSize)
	require.True(t, s.CreateAccount(ctx, 10001, "player@example.com", auth))

	found, ok = s.AccountNumberExists(ctx, 10001)
	require.True(t, ok)
	assert.True(t, found)

	found, ok = s.AccountEmailExists(ctx, "PLAYER@EXAMPLE.COM")
	require.True(t, ok)
	assert.True(t, found)

	acct, ok := s.GetAccountData(ctx, 10001)
	require.True(t, ok)
	assert.Equal(t, uint32(10001), acct.AccountID)
	assert.Equal(t, "player@example.com", acct.Email)
	assert.Equal(t, auth, acct.Auth)
	assert.Zero(t, acct.PremiumDays)
	assert.Zero(t, acct.PendingPremiumDays)
	assert.False(t, acct.Deleted)

	acct, ok = s.GetAccountData(ctx, 99999)
	require.True(t, ok)
	assert.Zero(t, acct.AccountID)
}

func TestCreateAccountDuplicate(t *testing.T) {
	ctx, s := newTestSession(t)
	seedAccount(t, ctx, s, 10001, "a@example.com")

	auth := bytes.Repeat([]byte{0x11}, authBlobSize)
	assert.False(t, s.CreateAccount(ctx, 10001, "b@example.com", auth))
	assert.False(t, s.CreateAccount(ctx, 10002, "a@example.com", auth))
	assert.True(t, s.CreateAccount(ctx, 10002, "b@example.com", auth))
}

func TestGetAccountDataRejectsMalformedAuth(t *testing.T) {
	ctx, s := newTestSession(t)
	require.True(t, s.CreateAccount(ctx, 10001, "a@example.com", []byte("short")))

	acct, ok := s.GetAccountData(ctx, 10001)
	require.True(t, ok)
	assert.Equal(t, uint32(10001), acct.AccountID)
	assert.Nil(t, acct.Auth)
}

func TestAccountPremium(t *testing.T) {
	ctx, s := newTestSession(t)
	seedAccount(t, ctx, s, 10001, "a@example.com")
	grantPremium(t, ctx, s, 10001, 10*86400)

	acct, ok := s.GetAccountData(ctx, 10001)
	require.True(t, ok)
	assert.Equal(t, 10, acct.PremiumDays)

	q := stmt{
		name: "SetPendingPremium",
		text: "UPDATE Accounts SET PendingPremiumDays = ?2 WHERE AccountID = ?1",
	}
	_, ok = s.exec(ctx, q, 10001, 5)
	require.True(t, ok)

	require.True(t, s.ActivatePendingPremiumDays(ctx, 10001))

	acct, ok = s.GetAccountData(ctx, 10001)
	require.True(t, ok)
	assert.Equal(t, 15, acct.PremiumDays)
	assert.Zero(t, acct.PendingPremiumDays)
}

func TestActivatePendingPremiumDaysOnExpiredAccount(t *testing.T) {
	ctx, s := newTestSession(t)
	seedAccount(t, ctx, s, 10001, "a@example.com")

	// Pending days are counted from now for accounts whose premium time
	// already ran out, not from the old end.
	q := stmt{
		name: "SetPendingPremium",
		text: "UPDATE Accounts SET PendingPremiumDays = ?2 WHERE AccountID = ?1",
	}
	_, ok := s.exec(ctx, q, 10001, 7)
	require.True(t, ok)

	require.True(t, s.ActivatePendingPremiumDays(ctx, 10001))

	acct, ok := s.GetAccountData(ctx, 10001)
	require.True(t, ok)
	assert.Equal(t, 7, acct.PremiumDays)
}

func TestGetAccountOnlineCharacters(t *testing.T) {
	ctx, s := newTestSession(t)
	seedWorld(t, ctx, s, 1, "Antica")
	seedAccount(t, ctx, s, 10001, "a@example.com")
	first := seedCharacter(t, ctx, s, 1, 10001, "First Character")
	second := seedCharacter(t, ctx, s, 1, 10001, "Second Character")

	n, ok := s.GetAccountOnlineCharacters(ctx, 10001)
	require.True(t, ok)
	assert.Zero(t, n)

	require.True(t, s.IncrementIsOnline(ctx, 1, first))
	require.True(t, s.IncrementIsOnline(ctx, 1, second))

	n, ok = s.GetAccountOnlineCharacters(ctx, 10001)
	require.True(t, ok)
	assert.Equal(t, 2, n)

	require.True(t, s.DecrementIsOnline(ctx, 1, second))

	n, ok = s.GetAccountOnlineCharacters(ctx, 10001)
	require.True(t, ok)
	assert.Equal(t, 1, n)
}

func TestCharacterLifecycle(t *testing.T) {
	ctx, s := newTestSession(t)
	seedWorld(t, ctx, s, 1, "Antica")
	seedAccount(t, ctx, s, 10001, "a@example.com")

	found, ok := s.CharacterNameExists(ctx, "Sir Example")
	require.True(t, ok)
	assert.False(t, found)

	id := seedCharacter(t, ctx, s, 1, 10001, "Sir Example")

	found, ok = s.CharacterNameExists(ctx, "SIR EXAMPLE")
	require.True(t, ok)
	assert.True(t, found)

	login, ok := s.GetCharacterLoginData(ctx, "sir example")
	require.True(t, ok)
	assert.Equal(t, 1, login.WorldID)
	assert.Equal(t, id, login.CharacterID)
	assert.Equal(t, uint32(10001), login.AccountID)
	assert.Equal(t, "Sir Example", login.Name)
	assert.Equal(t, uint8(1), login.Sex)
	assert.False(t, login.Deleted)

	login, ok = s.GetCharacterLoginData(ctx, "Nobody")
	require.True(t, ok)
	assert.Zero(t, login.CharacterID)
}

func TestCreateCharacterDuplicateName(t *testing.T) {
	ctx, s := newTestSession(t)
	seedWorld(t, ctx, s, 1, "Antica")
	seedWorld(t, ctx, s, 2, "Secura")
	seedAccount(t, ctx, s, 10001, "a@example.com")
	seedCharacter(t, ctx, s, 1, 10001, "Sir Example")

	// Names are unique across worlds, ignoring case.
	assert.False(t, s.CreateCharacter(ctx, 2, 10001, "SIR EXAMPLE", 1))
}

func TestGetCharacterEndpoints(t *testing.T) {
	ctx, s := newTestSession(t)
	seedWorld(t, ctx, s, 1, "Antica")
	seedAccount(t, ctx, s, 10001, "a@example.com")
	seedCharacter(t, ctx, s, 1, 10001, "Sir Example")
	seedCharacter(t, ctx, s, 1, 10001, "Lady Example")

	endpoints, ok := s.GetCharacterEndpoints(ctx, 10001)
	require.True(t, ok)
	require.Len(t, endpoints, 2)
	for _, e := range endpoints {
		assert.Equal(t, "Antica", e.World)
		assert.Equal(t, "game.test", e.Host)
		assert.Equal(t, uint16(7172), e.Port)
	}
}

func TestGetCharacterSummaries(t *testing.T) {
	ctx, s := newTestSession(t)
	seedWorld(t, ctx, s, 1, "Antica")
	seedAccount(t, ctx, s, 10001, "a@example.com")
	id := seedCharacter(t, ctx, s, 1, 10001, "Sir Example")
	require.True(t, s.IncrementIsOnline(ctx, 1, id))

	summaries, ok := s.GetCharacterSummaries(ctx, 10001)
	require.True(t, ok)
	require.Len(t, summaries, 1)
	assert.Equal(t, "Sir Example", summaries[0].Name)
	assert.Equal(t, "Antica", summaries[0].World)
	assert.Equal(t, uint16(1), summaries[0].Level)
	assert.True(t, summaries[0].Online)
	assert.False(t, summaries[0].Deleted)
}

func TestGetCharacterProfile(t *testing.T) {
	ctx, s := newTestSession(t)
	seedWorld(t, ctx, s, 1, "Antica")
	seedAccount(t, ctx, s, 10001, "a@example.com")
	id := seedCharacter(t, ctx, s, 1, 10001, "Sir Example")
	grantPremium(t, ctx, s, 10001, 3*86400)

	p, ok := s.GetCharacterProfile(ctx, "Sir Example")
	require.True(t, ok)
	assert.Equal(t, "Sir Example", p.Name)
	assert.Equal(t, "Antica", p.World)
	assert.Equal(t, uint16(1), p.Level)
	assert.Equal(t, "None", p.Profession)
	assert.Equal(t, 3, p.PremiumDays)
	assert.False(t, p.Online)
	assert.Zero(t, p.LastLogin)

	require.True(t, s.IncrementIsOnline(ctx, 1, id))
	p, ok = s.GetCharacterProfile(ctx, "Sir Example")
	require.True(t, ok)
	assert.True(t, p.Online)

	p, ok = s.GetCharacterProfile(ctx, "Nobody")
	require.True(t, ok)
	assert.Empty(t, p.Name)
}

func TestGetCharacterProfileHidesNoStatistics(t *testing.T) {
	ctx, s := newTestSession(t)
	seedWorld(t, ctx, s, 1, "Antica")
	seedAccount(t, ctx, s, 10001, "a@example.com")
	id := seedCharacter(t, ctx, s, 1, 10001, "Hidden Gamemaster")

	q := stmt{
		name: "GrantRight",
		text: "INSERT INTO CharacterRights (CharacterID, \"Right\") VALUES (?1, ?2)",
	}
	_, ok := s.exec(ctx, q, id, "NO_STATISTICS")
	require.True(t, ok)

	p, ok := s.GetCharacterProfile(ctx, "Hidden Gamemaster")
	require.True(t, ok)
	assert.Empty(t, p.Name)
}

func TestCharacterRights(t *testing.T) {
	ctx, s := newTestSession(t)
	seedWorld(t, ctx, s, 1, "Antica")
	seedAccount(t, ctx, s, 10001, "a@example.com")
	id := seedCharacter(t, ctx, s, 1, 10001, "Sir Example")

	found, ok := s.HasRight(ctx, id, "BANISH_ACCOUNTS")
	require.True(t, ok)
	assert.False(t, found)

	q := stmt{
		name: "GrantRight",
		text: "INSERT INTO CharacterRights (CharacterID, \"Right\") VALUES (?1, ?2)",
	}
	for _, right := range []string{"BANISH_ACCOUNTS", "NOTATE_CHARACTERS"} {
		_, ok := s.exec(ctx, q, id, right)
		require.True(t, ok)
	}

	found, ok = s.HasRight(ctx, id, "BANISH_ACCOUNTS")
	require.True(t, ok)
	assert.True(t, found)

	rights, ok := s.GetCharacterRights(ctx, id)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"BANISH_ACCOUNTS", "NOTATE_CHARACTERS"}, rights)
}

func TestIsGuildLeader(t *testing.T) {
	ctx, s := newTestSession(t)
	seedWorld(t, ctx, s, 1, "Antica")
	seedAccount(t, ctx, s, 10001, "a@example.com")
	id := seedCharacter(t, ctx, s, 1, 10001, "Sir Example")

	leader, ok := s.IsGuildLeader(ctx, 1, id)
	require.True(t, ok)
	assert.False(t, leader)

	q := stmt{
		name: "SetGuild",
		text: "UPDATE Characters SET Guild = ?3, Rank = ?4 WHERE WorldID = ?1 AND CharacterID = ?2",
	}
	_, ok = s.exec(ctx, q, 1, id, "Alliance", "leader")
	require.True(t, ok)

	leader, ok = s.IsGuildLeader(ctx, 1, id)
	require.True(t, ok)
	assert.True(t, leader)

	_, ok = s.exec(ctx, q, 1, id, "Alliance", "Member")
	require.True(t, ok)

	leader, ok = s.IsGuildLeader(ctx, 1, id)
	require.True(t, ok)
	assert.False(t, leader)
}

func TestClearIsOnline(t *testing.T) {
	ctx, s := newTestSession(t)
	seedWorld(t, ctx, s, 1, "Antica")
	seedWorld(t, ctx, s, 2, "Secura")
	seedAccount(t, ctx, s, 10001, "a@example.com")
	first := seedCharacter(t, ctx, s, 1, 10001, "First Character")
	second := seedCharacter(t, ctx, s, 1, 10001, "Second Character")
	other := seedCharacter(t, ctx, s, 2, 10001, "Other World")

	require.True(t, s.IncrementIsOnline(ctx, 1, first))
	require.True(t, s.IncrementIsOnline(ctx, 1, second))
	require.True(t, s.IncrementIsOnline(ctx, 2, other))

	cleared, ok := s.ClearIsOnline(ctx, 1)
	require.True(t, ok)
	assert.Equal(t, int64(2), cleared)

	// The other world's characters stay online.
	n, ok := s.GetAccountOnlineCharacters(ctx, 10001)
	require.True(t, ok)
	assert.Equal(t, 1, n)

	cleared, ok = s.ClearIsOnline(ctx, 1)
	require.True(t, ok)
	assert.Zero(t, cleared)
}

func TestLogoutCharacter(t *testing.T) {
	ctx, s := newTestSession(t)
	seedWorld(t, ctx, s, 1, "Antica")
	seedAccount(t, ctx, s, 10001, "a@example.com")
	id := seedCharacter(t, ctx, s, 1, 10001, "Sir Example")
	require.True(t, s.IncrementIsOnline(ctx, 1, id))

	require.True(t, s.LogoutCharacter(ctx, 1, id, 23, "Knight", "Thais", 1700000000, 4))

	p, ok := s.GetCharacterProfile(ctx, "Sir Example")
	require.True(t, ok)
	assert.Equal(t, uint16(23), p.Level)
	assert.Equal(t, "Knight", p.Profession)
	assert.Equal(t, "Thais", p.Residence)
	assert.Equal(t, uint32(1700000000), p.LastLogin)
	assert.False(t, p.Online)
}

func TestGetCharacterIndexEntries(t *testing.T) {
	ctx, s := newTestSession(t)
	seedWorld(t, ctx, s, 1, "Antica")
	seedAccount(t, ctx, s, 10001, "a@example.com")
	first := seedCharacter(t, ctx, s, 1, 10001, "First Character")
	second := seedCharacter(t, ctx, s, 1, 10001, "Second Character")
	third := seedCharacter(t, ctx, s, 1, 10001, "Third Character")

	page, ok := s.GetCharacterIndexEntries(ctx, 1, 0, 2)
	require.True(t, ok)
	require.Len(t, page, 2)
	assert.Equal(t, first, page[0].CharacterID)
	assert.Equal(t, second, page[1].CharacterID)

	page, ok = s.GetCharacterIndexEntries(ctx, 1, page[1].CharacterID+1, 2)
	require.True(t, ok)
	require.Len(t, page, 1)
	assert.Equal(t, third, page[0].CharacterID)
	assert.Equal(t, "Third Character", page[0].Name)
}

func TestInsertCharacterDeath(t *testing.T) {
	ctx, s := newTestSession(t)
	seedWorld(t, ctx, s, 1, "Antica")
	seedAccount(t, ctx, s, 10001, "a@example.com")
	id := seedCharacter(t, ctx, s, 1, 10001, "Sir Example")

	require.True(t, s.InsertCharacterDeath(ctx, 1, id, 20, 0, "a dragon", false, 1700000000))
	assert.Equal(t, 1, countRows(t, ctx, s, "CharacterDeaths"))

	// A death reported for the wrong world is dropped.
	require.True(t, s.InsertCharacterDeath(ctx, 2, id, 20, 0, "a dragon", false, 1700000000))
	assert.Equal(t, 1, countRows(t, ctx, s, "CharacterDeaths"))
}

func TestBuddies(t *testing.T) {
	ctx, s := newTestSession(t)
	seedWorld(t, ctx, s, 1, "Antica")
	seedAccount(t, ctx, s, 10001, "a@example.com")
	seedAccount(t, ctx, s, 10002, "b@example.com")
	friend := seedCharacter(t, ctx, s, 1, 10002, "Friendly Face")
	other := seedCharacter(t, ctx, s, 1, 10002, "Other Friend")

	require.True(t, s.InsertBuddy(ctx, 1, 10001, friend))
	require.True(t, s.InsertBuddy(ctx, 1, 10001, other))

	// Duplicates and unknown characters are ignored.
	require.True(t, s.InsertBuddy(ctx, 1, 10001, friend))
	require.True(t, s.InsertBuddy(ctx, 1, 10001, 999999))

	buddies, ok := s.GetBuddies(ctx, 1, 10001)
	require.True(t, ok)
	require.Len(t, buddies, 2)

	names := []string{buddies[0].Name, buddies[1].Name}
	assert.ElementsMatch(t, []string{"Friendly Face", "Other Friend"}, names)

	require.True(t, s.DeleteBuddy(ctx, 1, 10001, friend))
	buddies, ok = s.GetBuddies(ctx, 1, 10001)
	require.True(t, ok)
	require.Len(t, buddies, 1)
	assert.Equal(t, other, buddies[0].CharacterID)
}

func TestHasWorldInvitation(t *testing.T) {
	ctx, s := newTestSession(t)
	seedWorld(t, ctx, s, 1, "Antica")
	seedAccount(t, ctx, s, 10001, "a@example.com")
	id := seedCharacter(t, ctx, s, 1, 10001, "Sir Example")

	found, ok := s.HasWorldInvitation(ctx, 1, id)
	require.True(t, ok)
	assert.False(t, found)

	q := stmt{
		name: "SeedInvitation",
		text: "INSERT INTO WorldInvitations (WorldID, CharacterID) VALUES (?1, ?2)",
	}
	_, ok = s.exec(ctx, q, 1, id)
	require.True(t, ok)

	found, ok = s.HasWorldInvitation(ctx, 1, id)
	require.True(t, ok)
	assert.True(t, found)
}

func TestLoginAttempts(t *testing.T) {
	ctx, s := newTestSession(t)

	ip := uint32(0x7F000001)
	require.True(t, s.InsertLoginAttempt(ctx, 10001, ip, true))
	require.True(t, s.InsertLoginAttempt(ctx, 10001, ip, true))
	require.True(t, s.InsertLoginAttempt(ctx, 10001, ip, false))
	require.True(t, s.InsertLoginAttempt(ctx, 10002, 0x0A000001, true))

	n, ok := s.GetAccountFailedLoginAttempts(ctx, 10001, 3600)
	require.True(t, ok)
	assert.Equal(t, 2, n)

	n, ok = s.GetAccountFailedLoginAttempts(ctx, 10003, 3600)
	require.True(t, ok)
	assert.Zero(t, n)

	n, ok = s.GetIPFailedLoginAttempts(ctx, ip, 3600)
	require.True(t, ok)
	assert.Equal(t, 2, n)

	n, ok = s.GetIPFailedLoginAttempts(ctx, 0x0A000001, 3600)
	require.True(t, ok)
	assert.Equal(t, 1, n)
}
