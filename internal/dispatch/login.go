package dispatch

import (
	"context"
	"math"

	"github.com/openmmo/querymanager/internal/auth"
	"github.com/openmmo/querymanager/internal/logger"
	"github.com/openmmo/querymanager/internal/protocol"
	"github.com/openmmo/querymanager/internal/query"
	"github.com/openmmo/querymanager/pkg/database"
)

// Failed login attempts are rate limited per account and per address over
// sliding windows.
const (
	accountAttemptWindow = 5 * 60
	accountAttemptLimit  = 10
	addressAttemptWindow = 30 * 60
	addressAttemptLimit  = 20
)

// resolveWorld binds a connection to the world it announced at login. The
// connection layer rewrites the login frame into this query; it never
// arrives from a client directly.
func (r *Registry) resolveWorld(ctx context.Context, s *database.Session, q *query.Query) {
	req := q.Request()
	name := req.ReadString(30)
	if req.Overflowed() {
		q.Failed()
		return
	}

	worldID, ok := s.GetWorldID(ctx, name)
	if !ok {
		return
	}
	if worldID <= 0 {
		q.Failed()
		return
	}

	q.BindWorld(worldID)
	q.Ok()
}

func (r *Registry) checkAccountPassword(ctx context.Context, s *database.Session, q *query.Query) {
	req := q.Request()
	accountID := req.Read32()
	password := req.ReadString(30)
	ipString := req.ReadString(16)
	if req.Overflowed() {
		q.Failed()
		return
	}

	ip, ok := database.ParseIP(ipString)
	if !ok {
		q.Failed()
		return
	}

	checkAccountPasswordTx(ctx, s, q, accountID, password, ip)
	auditLoginAttempt(ctx, s, q, accountID, ip)
}

func checkAccountPasswordTx(ctx context.Context, s *database.Session, q *query.Query,
	accountID uint32, password string, ip uint32) {
	tx, ok := s.Begin(ctx)
	if !ok {
		return
	}
	defer tx.Close(ctx)

	account, ok := s.GetAccountData(ctx, accountID)
	if !ok {
		return
	}
	if account.AccountID == 0 {
		q.Error(1)
		return
	}
	if !auth.VerifyPassword(account.Auth, password) {
		q.Error(2)
		return
	}
	if !checkAttemptLimits(ctx, s, q, account.AccountID, ip, 3, 4) {
		return
	}

	if !tx.Commit(ctx) {
		return
	}
	q.Ok()
}

func (r *Registry) loginAccount(ctx context.Context, s *database.Session, q *query.Query) {
	req := q.Request()
	accountID := req.Read32()
	password := req.ReadString(30)
	ipString := req.ReadString(16)
	if req.Overflowed() {
		q.Failed()
		return
	}

	ip, ok := database.ParseIP(ipString)
	if !ok {
		q.Failed()
		return
	}

	r.loginAccountTx(ctx, s, q, accountID, password, ip)
	auditLoginAttempt(ctx, s, q, accountID, ip)
}

func (r *Registry) loginAccountTx(ctx context.Context, s *database.Session, q *query.Query,
	accountID uint32, password string, ip uint32) {
	tx, ok := s.Begin(ctx)
	if !ok {
		return
	}
	defer tx.Close(ctx)

	account, ok := s.GetAccountData(ctx, accountID)
	if !ok {
		return
	}
	if account.AccountID == 0 {
		q.Error(1)
		return
	}
	if !auth.VerifyPassword(account.Auth, password) {
		q.Error(2)
		return
	}
	if !checkAttemptLimits(ctx, s, q, account.AccountID, ip, 3, 4) {
		return
	}

	banished, ok := s.IsAccountBanished(ctx, account.AccountID)
	if !ok {
		return
	}
	if banished {
		q.Error(5)
		return
	}
	banished, ok = s.IsIPBanished(ctx, ip)
	if !ok {
		return
	}
	if banished {
		q.Error(6)
		return
	}

	endpoints, ok := s.GetCharacterEndpoints(ctx, account.AccountID)
	if !ok {
		return
	}
	if !tx.Commit(ctx) {
		return
	}

	w := q.Begin(protocol.StatusOK)
	n := capCount(len(endpoints), math.MaxUint8)
	w.Write8(uint8(n))
	for _, ep := range endpoints[:n] {
		w.WriteString(ep.Name)
		w.WriteString(ep.World)

		if addr, ok := r.hosts.Resolve(ctx, ep.Host); ok {
			w.Write32BE(addr)
			w.Write16(ep.Port)
		} else {
			logger.ErrorCtx(ctx, "Failed to resolve world host name",
				logger.World(ep.World),
				logger.Hostname(ep.Host),
				logger.Character(ep.Name))
			w.Write32BE(0)
			w.Write16(0)
		}
	}
	w.Write16(uint16(account.PremiumDays + account.PendingPremiumDays))
	q.Finish()
}

func (r *Registry) loginGame(ctx context.Context, s *database.Session, q *query.Query) {
	req := q.Request()
	accountID := req.Read32()
	characterName := req.ReadString(30)
	password := req.ReadString(30)
	ipString := req.ReadString(16)
	privateWorld := req.ReadBool()
	req.ReadBool() // premium requirement is enforced by the game server
	gamemasterRequired := req.ReadBool()
	if req.Overflowed() {
		q.Failed()
		return
	}

	ip, ok := database.ParseIP(ipString)
	if !ok {
		q.Failed()
		return
	}

	loginGameTx(ctx, s, q, accountID, characterName, password, ip,
		privateWorld, gamemasterRequired)
	auditLoginAttempt(ctx, s, q, accountID, ip)
}

func loginGameTx(ctx context.Context, s *database.Session, q *query.Query,
	accountID uint32, characterName, password string, ip uint32,
	privateWorld, gamemasterRequired bool) {
	tx, ok := s.Begin(ctx)
	if !ok {
		return
	}
	defer tx.Close(ctx)

	character, ok := s.GetCharacterLoginData(ctx, characterName)
	if !ok {
		return
	}
	if character.CharacterID == 0 {
		q.Error(1)
		return
	}
	if character.Deleted {
		q.Error(2)
		return
	}
	if character.WorldID != q.WorldID() {
		q.Error(3)
		return
	}
	if privateWorld {
		invited, ok := s.HasWorldInvitation(ctx, q.WorldID(), character.CharacterID)
		if !ok {
			return
		}
		if !invited {
			q.Error(4)
			return
		}
	}

	account, ok := s.GetAccountData(ctx, accountID)
	if !ok {
		return
	}
	// There is no error code 5; a missing or foreign account reports 15.
	if account.AccountID == 0 || account.AccountID != character.AccountID {
		q.Error(15)
		return
	}
	if account.Deleted {
		q.Error(8)
		return
	}
	if !auth.VerifyPassword(account.Auth, password) {
		q.Error(6)
		return
	}
	if !checkAttemptLimits(ctx, s, q, account.AccountID, ip, 7, 9) {
		return
	}

	banished, ok := s.IsAccountBanished(ctx, account.AccountID)
	if !ok {
		return
	}
	if banished {
		q.Error(10)
		return
	}
	namelock, ok := s.GetNamelockStatus(ctx, character.CharacterID)
	if !ok {
		return
	}
	if namelock.Active() {
		q.Error(11)
		return
	}
	banished, ok = s.IsIPBanished(ctx, ip)
	if !ok {
		return
	}
	if banished {
		q.Error(12)
		return
	}

	multiclient, ok := s.HasRight(ctx, character.CharacterID, "ALLOW_MULTICLIENT")
	if !ok {
		return
	}
	if !multiclient {
		online, ok := s.GetAccountOnlineCharacters(ctx, account.AccountID)
		if !ok {
			return
		}
		if online > 0 {
			// The only online character the account may have is this one,
			// reconnecting after a dropped session.
			reconnecting, ok := s.IsCharacterOnline(ctx, character.CharacterID)
			if !ok {
				return
			}
			if !reconnecting {
				q.Error(13)
				return
			}
		}
	}

	if gamemasterRequired {
		gamemaster, ok := s.HasRight(ctx, character.CharacterID, "GAMEMASTER_OUTFIT")
		if !ok {
			return
		}
		if !gamemaster {
			q.Error(14)
			return
		}
	}

	buddies, ok := s.GetBuddies(ctx, q.WorldID(), account.AccountID)
	if !ok {
		return
	}
	rights, ok := s.GetCharacterRights(ctx, character.CharacterID)
	if !ok {
		return
	}

	activated := false
	if account.PremiumDays == 0 && account.PendingPremiumDays > 0 {
		if !s.ActivatePendingPremiumDays(ctx, account.AccountID) {
			return
		}
		account.PremiumDays += account.PendingPremiumDays
		account.PendingPremiumDays = 0
		activated = true
	}
	if account.PremiumDays > 0 {
		rights = append(rights, "PREMIUM_ACCOUNT")
	}

	if !s.IncrementIsOnline(ctx, q.WorldID(), character.CharacterID) {
		return
	}
	if !tx.Commit(ctx) {
		return
	}

	w := q.Begin(protocol.StatusOK)
	w.Write32(character.CharacterID)
	w.WriteString(character.Name)
	w.Write8(character.Sex)
	w.WriteString(character.Guild)
	w.WriteString(character.Rank)
	w.WriteString(character.Title)

	n := capCount(len(buddies), math.MaxUint8)
	w.Write8(uint8(n))
	for _, b := range buddies[:n] {
		w.Write32(b.CharacterID)
		w.WriteString(b.Name)
	}

	n = capCount(len(rights), math.MaxUint8)
	w.Write8(uint8(n))
	for _, right := range rights[:n] {
		w.WriteString(right)
	}

	w.WriteBool(activated)
	q.Finish()
}

func (r *Registry) logoutGame(ctx context.Context, s *database.Session, q *query.Query) {
	req := q.Request()
	characterID := req.Read32()
	level := req.Read16()
	profession := req.ReadString(30)
	residence := req.ReadString(30)
	lastLogin := req.Read32()
	tutorActivities := req.Read16()
	if req.Overflowed() {
		q.Failed()
		return
	}

	if !s.LogoutCharacter(ctx, q.WorldID(), characterID,
		level, profession, residence, lastLogin, tutorActivities) {
		return
	}
	q.Ok()
}

// checkAttemptLimits rejects logins once the account or the address has
// accumulated too many recent failures. It reports false when the query is
// settled, either by a refusal or by leaving it Pending after a lookup
// failure.
func checkAttemptLimits(ctx context.Context, s *database.Session, q *query.Query,
	accountID uint32, ip uint32, accountCode, addressCode uint8) bool {
	attempts, ok := s.GetAccountFailedLoginAttempts(ctx, accountID, accountAttemptWindow)
	if !ok {
		return false
	}
	if attempts > accountAttemptLimit {
		q.Error(accountCode)
		return false
	}
	attempts, ok = s.GetIPFailedLoginAttempts(ctx, ip, addressAttemptWindow)
	if !ok {
		return false
	}
	if attempts > addressAttemptLimit {
		q.Error(addressCode)
		return false
	}
	return true
}

// auditLoginAttempt records the attempt outside the login transaction so a
// rollback cannot erase it. The outcome is already settled, so an insert
// failure deliberately does not change it.
func auditLoginAttempt(ctx context.Context, s *database.Session, q *query.Query,
	accountID uint32, ip uint32) {
	if st := q.Status(); st != protocol.StatusPending {
		s.InsertLoginAttempt(ctx, accountID, ip, st != protocol.StatusOK)
	}
}
