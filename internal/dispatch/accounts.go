package dispatch

import (
	"context"
	"math"
	"strings"

	"github.com/openmmo/querymanager/internal/auth"
	"github.com/openmmo/querymanager/internal/protocol"
	"github.com/openmmo/querymanager/internal/query"
	"github.com/openmmo/querymanager/pkg/database"
)

// validAccountNumber rejects zero and anything that does not fit a signed
// 32-bit database key. The website is expected to validate inputs before
// submitting them, so violations fail without a specific error code.
func validAccountNumber(accountID uint32) bool {
	return accountID != 0 && accountID <= math.MaxInt32
}

func (r *Registry) createAccount(ctx context.Context, s *database.Session, q *query.Query) {
	req := q.Request()
	accountID := req.Read32()
	email := req.ReadString(100)
	password := req.ReadString(30)
	if req.Overflowed() {
		q.Failed()
		return
	}

	if !validAccountNumber(accountID) || email == "" || password == "" {
		q.Failed()
		return
	}

	blob, err := auth.GenerateBlob(password)
	if err != nil {
		q.Failed()
		return
	}

	tx, ok := s.Begin(ctx)
	if !ok {
		return
	}
	defer tx.Close(ctx)

	exists, ok := s.AccountNumberExists(ctx, accountID)
	if !ok {
		return
	}
	if exists {
		q.Error(1)
		return
	}
	exists, ok = s.AccountEmailExists(ctx, email)
	if !ok {
		return
	}
	if exists {
		q.Error(2)
		return
	}

	if !s.CreateAccount(ctx, accountID, email, blob) {
		return
	}
	if !tx.Commit(ctx) {
		return
	}
	q.Ok()
}

func (r *Registry) createCharacter(ctx context.Context, s *database.Session, q *query.Query) {
	req := q.Request()
	worldName := req.ReadString(30)
	accountID := req.Read32()
	characterName := req.ReadString(30)
	sex := req.Read8()
	if req.Overflowed() {
		q.Failed()
		return
	}

	if !validAccountNumber(accountID) || (sex != 1 && sex != 2) ||
		worldName == "" || characterName == "" {
		q.Failed()
		return
	}

	tx, ok := s.Begin(ctx)
	if !ok {
		return
	}
	defer tx.Close(ctx)

	worldID, ok := s.GetWorldID(ctx, worldName)
	if !ok {
		return
	}
	if worldID == 0 {
		q.Error(1)
		return
	}

	exists, ok := s.AccountNumberExists(ctx, accountID)
	if !ok {
		return
	}
	if !exists {
		q.Error(2)
		return
	}

	exists, ok = s.CharacterNameExists(ctx, characterName)
	if !ok {
		return
	}
	if exists {
		q.Error(3)
		return
	}

	if !s.CreateCharacter(ctx, worldID, accountID, characterName, sex) {
		return
	}
	if !tx.Commit(ctx) {
		return
	}
	q.Ok()
}

func (r *Registry) getAccountSummary(ctx context.Context, s *database.Session, q *query.Query) {
	req := q.Request()
	accountID := req.Read32()
	if req.Overflowed() {
		q.Failed()
		return
	}

	if !validAccountNumber(accountID) {
		q.Failed()
		return
	}

	account, ok := s.GetAccountData(ctx, accountID)
	if !ok {
		return
	}
	if account.AccountID == 0 || account.AccountID != accountID {
		q.Failed()
		return
	}

	characters, ok := s.GetCharacterSummaries(ctx, accountID)
	if !ok {
		return
	}

	w := q.Begin(protocol.StatusOK)
	w.WriteString(account.Email)
	w.Write16(uint16(account.PremiumDays))
	w.Write16(uint16(account.PendingPremiumDays))
	w.WriteBool(account.Deleted)
	n := capCount(len(characters), math.MaxUint8)
	w.Write8(uint8(n))
	for _, c := range characters[:n] {
		w.WriteString(c.Name)
		w.WriteString(c.World)
		w.Write16(c.Level)
		w.WriteString(c.Profession)
		w.WriteBool(c.Online)
		w.WriteBool(c.Deleted)
	}
	q.Finish()
}

func (r *Registry) getCharacterProfile(ctx context.Context, s *database.Session, q *query.Query) {
	req := q.Request()
	characterName := req.ReadString(30)
	if req.Overflowed() {
		q.Failed()
		return
	}

	if characterName == "" {
		q.Failed()
		return
	}

	profile, ok := s.GetCharacterProfile(ctx, characterName)
	if !ok {
		return
	}
	// A zero profile also lands here, reporting unknown characters and
	// hidden ones with the same code.
	if !strings.EqualFold(profile.Name, characterName) {
		q.Error(1)
		return
	}

	w := q.Begin(protocol.StatusOK)
	w.WriteString(profile.Name)
	w.WriteString(profile.World)
	w.Write8(profile.Sex)
	w.WriteString(profile.Guild)
	w.WriteString(profile.Rank)
	w.WriteString(profile.Title)
	w.Write16(profile.Level)
	w.WriteString(profile.Profession)
	w.WriteString(profile.Residence)
	w.Write32(profile.LastLogin)
	w.Write16(uint16(profile.PremiumDays))
	w.WriteBool(profile.Online)
	w.WriteBool(profile.Deleted)
	q.Finish()
}
