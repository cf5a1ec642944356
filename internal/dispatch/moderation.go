package dispatch

import (
	"context"

	"github.com/openmmo/querymanager/internal/logger"
	"github.com/openmmo/querymanager/internal/protocol"
	"github.com/openmmo/querymanager/internal/query"
	"github.com/openmmo/querymanager/pkg/database"
)

// compoundBanishment escalates a term from the account's history. An
// account past its final warning is banished permanently (zero days); a
// repeat offender or an explicit final warning raises the term to thirty
// days, doubling on each further offense.
func compoundBanishment(status database.BanishmentStatus, days int, finalWarning bool) (int, bool) {
	if status.FinalWarning {
		return 0, false // permanent
	}
	if status.TimesBanished > 5 || finalWarning {
		finalWarning = true
		if days < 30 {
			days = 30
		} else {
			days *= 2
		}
	}
	return days, finalWarning
}

// resolveTarget looks up the character a moderation request names and
// checks the immunity right. Holding the right shields the character from
// the action. It reports false when the query is settled: error 1 for an
// unknown name, error 2 for an immune target, Pending on lookup failure.
func resolveTarget(ctx context.Context, s *database.Session, q *query.Query,
	name, immunityRight string) (uint32, bool) {
	characterID, ok := s.GetCharacterID(ctx, q.WorldID(), name)
	if !ok {
		return 0, false
	}
	if characterID == 0 {
		q.Error(1)
		return 0, false
	}
	immune, ok := s.HasRight(ctx, characterID, immunityRight)
	if !ok {
		return 0, false
	}
	if immune {
		q.Error(2)
		return 0, false
	}
	return characterID, true
}

func (r *Registry) setNamelock(ctx context.Context, s *database.Session, q *query.Query) {
	req := q.Request()
	gamemasterID := req.Read32()
	characterName := req.ReadString(30)
	ipString := req.ReadString(16)
	reason := req.ReadString(200)
	comment := req.ReadString(200)
	if req.Overflowed() {
		q.Failed()
		return
	}

	ip, ok := parseOptionalIP(ipString)
	if !ok {
		q.Failed()
		return
	}

	tx, ok := s.Begin(ctx)
	if !ok {
		return
	}
	defer tx.Close(ctx)

	characterID, ok := resolveTarget(ctx, s, q, characterName, "NAMELOCK")
	if !ok {
		return
	}

	status, ok := s.GetNamelockStatus(ctx, characterID)
	if !ok {
		return
	}
	if status.Namelocked {
		if status.Approved {
			q.Error(4)
		} else {
			q.Error(3)
		}
		return
	}

	if !s.InsertNamelock(ctx, characterID, ip, gamemasterID, reason, comment) {
		return
	}
	if !tx.Commit(ctx) {
		return
	}
	q.Ok()
}

func (r *Registry) banishAccount(ctx context.Context, s *database.Session, q *query.Query) {
	req := q.Request()
	gamemasterID := req.Read32()
	characterName := req.ReadString(30)
	ipString := req.ReadString(16)
	reason := req.ReadString(200)
	comment := req.ReadString(200)
	finalWarning := req.ReadBool()
	if req.Overflowed() {
		q.Failed()
		return
	}

	ip, ok := parseOptionalIP(ipString)
	if !ok {
		q.Failed()
		return
	}

	tx, ok := s.Begin(ctx)
	if !ok {
		return
	}
	defer tx.Close(ctx)

	characterID, ok := resolveTarget(ctx, s, q, characterName, "BANISHMENT")
	if !ok {
		return
	}

	status, ok := s.GetBanishmentStatus(ctx, characterID)
	if !ok {
		return
	}
	if status.Banished {
		q.Error(3)
		return
	}

	days, finalWarning := compoundBanishment(status, 7, finalWarning)
	banishmentID, ok := s.InsertBanishment(ctx, characterID, ip, gamemasterID,
		reason, comment, finalWarning, int64(days)*86400)
	if !ok {
		return
	}
	if !tx.Commit(ctx) {
		return
	}

	w := q.Begin(protocol.StatusOK)
	w.Write32(banishmentID)
	if days > 0 {
		w.Write8(uint8(days))
	} else {
		w.Write8(0xFF) // permanent
	}
	w.WriteBool(finalWarning)
	q.Finish()
}

func (r *Registry) setNotation(ctx context.Context, s *database.Session, q *query.Query) {
	req := q.Request()
	gamemasterID := req.Read32()
	characterName := req.ReadString(30)
	ipString := req.ReadString(16)
	reason := req.ReadString(200)
	comment := req.ReadString(200)
	if req.Overflowed() {
		q.Failed()
		return
	}

	ip, ok := parseOptionalIP(ipString)
	if !ok {
		q.Failed()
		return
	}

	tx, ok := s.Begin(ctx)
	if !ok {
		return
	}
	defer tx.Close(ctx)

	characterID, ok := resolveTarget(ctx, s, q, characterName, "NOTATION")
	if !ok {
		return
	}

	notations, ok := s.GetNotationCount(ctx, characterID)
	if !ok {
		return
	}

	var banishmentID uint32
	if notations >= 5 {
		status, ok := s.GetBanishmentStatus(ctx, characterID)
		if !ok {
			return
		}
		days, finalWarning := compoundBanishment(status, 7, false)
		// The escalation term is recorded as days, not seconds.
		banishmentID, ok = s.InsertBanishment(ctx, characterID, ip, 0,
			"Excessive Notations", "", finalWarning, int64(days))
		if !ok {
			return
		}
	}

	if !s.InsertNotation(ctx, characterID, ip, gamemasterID, reason, comment) {
		return
	}
	if !tx.Commit(ctx) {
		return
	}

	w := q.Begin(protocol.StatusOK)
	w.Write32(banishmentID)
	q.Finish()
}

func (r *Registry) reportStatement(ctx context.Context, s *database.Session, q *query.Query) {
	req := q.Request()
	reporterID := req.Read32()
	characterName := req.ReadString(30)
	reason := req.ReadString(200)
	comment := req.ReadString(200)
	banishmentID := req.Read32()
	statementID := req.Read32()
	count := int(req.Read16())

	if statementID == 0 {
		logger.ErrorCtx(ctx, "Missing statement id")
		q.Failed()
		return
	}
	if count == 0 {
		logger.ErrorCtx(ctx, "Missing statement context")
		q.Failed()
		return
	}

	statements := make([]database.Statement, count)
	reported := -1
	for i := range statements {
		statements[i].StatementID = req.Read32()
		statements[i].Timestamp = req.Read32()
		statements[i].CharacterID = req.Read32()
		statements[i].Channel = req.ReadString(30)
		statements[i].Text = req.ReadString(256)

		if statements[i].StatementID == statementID {
			if reported >= 0 {
				logger.WarnCtx(ctx, "Reported statement appears multiple times",
					logger.WorldID(q.WorldID()),
					logger.Timestamp(statements[i].Timestamp),
					logger.StatementID(statements[i].StatementID))
			}
			reported = i
		}
	}
	if req.Overflowed() {
		q.Failed()
		return
	}
	if reported < 0 {
		logger.ErrorCtx(ctx, "Missing reported statement")
		q.Failed()
		return
	}

	tx, ok := s.Begin(ctx)
	if !ok {
		return
	}
	defer tx.Close(ctx)

	characterID, ok := s.GetCharacterID(ctx, q.WorldID(), characterName)
	if !ok {
		return
	}
	if characterID == 0 {
		q.Error(1)
		return
	}
	if statements[reported].CharacterID != characterID {
		logger.ErrorCtx(ctx, "Reported statement character mismatch",
			logger.Character(characterName),
			logger.StatementID(statementID))
		q.Failed()
		return
	}

	isReported, ok := s.IsStatementReported(ctx, q.WorldID(),
		statements[reported].Timestamp, statements[reported].StatementID)
	if !ok {
		return
	}
	if isReported {
		q.Error(2)
		return
	}

	if !s.InsertStatements(ctx, q.WorldID(), statements) {
		return
	}
	if !s.InsertReportedStatement(ctx, q.WorldID(), statements[reported],
		banishmentID, reporterID, reason, comment) {
		return
	}
	if !tx.Commit(ctx) {
		return
	}
	q.Ok()
}

func (r *Registry) banishIPAddress(ctx context.Context, s *database.Session, q *query.Query) {
	req := q.Request()
	gamemasterID := req.Read16() // 16-bit on the wire, unlike the other moderation queries
	characterName := req.ReadString(30)
	ipString := req.ReadString(16)
	reason := req.ReadString(200)
	comment := req.ReadString(200)
	if req.Overflowed() {
		q.Failed()
		return
	}

	ip, ok := database.ParseIP(ipString)
	if !ok {
		q.Failed()
		return
	}

	tx, ok := s.Begin(ctx)
	if !ok {
		return
	}
	defer tx.Close(ctx)

	characterID, ok := resolveTarget(ctx, s, q, characterName, "IP_BANISHMENT")
	if !ok {
		return
	}

	if !s.InsertIPBanishment(ctx, characterID, ip, uint32(gamemasterID),
		reason, comment, 3*86400) {
		return
	}
	if !tx.Commit(ctx) {
		return
	}
	q.Ok()
}

func (r *Registry) excludeFromAuctions(ctx context.Context, s *database.Session, q *query.Query) {
	req := q.Request()
	characterID := req.Read32()
	banish := req.ReadBool()
	if req.Overflowed() {
		q.Failed()
		return
	}

	tx, ok := s.Begin(ctx)
	if !ok {
		return
	}
	defer tx.Close(ctx)

	var banishmentID uint32
	if banish {
		status, ok := s.GetBanishmentStatus(ctx, characterID)
		if !ok {
			return
		}
		days, finalWarning := compoundBanishment(status, 7, false)
		banishmentID, ok = s.InsertBanishment(ctx, characterID, 0, 0,
			"Spoiling Auction", "", finalWarning, int64(days)*86400)
		if !ok {
			return
		}
	}

	if !s.ExcludeFromAuctions(ctx, q.WorldID(), characterID, 7*86400, banishmentID) {
		return
	}
	if !tx.Commit(ctx) {
		return
	}
	q.Ok()
}
