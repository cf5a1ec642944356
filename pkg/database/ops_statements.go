package database

import (
	"context"

	"github.com/openmmo/querymanager/internal/logger"
)

var isStatementReportedStmt = stmt{
	name: "IsStatementReported",
	text: "SELECT 1 FROM Statements" +
		" WHERE WorldID = ?1 AND Timestamp = ?2 AND StatementID = ?3",
}

// IsStatementReported reports whether the statement is already archived,
// meaning an earlier report covered it.
func (s *Session) IsStatementReported(ctx context.Context, worldID int, timestamp uint32, statementID uint32) (bool, bool) {
	return s.exists(ctx, isStatementReportedStmt, worldID,
		s.epoch(int64(timestamp)), statementID)
}

var insertStatementStmt = stmt{
	name: "InsertStatements",
	text: "INSERT OR IGNORE INTO Statements" +
		" (WorldID, Timestamp, StatementID, CharacterID, Channel, Text)" +
		" VALUES (?1, ?2, ?3, ?4, ?5, ?6)",
	postgres: "INSERT INTO Statements" +
		" (WorldID, Timestamp, StatementID, CharacterID, Channel, Text)" +
		" VALUES ($1, $2, $3, $4, $5, $6)" +
		" ON CONFLICT DO NOTHING",
}

// InsertStatements archives a batch of chat statements. Statements without
// an id are skipped; overlapping batches from repeated reports are merged
// by the primary key.
func (s *Session) InsertStatements(ctx context.Context, worldID int, statements []Statement) bool {
	for i := range statements {
		st := &statements[i]
		if st.StatementID == 0 {
			logger.WarnCtx(ctx, "Skipping statement without id",
				logger.CharacterID(st.CharacterID))
			continue
		}
		if _, ok := s.exec(ctx, insertStatementStmt, worldID,
			s.epoch(int64(st.Timestamp)), st.StatementID, st.CharacterID,
			st.Channel, st.Text); !ok {
			return false
		}
	}
	return true
}

var insertReportedStatementStmt = stmt{
	name: "InsertReportedStatement",
	text: "INSERT INTO ReportedStatements" +
		" (WorldID, Timestamp, StatementID, CharacterID, BanishmentID, ReporterID, Reason, Comment)" +
		" VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8)",
}

// InsertReportedStatement marks one archived statement as the subject of
// a report, linked to the banishment it produced when there is one.
func (s *Session) InsertReportedStatement(ctx context.Context, worldID int, st Statement, banishmentID, reporterID uint32, reason, comment string) bool {
	_, ok := s.exec(ctx, insertReportedStatementStmt, worldID,
		s.epoch(int64(st.Timestamp)), st.StatementID, st.CharacterID,
		banishmentID, reporterID, reason, comment)
	return ok
}
