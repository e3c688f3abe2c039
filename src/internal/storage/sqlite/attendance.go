package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"qr-attendance-svc/src/internal/models"
)

// AttendanceStore is the append-only attendance ledger.
type AttendanceStore struct {
	db *sql.DB
}

// Append inserts record only while its session is active and still carries
// record.TokenUsed as the current token. The check and the insert are one
// statement, so a rotation or stop that commits first always wins. The
// (session, first name, last name, crn) constraint turns a concurrent
// duplicate into ErrDuplicateSubmission.
func (s *AttendanceStore) Append(ctx context.Context, record *models.AttendanceRecord) error {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO attendance (id, session_id, first_name, last_name, crn, token_used, submitted_at)
SELECT ?, id, ?, ?, ?, current_token, ?
FROM sessions
WHERE id = ? AND status = 'active' AND current_token = ?`,
		record.ID,
		record.FirstName,
		record.LastName,
		record.CRN,
		toNanos(record.SubmittedAt),
		record.SessionID,
		record.TokenUsed,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrDuplicateSubmission
		}
		return persistenceError("insert attendance", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return persistenceError("insert attendance", err)
	}
	if n == 0 {
		return s.rejection(ctx, record.SessionID)
	}
	return nil
}

// rejection explains why a conditional insert matched no session row.
func (s *AttendanceStore) rejection(ctx context.Context, sessionID string) error {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM sessions WHERE id = ?`, sessionID).Scan(&status)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return models.ErrSessionNotFound
	case err != nil:
		return persistenceError("get session", err)
	case models.SessionStatus(status) != models.SessionActive:
		return models.ErrSessionClosed
	}
	return models.ErrTokenExpiredOrInvalid
}

func (s *AttendanceStore) ListBySession(ctx context.Context, sessionID string) ([]*models.AttendanceRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, session_id, first_name, last_name, crn, token_used, submitted_at
FROM attendance
WHERE session_id = ?
ORDER BY submitted_at, rowid`, sessionID)
	if err != nil {
		return nil, persistenceError("list attendance", err)
	}
	defer rows.Close()

	records := make([]*models.AttendanceRecord, 0)
	for rows.Next() {
		var (
			record      models.AttendanceRecord
			submittedAt int64
		)
		if err := rows.Scan(
			&record.ID,
			&record.SessionID,
			&record.FirstName,
			&record.LastName,
			&record.CRN,
			&record.TokenUsed,
			&submittedAt,
		); err != nil {
			return nil, persistenceError("scan attendance", err)
		}
		record.SubmittedAt = fromNanos(submittedAt)
		records = append(records, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError("iterate attendance", err)
	}
	return records, nil
}

func (s *AttendanceStore) CountBySession(ctx context.Context, sessionID string) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attendance WHERE session_id = ?`, sessionID).Scan(&count); err != nil {
		return 0, persistenceError("count attendance", err)
	}
	return count, nil
}
