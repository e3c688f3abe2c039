package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"qr-attendance-svc/src/internal/models"
)

const sessionColumns = `id, subject_id, teacher_id, current_token, rotation_count, status, started_at, stopped_at, rotated_at`

// SessionStore persists sessions.
type SessionStore struct {
	db *sql.DB
}

func (s *SessionStore) Create(ctx context.Context, session *models.Session) error {
	var stoppedAt sql.NullInt64
	if session.StoppedAt != nil {
		stoppedAt = sql.NullInt64{Int64: toNanos(*session.StoppedAt), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO sessions (`+sessionColumns+`)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.SubjectID,
		session.TeacherID,
		session.CurrentToken,
		session.RotationCount,
		string(session.Status),
		toNanos(session.StartedAt),
		stoppedAt,
		toNanos(session.RotatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrSessionAlreadyActive
		}
		return persistenceError("insert session", err)
	}
	return nil
}

func (s *SessionStore) GetByID(ctx context.Context, sessionID string) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, sessionID)
	session, err := scanSession(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrSessionNotFound
		}
		return nil, persistenceError("get session", err)
	}
	return session, nil
}

func (s *SessionStore) Rotate(ctx context.Context, sessionID, token string, at time.Time) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `
UPDATE sessions
SET current_token = ?, rotation_count = rotation_count + 1, rotated_at = ?
WHERE id = ? AND status = 'active'
RETURNING `+sessionColumns,
		token, toNanos(at), sessionID,
	)
	session, err := scanSession(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.inactiveError(ctx, sessionID)
		}
		return nil, persistenceError("rotate session", err)
	}
	return session, nil
}

func (s *SessionStore) Stop(ctx context.Context, sessionID string, at time.Time) (*models.Session, error) {
	row := s.db.QueryRowContext(ctx, `
UPDATE sessions
SET status = 'stopped', stopped_at = ?
WHERE id = ? AND status = 'active'
RETURNING `+sessionColumns,
		toNanos(at), sessionID,
	)
	session, err := scanSession(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.inactiveError(ctx, sessionID)
		}
		return nil, persistenceError("stop session", err)
	}
	return session, nil
}

func (s *SessionStore) inactiveError(ctx context.Context, sessionID string) error {
	if _, err := s.GetByID(ctx, sessionID); err != nil {
		return err
	}
	return models.ErrInvalidState
}

func (s *SessionStore) ListBySubject(ctx context.Context, subjectID string) ([]*models.Session, error) {
	return s.list(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE subject_id = ? ORDER BY started_at DESC`, subjectID)
}

func (s *SessionStore) ListActive(ctx context.Context) ([]*models.Session, error) {
	return s.list(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE status = 'active' ORDER BY started_at`)
}

func (s *SessionStore) list(ctx context.Context, query string, args ...any) ([]*models.Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistenceError("list sessions", err)
	}
	defer rows.Close()

	sessions := make([]*models.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows.Scan)
		if err != nil {
			return nil, persistenceError("scan session", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError("iterate sessions", err)
	}
	return sessions, nil
}

func scanSession(scan func(dest ...any) error) (*models.Session, error) {
	var (
		session   models.Session
		status    string
		startedAt int64
		stoppedAt sql.NullInt64
		rotatedAt int64
	)
	if err := scan(
		&session.ID,
		&session.SubjectID,
		&session.TeacherID,
		&session.CurrentToken,
		&session.RotationCount,
		&status,
		&startedAt,
		&stoppedAt,
		&rotatedAt,
	); err != nil {
		return nil, err
	}

	session.Status = models.SessionStatus(status)
	session.StartedAt = fromNanos(startedAt)
	session.RotatedAt = fromNanos(rotatedAt)
	if stoppedAt.Valid {
		t := fromNanos(stoppedAt.Int64)
		session.StoppedAt = &t
	}
	return &session, nil
}
