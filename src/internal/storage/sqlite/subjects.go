package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"qr-attendance-svc/src/internal/models"
)

type SubjectStore struct {
	db *sql.DB
}

func (s *SubjectStore) Create(ctx context.Context, subject *models.Subject) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO subjects (id, teacher_id, name, crn_number, day_time, created_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		subject.ID,
		subject.TeacherID,
		subject.Name,
		subject.CRNNumber,
		subject.DayTime,
		toNanos(subject.CreatedAt),
	)
	if err != nil {
		return persistenceError("insert subject", err)
	}
	return nil
}

func (s *SubjectStore) GetByID(ctx context.Context, subjectID string) (*models.Subject, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, teacher_id, name, crn_number, day_time, created_at
FROM subjects WHERE id = ?`, subjectID)
	subject, err := scanSubject(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrSubjectNotFound
		}
		return nil, persistenceError("get subject", err)
	}
	return subject, nil
}

func (s *SubjectStore) ListByTeacher(ctx context.Context, teacherID string) ([]*models.Subject, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, teacher_id, name, crn_number, day_time, created_at
FROM subjects WHERE teacher_id = ?
ORDER BY created_at DESC`, teacherID)
	if err != nil {
		return nil, persistenceError("list subjects", err)
	}
	defer rows.Close()

	subjects := make([]*models.Subject, 0)
	for rows.Next() {
		subject, err := scanSubject(rows.Scan)
		if err != nil {
			return nil, persistenceError("scan subject", err)
		}
		subjects = append(subjects, subject)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceError("iterate subjects", err)
	}
	return subjects, nil
}

func scanSubject(scan func(dest ...any) error) (*models.Subject, error) {
	var (
		subject   models.Subject
		createdAt int64
	)
	if err := scan(
		&subject.ID,
		&subject.TeacherID,
		&subject.Name,
		&subject.CRNNumber,
		&subject.DayTime,
		&createdAt,
	); err != nil {
		return nil, err
	}
	subject.CreatedAt = fromNanos(createdAt)
	return &subject, nil
}
