package subject

import (
	"context"
	"fmt"
	"strings"
	"time"

	"qr-attendance-svc/src/internal/attendance"
	"qr-attendance-svc/src/internal/models"
	"qr-attendance-svc/src/internal/session"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Service interface {
	Create(ctx context.Context, teacherID string, req *models.CreateSubjectRequest) (*models.Subject, error)
	GetByID(ctx context.Context, subjectID string) (*models.Subject, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]*models.Subject, error)
	StartSession(ctx context.Context, teacherID, subjectID string) (*models.Session, error)
	History(ctx context.Context, teacherID, subjectID string) ([]*models.SessionHistory, error)
}

type service struct {
	repo      Repository
	lifecycle session.Lifecycle
	ledger    attendance.Ledger
	now       func() time.Time
}

func NewService(repo Repository, lifecycle session.Lifecycle, ledger attendance.Ledger) Service {
	return &service{
		repo:      repo,
		lifecycle: lifecycle,
		ledger:    ledger,
		now:       time.Now,
	}
}

func (s *service) Create(ctx context.Context, teacherID string, req *models.CreateSubjectRequest) (*models.Subject, error) {
	subject := &models.Subject{
		ID:        uuid.NewString(),
		TeacherID: strings.TrimSpace(teacherID),
		Name:      strings.TrimSpace(req.Name),
		CRNNumber: strings.TrimSpace(req.CRNNumber),
		DayTime:   strings.TrimSpace(req.DayTime),
		CreatedAt: s.now().UTC(),
	}
	if subject.TeacherID == "" || subject.Name == "" || subject.CRNNumber == "" || subject.DayTime == "" {
		return nil, fmt.Errorf("%w: name, crn number and day/time are required", models.ErrInvalidParams)
	}

	if err := s.repo.Create(ctx, subject); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"subject_id": subject.ID,
		"teacher_id": subject.TeacherID,
	}).Info("Subject created")
	return subject, nil
}

func (s *service) GetByID(ctx context.Context, subjectID string) (*models.Subject, error) {
	return s.repo.GetByID(ctx, subjectID)
}

func (s *service) ListByTeacher(ctx context.Context, teacherID string) ([]*models.Subject, error) {
	return s.repo.ListByTeacher(ctx, teacherID)
}

// owned loads a subject and checks it belongs to teacherID.
func (s *service) owned(ctx context.Context, teacherID, subjectID string) (*models.Subject, error) {
	subject, err := s.repo.GetByID(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if teacherID == "" || subject.TeacherID != teacherID {
		return nil, models.ErrForbidden
	}
	return subject, nil
}

func (s *service) StartSession(ctx context.Context, teacherID, subjectID string) (*models.Session, error) {
	subject, err := s.owned(ctx, teacherID, subjectID)
	if err != nil {
		return nil, err
	}
	return s.lifecycle.Start(ctx, subject.ID, teacherID)
}

// History lists the subject's sessions newest first, each with its
// attendance in submission order.
func (s *service) History(ctx context.Context, teacherID, subjectID string) ([]*models.SessionHistory, error) {
	subject, err := s.owned(ctx, teacherID, subjectID)
	if err != nil {
		return nil, err
	}

	sessions, err := s.lifecycle.ListBySubject(ctx, subject.ID)
	if err != nil {
		return nil, err
	}

	history := make([]*models.SessionHistory, 0, len(sessions))
	for _, sess := range sessions {
		records, err := s.ledger.List(ctx, sess.ID)
		if err != nil {
			return nil, err
		}
		history = append(history, &models.SessionHistory{
			Session:    sess,
			Attendance: records,
			Total:      len(records),
		})
	}
	return history, nil
}
