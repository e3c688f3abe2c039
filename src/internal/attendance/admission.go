package attendance

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"qr-attendance-svc/src/internal/models"
	"qr-attendance-svc/src/internal/notifier"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SessionReader reads the authoritative session state. Admission never goes
// through a cache.
type SessionReader interface {
	GetByID(ctx context.Context, sessionID string) (*models.Session, error)
}

// Admission validates attendance claims and appends accepted ones to the
// ledger. Checks run in order: session exists, session active, token current,
// student not yet recorded. The first failing check is returned.
type Admission interface {
	Check(ctx context.Context, sessionID, token string) (*models.Session, error)
	Submit(ctx context.Context, claim models.Claim) (*models.AttendanceRecord, error)
}

type AdmissionOption func(*admission)

func WithAdmissionClock(now func() time.Time) AdmissionOption {
	return func(a *admission) { a.now = now }
}

func WithAdmissionNotifier(n notifier.Notifier) AdmissionOption {
	return func(a *admission) { a.events = n }
}

type admission struct {
	sessions SessionReader
	records  Repository
	events   notifier.Notifier
	now      func() time.Time
}

func NewAdmission(sessions SessionReader, records Repository, opts ...AdmissionOption) Admission {
	a := &admission{
		sessions: sessions,
		records:  records,
		events:   notifier.Nop,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Check resolves the session and verifies token against its current value
// without recording anything.
func (a *admission) Check(ctx context.Context, sessionID, token string) (*models.Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	token = strings.TrimSpace(token)
	if sessionID == "" {
		return nil, models.ErrSessionNotFound
	}

	session, err := a.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsActive() {
		return nil, models.ErrSessionClosed
	}
	if token == "" || subtle.ConstantTimeCompare([]byte(session.CurrentToken), []byte(token)) != 1 {
		return nil, models.ErrTokenExpiredOrInvalid
	}
	return session, nil
}

func (a *admission) Submit(ctx context.Context, claim models.Claim) (*models.AttendanceRecord, error) {
	student := claim.Student.Normalize()
	if err := student.Validate(); err != nil {
		return nil, err
	}

	session, err := a.Check(ctx, claim.SessionID, claim.Token)
	if err != nil {
		a.logRejection(claim, err)
		return nil, err
	}

	record := &models.AttendanceRecord{
		StudentKey:  student,
		ID:          uuid.NewString(),
		SessionID:   session.ID,
		TokenUsed:   session.CurrentToken,
		SubmittedAt: a.now().UTC(),
	}
	if err := a.records.Append(ctx, record); err != nil {
		if rejected(err) {
			a.logRejection(claim, err)
			return nil, err
		}
		return nil, fmt.Errorf("append attendance: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"session_id": record.SessionID,
		"record_id":  record.ID,
		"crn":        record.CRN,
	}).Info("Attendance recorded")

	if err := a.events.Notify(ctx, models.NewAttendanceEvent(record)); err != nil {
		logrus.WithError(err).WithField("session_id", record.SessionID).Warn("Failed to notify attendance observers")
	}
	return record, nil
}

// rejected reports whether the ledger refused a claim because the session moved
// on after Check, or because the student is already recorded.
func rejected(err error) bool {
	return errors.Is(err, models.ErrDuplicateSubmission) ||
		errors.Is(err, models.ErrSessionNotFound) ||
		errors.Is(err, models.ErrSessionClosed) ||
		errors.Is(err, models.ErrTokenExpiredOrInvalid)
}

func (a *admission) logRejection(claim models.Claim, err error) {
	logrus.WithFields(logrus.Fields{
		"session_id": claim.SessionID,
		"reason":     models.Reason(err),
	}).Debug("Attendance claim rejected")
}
