package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"qr-attendance-svc/src/internal/models"
	"qr-attendance-svc/src/internal/notifier"
	"qr-attendance-svc/src/internal/token"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const rotationTimeout = 5 * time.Second

// Lifecycle owns the session state machine (active -> stopped) and the
// rotation timer of every active session.
type Lifecycle interface {
	Start(ctx context.Context, subjectID, teacherID string) (*models.Session, error)
	Rotate(ctx context.Context, sessionID string) (*models.Session, error)
	Stop(ctx context.Context, sessionID string) (*models.Session, error)
	Get(ctx context.Context, sessionID string) (*models.Session, error)
	ListBySubject(ctx context.Context, subjectID string) ([]*models.Session, error)
	NextRotationAt(sessionID string) (time.Time, bool)
	RotationInterval() time.Duration
	Resume(ctx context.Context) (int, error)
	Close()
}

// Snapshotter keeps a read-side copy of the current code for display. It is
// never consulted by admission.
type Snapshotter interface {
	CacheSession(ctx context.Context, session *models.Session) error
	DeleteSession(ctx context.Context, sessionID string) error
}

type Option func(*lifecycle)

func WithClock(now func() time.Time) Option {
	return func(l *lifecycle) { l.now = now }
}

func WithSnapshotter(snapshotter Snapshotter) Option {
	return func(l *lifecycle) { l.snapshots = snapshotter }
}

func WithNotifier(n notifier.Notifier) Option {
	return func(l *lifecycle) { l.events = n }
}

type lifecycle struct {
	repo      Repository
	tokens    token.Generator
	events    notifier.Notifier
	snapshots Snapshotter
	now       func() time.Time
	interval  time.Duration
	scheduler *scheduler

	locks sync.Map
}

// NewLifecycle builds a lifecycle rotating tokens every interval.
func NewLifecycle(repo Repository, tokens token.Generator, interval time.Duration, opts ...Option) Lifecycle {
	l := &lifecycle{
		repo:     repo,
		tokens:   tokens,
		events:   notifier.Nop,
		now:      time.Now,
		interval: interval,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.scheduler = newScheduler(interval, l.now, l.scheduledRotate)
	return l
}

func (l *lifecycle) lockFor(sessionID string) *sync.Mutex {
	mu, _ := l.locks.LoadOrStore(sessionID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// release drops the lock of a session that can no longer change. The store
// rejects writes to it, so a caller still holding the old mutex is harmless.
func (l *lifecycle) release(sessionID string) {
	l.locks.Delete(sessionID)
}

func (l *lifecycle) Start(ctx context.Context, subjectID, teacherID string) (*models.Session, error) {
	subjectID = strings.TrimSpace(subjectID)
	teacherID = strings.TrimSpace(teacherID)
	if subjectID == "" || teacherID == "" {
		return nil, fmt.Errorf("%w: subject id and teacher id are required", models.ErrInvalidParams)
	}

	initial, err := l.tokens.Generate()
	if err != nil {
		logrus.WithError(err).WithField("subject_id", subjectID).Error("Failed to generate initial token")
		return nil, err
	}

	now := l.now().UTC()
	session := &models.Session{
		ID:            uuid.NewString(),
		SubjectID:     subjectID,
		TeacherID:     teacherID,
		CurrentToken:  initial,
		RotationCount: 0,
		Status:        models.SessionActive,
		StartedAt:     now,
		RotatedAt:     now,
	}

	if err := l.repo.Create(ctx, session); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"subject_id": subjectID,
			"teacher_id": teacherID,
		}).Error("Failed to start session")
		return nil, err
	}

	l.scheduler.Schedule(session.ID)
	l.publish(ctx, models.EventSessionStarted, session)

	logrus.WithFields(logrus.Fields{
		"session_id": session.ID,
		"subject_id": subjectID,
		"teacher_id": teacherID,
		"interval":   l.interval.String(),
	}).Info("Session started")

	return session.Clone(), nil
}

// Rotate replaces the token now and restarts the cadence from this rotation.
func (l *lifecycle) Rotate(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := l.rotate(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	l.scheduler.Schedule(sessionID)
	return session, nil
}

func (l *lifecycle) scheduledRotate(sessionID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), rotationTimeout)
	defer cancel()

	_, err := l.rotate(ctx, sessionID)
	return err
}

func (l *lifecycle) rotate(ctx context.Context, sessionID string) (*models.Session, error) {
	mu := l.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	next, err := l.tokens.Generate()
	if err != nil {
		logrus.WithError(err).WithField("session_id", sessionID).Error("Failed to generate rotation token")
		return nil, err
	}

	session, err := l.repo.Rotate(ctx, sessionID, next, l.now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInvalidState):
			logrus.WithField("session_id", sessionID).Warn("Rotate called on a stopped session")
			l.release(sessionID)
		case errors.Is(err, models.ErrSessionNotFound):
			l.release(sessionID)
		}
		return nil, err
	}

	l.publish(ctx, models.EventSessionRotated, session)

	logrus.WithFields(logrus.Fields{
		"session_id":     sessionID,
		"rotation_count": session.RotationCount,
	}).Debug("Session token rotated")

	return session.Clone(), nil
}

// Stop is idempotent: stopping a stopped session returns the stored record.
func (l *lifecycle) Stop(ctx context.Context, sessionID string) (*models.Session, error) {
	mu := l.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	session, err := l.repo.Stop(ctx, sessionID, l.now().UTC())
	if errors.Is(err, models.ErrInvalidState) {
		l.scheduler.Cancel(sessionID)
		l.release(sessionID)
		return l.repo.GetByID(ctx, sessionID)
	}
	if errors.Is(err, models.ErrSessionNotFound) {
		l.release(sessionID)
		return nil, err
	}
	if err != nil {
		logrus.WithError(err).WithField("session_id", sessionID).Error("Failed to stop session")
		return nil, err
	}

	l.scheduler.Cancel(sessionID)
	l.release(sessionID)
	l.publish(ctx, models.EventSessionStopped, session)

	logrus.WithFields(logrus.Fields{
		"session_id":     sessionID,
		"rotation_count": session.RotationCount,
	}).Info("Session stopped")

	return session.Clone(), nil
}

func (l *lifecycle) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	return l.repo.GetByID(ctx, sessionID)
}

func (l *lifecycle) ListBySubject(ctx context.Context, subjectID string) ([]*models.Session, error) {
	return l.repo.ListBySubject(ctx, subjectID)
}

func (l *lifecycle) NextRotationAt(sessionID string) (time.Time, bool) {
	return l.scheduler.NextRotation(sessionID)
}

func (l *lifecycle) RotationInterval() time.Duration {
	return l.interval
}

// Resume re-arms rotation for sessions left active by a previous process.
func (l *lifecycle) Resume(ctx context.Context) (int, error) {
	sessions, err := l.repo.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	for _, session := range sessions {
		l.scheduler.Schedule(session.ID)
		l.snapshot(ctx, session)
	}

	logrus.WithField("sessions", len(sessions)).Info("Resumed rotation for active sessions")
	return len(sessions), nil
}

func (l *lifecycle) Close() {
	l.scheduler.Close()
}

func (l *lifecycle) publish(ctx context.Context, eventType string, session *models.Session) {
	if eventType == models.EventSessionStopped {
		if l.snapshots != nil {
			if err := l.snapshots.DeleteSession(ctx, session.ID); err != nil {
				logrus.WithError(err).WithField("session_id", session.ID).Warn("Failed to drop session snapshot")
			}
		}
	} else {
		l.snapshot(ctx, session)
	}

	if err := l.events.Notify(ctx, models.NewSessionEvent(eventType, session, l.now().UTC())); err != nil {
		logrus.WithError(err).WithField("session_id", session.ID).Warn("Failed to publish session event")
	}
}

func (l *lifecycle) snapshot(ctx context.Context, session *models.Session) {
	if l.snapshots == nil {
		return
	}
	if err := l.snapshots.CacheSession(ctx, session); err != nil {
		logrus.WithError(err).WithField("session_id", session.ID).Warn("Failed to cache session snapshot")
	}
}
