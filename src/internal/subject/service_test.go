package subject

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"qr-attendance-svc/src/internal/attendance"
	"qr-attendance-svc/src/internal/models"
	"qr-attendance-svc/src/internal/notifier"
	"qr-attendance-svc/src/internal/session"
	"qr-attendance-svc/src/internal/storage/sqlite"
	"qr-attendance-svc/src/internal/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	service   Service
	lifecycle session.Lifecycle
	admission attendance.Admission
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "subjects.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	hub := notifier.NewHub(16)
	lifecycle := session.NewLifecycle(db.Sessions(), token.NewGenerator(), time.Hour)
	t.Cleanup(lifecycle.Close)

	return &fixture{
		service:   NewService(db.Subjects(), lifecycle, attendance.NewLedger(db.Attendance(), hub)),
		lifecycle: lifecycle,
		admission: attendance.NewAdmission(db.Sessions(), db.Attendance()),
	}
}

func calculus() *models.CreateSubjectRequest {
	return &models.CreateSubjectRequest{Name: "Calculus I", CRNNumber: "40123", DayTime: "Mon/Wed 9:00"}
}

func TestCreateAndList(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	created, err := f.service.Create(ctx, "teacher-1", &models.CreateSubjectRequest{
		Name: "  Calculus I ", CRNNumber: "40123", DayTime: "Mon/Wed 9:00",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Calculus I", created.Name)

	_, err = f.service.Create(ctx, "teacher-2", calculus())
	require.NoError(t, err)

	mine, err := f.service.ListByTeacher(ctx, "teacher-1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, created.ID, mine[0].ID)

	got, err := f.service.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "40123", got.CRNNumber)
}

func TestCreateRejectsBlankFields(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Create(context.Background(), "teacher-1", &models.CreateSubjectRequest{
		Name: "   ", CRNNumber: "40123", DayTime: "Mon",
	})
	assert.ErrorIs(t, err, models.ErrInvalidParams)
}

func TestStartSessionOwnership(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	subject, err := f.service.Create(ctx, "teacher-1", calculus())
	require.NoError(t, err)

	_, err = f.service.StartSession(ctx, "teacher-2", subject.ID)
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = f.service.StartSession(ctx, "teacher-1", "missing")
	assert.ErrorIs(t, err, models.ErrSubjectNotFound)

	s, err := f.service.StartSession(ctx, "teacher-1", subject.ID)
	require.NoError(t, err)
	assert.Equal(t, subject.ID, s.SubjectID)
	assert.Equal(t, "teacher-1", s.TeacherID)

	_, err = f.service.StartSession(ctx, "teacher-1", subject.ID)
	assert.ErrorIs(t, err, models.ErrSessionAlreadyActive)
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	subject, err := f.service.Create(ctx, "teacher-1", calculus())
	require.NoError(t, err)

	first, err := f.service.StartSession(ctx, "teacher-1", subject.ID)
	require.NoError(t, err)
	_, err = f.admission.Submit(ctx, models.Claim{
		SessionID: first.ID,
		Token:     first.CurrentToken,
		Student:   models.StudentKey{FirstName: "Ana", LastName: "Lee", CRN: "CRN123"},
	})
	require.NoError(t, err)
	_, err = f.lifecycle.Stop(ctx, first.ID)
	require.NoError(t, err)

	second, err := f.service.StartSession(ctx, "teacher-1", subject.ID)
	require.NoError(t, err)

	history, err := f.service.History(ctx, "teacher-1", subject.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.Equal(t, second.ID, history[0].Session.ID, "newest first")
	assert.Equal(t, 0, history[0].Total)
	assert.Equal(t, first.ID, history[1].Session.ID)
	assert.Equal(t, models.SessionStopped, history[1].Session.Status)
	require.Equal(t, 1, history[1].Total)
	assert.Equal(t, "Ana", history[1].Attendance[0].FirstName)

	_, err = f.service.History(ctx, "teacher-2", subject.ID)
	assert.ErrorIs(t, err, models.ErrForbidden)
}
