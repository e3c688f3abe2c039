package attendance

import (
	"context"
	"os"
	"testing"
	"time"

	"qr-attendance-svc/src/clients"
	"qr-attendance-svc/src/internal/config"
	"qr-attendance-svc/src/internal/models"
	"qr-attendance-svc/src/internal/session"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestAttendanceIndexes(t *testing.T) {
	indexes := attendanceIndexes()
	require.Len(t, indexes, 2)

	unique := indexes[0]
	assert.Equal(t, bson.D{
		{Key: "session_id", Value: 1},
		{Key: "first_name", Value: 1},
		{Key: "last_name", Value: 1},
		{Key: "crn", Value: 1},
	}, unique.Keys)
	require.NotNil(t, unique.Options)
	assert.Equal(t, "unique_student_per_session", *unique.Options.Name)
	assert.True(t, *unique.Options.Unique)
}

func TestAdmissionGuard(t *testing.T) {
	assert.Equal(t, bson.M{
		"_id":           "s1",
		"status":        models.SessionActive,
		"current_token": "token-1",
	}, admissionGuard("s1", "token-1"))

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, bson.M{"$set": bson.M{"last_admission_at": at}}, admissionMark(at))
}

// newMongoStores connects to the replica set named by MONGODB_TEST_URL and
// drops its scratch database afterwards.
func newMongoStores(t *testing.T) (session.Repository, Repository) {
	t.Helper()
	url := os.Getenv("MONGODB_TEST_URL")
	if url == "" {
		t.Skip("MONGODB_TEST_URL not set")
	}

	cfg := &config.Database{
		Url:     url,
		DbName:  "qr_attendance_test_" + uuid.NewString()[:8],
		Timeout: 5,
	}
	db, err := clients.NewMongoDB(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx := context.Background()
		_ = db.Database.Drop(ctx)
		_ = db.Close(ctx)
	})

	ctx := context.Background()
	require.NoError(t, session.EnsureIndexes(ctx, db, "sessions"))
	require.NoError(t, EnsureIndexes(ctx, db, "attendance"))
	return session.NewSessionRepository(db, "sessions"), NewAttendanceRepository(db, "attendance", "sessions")
}

func TestMongoRepositories(t *testing.T) {
	sessions, records := newMongoStores(t)
	ctx := context.Background()
	at := time.Now().UTC().Truncate(time.Millisecond)

	s := &models.Session{
		ID:           "s1",
		SubjectID:    "math",
		TeacherID:    "teacher-1",
		CurrentToken: "token-0",
		Status:       models.SessionActive,
		StartedAt:    at,
		RotatedAt:    at,
	}
	require.NoError(t, sessions.Create(ctx, s))

	second := *s
	second.ID = "s2"
	assert.ErrorIs(t, sessions.Create(ctx, &second), models.ErrSessionAlreadyActive)

	record := func(id, first, tok string) *models.AttendanceRecord {
		return &models.AttendanceRecord{
			ID:          id,
			SessionID:   "s1",
			StudentKey:  models.StudentKey{FirstName: first, LastName: "Lee", CRN: "CRN123"},
			TokenUsed:   tok,
			SubmittedAt: at,
		}
	}

	require.NoError(t, records.Append(ctx, record("r1", "Ana", "token-0")))
	assert.ErrorIs(t, records.Append(ctx, record("r2", "Ana", "token-0")), models.ErrDuplicateSubmission)

	rotated, err := sessions.Rotate(ctx, "s1", "token-1", at.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(1), rotated.RotationCount)
	assert.ErrorIs(t, records.Append(ctx, record("r3", "Bo", "token-0")), models.ErrTokenExpiredOrInvalid)

	_, err = sessions.Stop(ctx, "s1", at.Add(2*time.Second))
	require.NoError(t, err)
	assert.ErrorIs(t, records.Append(ctx, record("r4", "Bo", "token-1")), models.ErrSessionClosed)

	_, err = sessions.Rotate(ctx, "s1", "token-2", at.Add(3*time.Second))
	assert.ErrorIs(t, err, models.ErrInvalidState)

	orphan := record("r5", "Cy", "token-0")
	orphan.SessionID = "missing"
	assert.ErrorIs(t, records.Append(ctx, orphan), models.ErrSessionNotFound)

	list, err := records.ListBySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Ana", list[0].FirstName)

	active, err := sessions.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}
