package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"qr-attendance-svc/src/internal/models"
	"qr-attendance-svc/src/internal/notifier"
	"qr-attendance-svc/src/internal/storage/sqlite"
	"qr-attendance-svc/src/internal/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// long enough that scheduled rotations never interfere with a test
const idleInterval = time.Hour

func newStore(t *testing.T) Repository {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db.Sessions()
}

func newTestLifecycle(t *testing.T, repo Repository, interval time.Duration, opts ...Option) Lifecycle {
	t.Helper()
	l := NewLifecycle(repo, token.NewGenerator(), interval, opts...)
	t.Cleanup(l.Close)
	return l
}

type eventLog struct {
	mu     sync.Mutex
	events []models.Event
}

func (e *eventLog) Notify(_ context.Context, event models.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

func (e *eventLog) types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Type)
	}
	return out
}

type snapshotLog struct {
	mu      sync.Mutex
	cached  map[string]string
	deleted []string
}

func (s *snapshotLog) CacheSession(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached == nil {
		s.cached = make(map[string]string)
	}
	s.cached[session.ID] = session.CurrentToken
	return nil
}

func (s *snapshotLog) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cached, sessionID)
	s.deleted = append(s.deleted, sessionID)
	return nil
}

func TestStartCreatesActiveSession(t *testing.T) {
	ctx := context.Background()
	fixed := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	l := newTestLifecycle(t, newStore(t), idleInterval, WithClock(func() time.Time { return fixed }))

	s, err := l.Start(ctx, "math", "teacher-1")
	require.NoError(t, err)

	assert.NotEmpty(t, s.ID)
	assert.Len(t, s.CurrentToken, token.Size*2)
	assert.Equal(t, int64(0), s.RotationCount)
	assert.Equal(t, models.SessionActive, s.Status)
	assert.True(t, s.StartedAt.Equal(fixed))
	assert.Nil(t, s.StoppedAt)

	next, ok := l.NextRotationAt(s.ID)
	require.True(t, ok)
	assert.True(t, next.Equal(fixed.Add(idleInterval)))
}

func TestStartValidatesInput(t *testing.T) {
	l := newTestLifecycle(t, newStore(t), idleInterval)
	_, err := l.Start(context.Background(), " ", "teacher-1")
	assert.ErrorIs(t, err, models.ErrInvalidParams)
}

func TestRotateCountsAndNeverRepeatsTokens(t *testing.T) {
	ctx := context.Background()
	l := newTestLifecycle(t, newStore(t), idleInterval)

	s, err := l.Start(ctx, "math", "teacher-1")
	require.NoError(t, err)

	seen := map[string]struct{}{s.CurrentToken: {}}
	const n = 25
	for i := 1; i <= n; i++ {
		s, err = l.Rotate(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(i), s.RotationCount)
		_, dup := seen[s.CurrentToken]
		require.False(t, dup, "token reused at rotation %d", i)
		seen[s.CurrentToken] = struct{}{}
	}

	stored, err := l.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(n), stored.RotationCount)
	assert.Equal(t, s.CurrentToken, stored.CurrentToken)
}

func TestStopFreezesToken(t *testing.T) {
	ctx := context.Background()
	l := newTestLifecycle(t, newStore(t), idleInterval)

	s, err := l.Start(ctx, "math", "teacher-1")
	require.NoError(t, err)
	s, err = l.Rotate(ctx, s.ID)
	require.NoError(t, err)

	stopped, err := l.Stop(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStopped, stopped.Status)
	require.NotNil(t, stopped.StoppedAt)

	_, ok := l.NextRotationAt(s.ID)
	assert.False(t, ok, "rotation timer cancelled")

	for i := 0; i < 3; i++ {
		_, err = l.Rotate(ctx, s.ID)
		assert.ErrorIs(t, err, models.ErrInvalidState)
	}

	again, err := l.Stop(ctx, s.ID)
	require.NoError(t, err, "stop is idempotent")
	assert.Equal(t, stopped.StoppedAt.UnixNano(), again.StoppedAt.UnixNano())
	assert.Equal(t, s.CurrentToken, again.CurrentToken)
	assert.Equal(t, int64(1), again.RotationCount)
}

func TestStopUnknownSession(t *testing.T) {
	l := newTestLifecycle(t, newStore(t), idleInterval)
	_, err := l.Stop(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)

	_, err = l.Rotate(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func heldLocks(l Lifecycle) int {
	n := 0
	l.(*lifecycle).locks.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func TestStoppedSessionsReleaseLocks(t *testing.T) {
	ctx := context.Background()
	l := newTestLifecycle(t, newStore(t), idleInterval)

	for i := 0; i < 5; i++ {
		s, err := l.Start(ctx, fmt.Sprintf("subject-%d", i), "teacher-1")
		require.NoError(t, err)
		_, err = l.Rotate(ctx, s.ID)
		require.NoError(t, err)
		_, err = l.Stop(ctx, s.ID)
		require.NoError(t, err)
		_, err = l.Rotate(ctx, s.ID)
		assert.ErrorIs(t, err, models.ErrInvalidState)
	}

	_, err := l.Rotate(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)

	assert.Zero(t, heldLocks(l))
}

func TestStartRejectsSecondActiveSessionForSubject(t *testing.T) {
	ctx := context.Background()
	l := newTestLifecycle(t, newStore(t), idleInterval)

	first, err := l.Start(ctx, "math", "teacher-1")
	require.NoError(t, err)

	_, err = l.Start(ctx, "math", "teacher-1")
	assert.ErrorIs(t, err, models.ErrSessionAlreadyActive)

	_, err = l.Stop(ctx, first.ID)
	require.NoError(t, err)
	_, err = l.Start(ctx, "math", "teacher-1")
	assert.NoError(t, err)
}

type failingRepo struct {
	Repository
}

func (failingRepo) Create(context.Context, *models.Session) error {
	return errors.Join(models.ErrPersistence, errors.New("disk full"))
}

func TestStartPersistenceFailure(t *testing.T) {
	l := newTestLifecycle(t, failingRepo{}, idleInterval)
	s, err := l.Start(context.Background(), "math", "teacher-1")
	assert.Nil(t, s)
	assert.ErrorIs(t, err, models.ErrPersistence)
}

type brokenEntropy struct{}

func (brokenEntropy) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestEntropyFailureAbortsStartAndRotate(t *testing.T) {
	ctx := context.Background()
	repo := newStore(t)

	l := NewLifecycle(repo, token.NewGeneratorWithSource(brokenEntropy{}), idleInterval)
	t.Cleanup(l.Close)
	_, err := l.Start(ctx, "math", "teacher-1")
	assert.ErrorIs(t, err, models.ErrEntropyUnavailable)

	good := newTestLifecycle(t, repo, idleInterval)
	s, err := good.Start(ctx, "math", "teacher-1")
	require.NoError(t, err)

	_, err = l.Rotate(ctx, s.ID)
	assert.ErrorIs(t, err, models.ErrEntropyUnavailable)

	stored, err := repo.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.CurrentToken, stored.CurrentToken)
	assert.Equal(t, int64(0), stored.RotationCount)
}

func TestLifecyclePublishesEventsAndSnapshots(t *testing.T) {
	ctx := context.Background()
	events := &eventLog{}
	snaps := &snapshotLog{}
	l := newTestLifecycle(t, newStore(t), idleInterval, WithNotifier(events), WithSnapshotter(snaps))

	s, err := l.Start(ctx, "math", "teacher-1")
	require.NoError(t, err)
	rotated, err := l.Rotate(ctx, s.ID)
	require.NoError(t, err)

	snaps.mu.Lock()
	assert.Equal(t, rotated.CurrentToken, snaps.cached[s.ID])
	snaps.mu.Unlock()

	_, err = l.Stop(ctx, s.ID)
	require.NoError(t, err)
	_, err = l.Stop(ctx, s.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{
		models.EventSessionStarted,
		models.EventSessionRotated,
		models.EventSessionStopped,
	}, events.types())
	assert.Equal(t, []string{s.ID}, snaps.deleted)
}

func TestScheduledRotation(t *testing.T) {
	ctx := context.Background()
	l := newTestLifecycle(t, newStore(t), 20*time.Millisecond)

	s, err := l.Start(ctx, "math", "teacher-1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		current, err := l.Get(ctx, s.ID)
		return err == nil && current.RotationCount >= 3
	}, 2*time.Second, 5*time.Millisecond)

	current, err := l.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.NotEqual(t, s.CurrentToken, current.CurrentToken)

	stopped, err := l.Stop(ctx, s.ID)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	after, err := l.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, stopped.RotationCount, after.RotationCount, "no rotation persisted after stop")
	assert.Equal(t, stopped.CurrentToken, after.CurrentToken)
}

func TestResumeReschedulesActiveSessions(t *testing.T) {
	ctx := context.Background()
	repo := newStore(t)

	first := NewLifecycle(repo, token.NewGenerator(), idleInterval)
	a, err := first.Start(ctx, "math", "teacher-1")
	require.NoError(t, err)
	b, err := first.Start(ctx, "physics", "teacher-1")
	require.NoError(t, err)
	_, err = first.Stop(ctx, b.ID)
	require.NoError(t, err)
	first.Close()

	second := newTestLifecycle(t, repo, idleInterval, WithNotifier(notifier.Nop))
	n, err := second.Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, ok := second.NextRotationAt(a.ID)
	assert.True(t, ok)
	_, ok = second.NextRotationAt(b.ID)
	assert.False(t, ok)
}
