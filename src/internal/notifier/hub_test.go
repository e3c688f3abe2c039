package notifier

import (
	"context"
	"testing"
	"time"

	"qr-attendance-svc/src/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubRoutesBySession(t *testing.T) {
	h := NewHub(4)
	s1 := h.Subscribe("s1")
	s2 := h.Subscribe("s2")
	defer s1.Close()
	defer s2.Close()

	require.NoError(t, h.Notify(context.Background(), models.Event{Type: models.EventAttendanceAccepted, SessionID: "s1"}))

	select {
	case ev := <-s1.Events():
		assert.Equal(t, "s1", ev.SessionID)
	case <-time.After(time.Second):
		t.Fatal("expected event for s1")
	}

	select {
	case ev := <-s2.Events():
		t.Fatalf("unexpected event for s2: %+v", ev)
	default:
	}
}

func TestHubDisconnectsSlowSubscriber(t *testing.T) {
	h := NewHub(1)
	slow := h.Subscribe("s1")

	require.NoError(t, h.Notify(context.Background(), models.Event{SessionID: "s1"}))
	require.NoError(t, h.Notify(context.Background(), models.Event{SessionID: "s1"}))

	assert.Equal(t, 0, h.Subscribers("s1"))

	_, ok := <-slow.Events()
	assert.True(t, ok, "buffered event is still readable")
	_, ok = <-slow.Events()
	assert.False(t, ok, "channel closed after disconnect")
}

func TestSubscriptionCloseIsIdempotent(t *testing.T) {
	h := NewHub(1)
	sub := h.Subscribe("s1")
	assert.Equal(t, 1, h.Subscribers("s1"))

	sub.Close()
	sub.Close()

	assert.Equal(t, 0, h.Subscribers("s1"))
	assert.NoError(t, h.Notify(context.Background(), models.Event{SessionID: "s1"}))
}
