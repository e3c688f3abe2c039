package notifier

import (
	"context"
	"sync"

	"qr-attendance-svc/src/internal/models"

	"github.com/sirupsen/logrus"
)

// Hub is an in-process live feed keyed by session. A subscriber that cannot
// keep up is disconnected rather than slowing the others.
type Hub struct {
	buffer int

	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

type Subscription struct {
	SessionID string

	hub    *Hub
	events chan models.Event
	once   sync.Once
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		buffer: buffer,
		subs:   make(map[string]map[*Subscription]struct{}),
	}
}

func (h *Hub) Subscribe(sessionID string) *Subscription {
	sub := &Subscription{
		SessionID: sessionID,
		hub:       h,
		events:    make(chan models.Event, h.buffer),
	}

	h.mu.Lock()
	set, ok := h.subs[sessionID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[sessionID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	logrus.WithField("session_id", sessionID).Debug("Live feed subscriber registered")
	return sub
}

// Events is closed when the subscription ends.
func (s *Subscription) Events() <-chan models.Event {
	return s.events
}

func (s *Subscription) Close() {
	s.hub.remove(s)
}

// Subscribers returns the number of live subscribers for a session.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}

func (h *Hub) Notify(_ context.Context, event models.Event) error {
	var slow []*Subscription

	h.mu.RLock()
	for sub := range h.subs[event.SessionID] {
		select {
		case sub.events <- event:
		default:
			slow = append(slow, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range slow {
		logrus.WithField("session_id", sub.SessionID).Warn("Live feed subscriber too slow, disconnecting")
		h.remove(sub)
	}
	return nil
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub.once.Do(func() {
		if set, ok := h.subs[sub.SessionID]; ok {
			delete(set, sub)
			if len(set) == 0 {
				delete(h.subs, sub.SessionID)
			}
		}
		close(sub.events)
	})
}
