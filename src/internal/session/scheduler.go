package session

import (
	"errors"
	"sync"
	"time"

	"qr-attendance-svc/src/internal/models"

	"github.com/sirupsen/logrus"
)

// scheduler drives one rotation timer per session. Each rotation arms the
// next timer only after it completes, so the cadence is measured from the
// previous rotation and slow rotations never pile up.
type scheduler struct {
	interval time.Duration
	rotate   func(sessionID string) error
	now      func() time.Time

	mu     sync.Mutex
	timers map[string]*rotationTimer
	seq    uint64
	closed bool
}

type rotationTimer struct {
	timer *time.Timer
	next  time.Time
	gen   uint64
}

func newScheduler(interval time.Duration, now func() time.Time, rotate func(sessionID string) error) *scheduler {
	return &scheduler{
		interval: interval,
		rotate:   rotate,
		now:      now,
		timers:   make(map[string]*rotationTimer),
	}
}

// Schedule (re)arms the timer for sessionID one interval from now.
func (s *scheduler) Schedule(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.armLocked(sessionID)
}

func (s *scheduler) armLocked(sessionID string) {
	if s.closed {
		return
	}
	if existing, ok := s.timers[sessionID]; ok {
		existing.timer.Stop()
	}

	s.seq++
	gen := s.seq
	s.timers[sessionID] = &rotationTimer{
		next:  s.now().Add(s.interval),
		gen:   gen,
		timer: time.AfterFunc(s.interval, func() { s.fire(sessionID, gen) }),
	}
}

// Cancel drops the pending timer. A rotation already running may still
// finish; the store rejects it once the session is stopped.
func (s *scheduler) Cancel(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.timers[sessionID]; ok {
		existing.timer.Stop()
		delete(s.timers, sessionID)
	}
}

// NextRotation reports when the pending rotation for sessionID is due.
func (s *scheduler) NextRotation(sessionID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.timers[sessionID]
	if !ok {
		return time.Time{}, false
	}
	return existing.next, true
}

func (s *scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Close stops every timer. Sessions stay active in the store and can be
// resumed later.
func (s *scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for id, existing := range s.timers {
		existing.timer.Stop()
		delete(s.timers, id)
	}
}

func (s *scheduler) current(sessionID string, gen uint64) bool {
	existing, ok := s.timers[sessionID]
	return ok && existing.gen == gen
}

func (s *scheduler) fire(sessionID string, gen uint64) {
	s.mu.Lock()
	if !s.current(sessionID, gen) {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	err := s.rotate(sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.current(sessionID, gen) {
		// cancelled or re-armed by a manual rotation while we ran
		return
	}

	switch {
	case errors.Is(err, models.ErrInvalidState), errors.Is(err, models.ErrSessionNotFound):
		logrus.WithField("session_id", sessionID).Info("Session no longer active, rotation timer released")
		delete(s.timers, sessionID)
		return
	case err != nil:
		logrus.WithError(err).WithField("session_id", sessionID).Error("Scheduled rotation failed, retrying next interval")
	}

	s.armLocked(sessionID)
}
