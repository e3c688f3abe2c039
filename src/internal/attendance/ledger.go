package attendance

import (
	"context"

	"qr-attendance-svc/src/internal/models"
	"qr-attendance-svc/src/internal/notifier"
)

// Subscriber registers a live feed for a single session.
type Subscriber interface {
	Subscribe(sessionID string) *notifier.Subscription
}

// Ledger is the read side of the attendance log: ordered snapshots plus a
// live feed of records accepted afterwards.
type Ledger interface {
	List(ctx context.Context, sessionID string) ([]*models.AttendanceRecord, error)
	Count(ctx context.Context, sessionID string) (int64, error)
	Watch(ctx context.Context, sessionID string) (*Feed, error)
}

type ledger struct {
	repo Repository
	hub  Subscriber
}

func NewLedger(repo Repository, hub Subscriber) Ledger {
	return &ledger{repo: repo, hub: hub}
}

func (l *ledger) List(ctx context.Context, sessionID string) ([]*models.AttendanceRecord, error) {
	return l.repo.ListBySession(ctx, sessionID)
}

func (l *ledger) Count(ctx context.Context, sessionID string) (int64, error) {
	return l.repo.CountBySession(ctx, sessionID)
}

// Watch subscribes before reading the snapshot so no record accepted in
// between is missed. Records present in both are reported once.
func (l *ledger) Watch(ctx context.Context, sessionID string) (*Feed, error) {
	sub := l.hub.Subscribe(sessionID)

	records, err := l.repo.ListBySession(ctx, sessionID)
	if err != nil {
		sub.Close()
		return nil, err
	}

	seen := make(map[string]struct{}, len(records))
	for _, record := range records {
		seen[record.ID] = struct{}{}
	}
	return &Feed{Snapshot: records, sub: sub, seen: seen}, nil
}

// Feed is a snapshot followed by live session events.
type Feed struct {
	Snapshot []*models.AttendanceRecord

	sub  *notifier.Subscription
	seen map[string]struct{}
}

// Events is closed when the feed is closed or falls too far behind.
func (f *Feed) Events() <-chan models.Event {
	return f.sub.Events()
}

// Fresh reports whether event carries something not already in the snapshot.
func (f *Feed) Fresh(event models.Event) bool {
	if event.Type != models.EventAttendanceAccepted || event.Record == nil {
		return true
	}
	_, dup := f.seen[event.Record.ID]
	return !dup
}

func (f *Feed) Close() {
	f.sub.Close()
}
