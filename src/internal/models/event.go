package models

import "time"

// Event types fanned out to observers and the message bus.
const (
	EventAttendanceAccepted = "attendance.accepted"
	EventSessionStarted     = "session.started"
	EventSessionRotated     = "session.rotated"
	EventSessionStopped     = "session.stopped"
)

// Event is the message shape shared by the live feed and the message bus.
// Tokens are never included.
type Event struct {
	Type          string            `json:"type"`
	SessionID     string            `json:"sessionId"`
	SubjectID     string            `json:"subjectId,omitempty"`
	RotationCount int64             `json:"rotationCount,omitempty"`
	Status        SessionStatus     `json:"status,omitempty"`
	Record        *AttendanceRecord `json:"record,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
}

func NewAttendanceEvent(record *AttendanceRecord) Event {
	return Event{
		Type:      EventAttendanceAccepted,
		SessionID: record.SessionID,
		Record:    record,
		Timestamp: record.SubmittedAt,
	}
}

func NewSessionEvent(eventType string, s *Session, at time.Time) Event {
	return Event{
		Type:          eventType,
		SessionID:     s.ID,
		SubjectID:     s.SubjectID,
		RotationCount: s.RotationCount,
		Status:        s.Status,
		Timestamp:     at,
	}
}
