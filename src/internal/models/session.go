package models

import "time"

type SessionStatus string

const (
	SessionActive  SessionStatus = "active"
	SessionStopped SessionStatus = "stopped"
)

// Session is one instructor-initiated attendance window for a subject.
type Session struct {
	ID            string        `json:"id" bson:"_id"`
	SubjectID     string        `json:"subjectId" bson:"subject_id"`
	TeacherID     string        `json:"teacherId" bson:"teacher_id"`
	CurrentToken  string        `json:"-" bson:"current_token"`
	RotationCount int64         `json:"rotationCount" bson:"rotation_count"`
	Status        SessionStatus `json:"status" bson:"status"`
	StartedAt     time.Time     `json:"startedAt" bson:"started_at"`
	StoppedAt     *time.Time    `json:"stoppedAt,omitempty" bson:"stopped_at,omitempty"`
	RotatedAt     time.Time     `json:"rotatedAt" bson:"rotated_at"`
}

func (s *Session) IsActive() bool {
	return s.Status == SessionActive
}

// Clone returns a copy that shares no pointers with s.
func (s *Session) Clone() *Session {
	c := *s
	if s.StoppedAt != nil {
		t := *s.StoppedAt
		c.StoppedAt = &t
	}
	return &c
}

// SessionHistory is a session together with the attendance it collected.
type SessionHistory struct {
	Session    *Session            `json:"session"`
	Attendance []*AttendanceRecord `json:"attendance"`
	Total      int                 `json:"total"`
}

// OwnedBy reports whether teacherID started the session.
func (s *Session) OwnedBy(teacherID string) bool {
	return teacherID != "" && s.TeacherID == teacherID
}
