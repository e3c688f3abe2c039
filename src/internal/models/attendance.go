package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxNameLength = 100
	MaxCRNLength  = 50
)

// StudentKey identifies a submission for duplicate detection only. It is not
// an authenticated identity.
type StudentKey struct {
	FirstName string `json:"firstName" bson:"first_name"`
	LastName  string `json:"lastName" bson:"last_name"`
	CRN       string `json:"crn" bson:"crn"`
}

// Normalize trims surrounding whitespace from every field.
func (k StudentKey) Normalize() StudentKey {
	return StudentKey{
		FirstName: strings.TrimSpace(k.FirstName),
		LastName:  strings.TrimSpace(k.LastName),
		CRN:       strings.TrimSpace(k.CRN),
	}
}

// Validate checks the field limits of a normalized key. Limits count
// characters, not bytes, and every field must be valid UTF-8.
func (k StudentKey) Validate() error {
	switch {
	case !validField(k.FirstName, MaxNameLength):
		return fmt.Errorf("%w: first name must be 1-%d characters", ErrInvalidParams, MaxNameLength)
	case !validField(k.LastName, MaxNameLength):
		return fmt.Errorf("%w: last name must be 1-%d characters", ErrInvalidParams, MaxNameLength)
	case !validField(k.CRN, MaxCRNLength):
		return fmt.Errorf("%w: crn must be 1-%d characters", ErrInvalidParams, MaxCRNLength)
	}
	return nil
}

func validField(v string, max int) bool {
	if v == "" || !utf8.ValidString(v) {
		return false
	}
	return utf8.RuneCountInString(v) <= max
}

func (k StudentKey) String() string {
	return k.FirstName + "/" + k.LastName + "/" + k.CRN
}

// AttendanceRecord is an accepted submission. Records are never mutated.
type AttendanceRecord struct {
	StudentKey `bson:",inline"`

	ID          string    `json:"id" bson:"_id"`
	SessionID   string    `json:"sessionId" bson:"session_id"`
	TokenUsed   string    `json:"-" bson:"token_used"`
	SubmittedAt time.Time `json:"submittedAt" bson:"submitted_at"`
}

// Claim is an inbound attendance claim decoded from a scanned code plus the
// form fields the student typed.
type Claim struct {
	SessionID string
	Token     string
	Student   StudentKey
}
