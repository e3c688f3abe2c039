package models

import "errors"

var (
	ErrRedisConnection = errors.New("redis connection error")
	ErrRedisGet        = errors.New("redis get error")
	ErrRedisSet        = errors.New("redis set error")
	ErrRedisDelete     = errors.New("redis delete error")
)

var (
	ErrEntropyUnavailable = errors.New("entropy unavailable")
	ErrPersistence        = errors.New("persistence error")
)

// Expected admission rejections. Callers render a specific message for each.
var (
	ErrSessionNotFound       = errors.New("session not found")
	ErrSessionClosed         = errors.New("session closed")
	ErrTokenExpiredOrInvalid = errors.New("token expired or invalid")
	ErrDuplicateSubmission   = errors.New("duplicate submission")
)

var (
	ErrInvalidState         = errors.New("invalid session state")
	ErrSessionAlreadyActive = errors.New("subject already has an active session")
	ErrSubjectNotFound      = errors.New("subject not found")
	ErrInvalidParams        = errors.New("invalid params")
	ErrForbidden            = errors.New("forbidden")
)

// Reason returns the stable machine code for err, used in API responses.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, ErrSessionClosed):
		return "session_closed"
	case errors.Is(err, ErrTokenExpiredOrInvalid):
		return "token_expired_or_invalid"
	case errors.Is(err, ErrDuplicateSubmission):
		return "duplicate_submission"
	case errors.Is(err, ErrInvalidParams):
		return "invalid_params"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrSessionAlreadyActive):
		return "session_already_active"
	case errors.Is(err, ErrSubjectNotFound):
		return "subject_not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrEntropyUnavailable):
		return "entropy_unavailable"
	default:
		return "persistence_error"
	}
}
