// Package response writes the JSON envelopes shared by every handler.
package response

import (
	"errors"
	"net/http"

	"qr-attendance-svc/src/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Status maps a domain error to its HTTP status.
func Status(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidParams):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, models.ErrSessionNotFound), errors.Is(err, models.ErrSubjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrDuplicateSubmission),
		errors.Is(err, models.ErrSessionAlreadyActive),
		errors.Is(err, models.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, models.ErrSessionClosed), errors.Is(err, models.ErrTokenExpiredOrInvalid):
		return http.StatusGone
	default:
		return http.StatusServiceUnavailable
	}
}

var messages = map[string]string{
	"session_not_found":        "No session found for this code",
	"session_closed":           "This attendance session has ended",
	"token_expired_or_invalid": "This code has expired or is invalid. Please scan the latest code",
	"duplicate_submission":     "You have already submitted attendance for this session",
	"invalid_params":           "Please check the submitted fields",
	"invalid_state":            "The session is not in a state that allows this action",
	"session_already_active":   "This subject already has an active session",
	"subject_not_found":        "No subject found with the provided ID",
	"forbidden":                "You do not own this resource",
	"entropy_unavailable":      "Unable to generate a secure code, please retry",
	"persistence_error":        "Storage is temporarily unavailable, please retry",
}

// Error writes the error envelope for err. Infrastructure failures are logged
// in full and answered with the bare sentinel text.
func Error(c *gin.Context, err error) {
	reason := models.Reason(err)
	status := Status(err)
	detail := err.Error()
	if status >= http.StatusInternalServerError {
		logrus.WithError(err).WithFields(logrus.Fields{
			"path":   c.FullPath(),
			"reason": reason,
		}).Error("Request failed")
		detail = publicError(err)
	}
	c.JSON(status, gin.H{
		"success": false,
		"error":   detail,
		"reason":  reason,
		"message": messages[reason],
	})
}

func publicError(err error) string {
	if errors.Is(err, models.ErrEntropyUnavailable) {
		return models.ErrEntropyUnavailable.Error()
	}
	return models.ErrPersistence.Error()
}

// OK writes the success envelope.
func OK(c *gin.Context, status int, data any, message string) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
		"message": message,
	})
}
