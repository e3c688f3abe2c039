package response

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"qr-attendance-svc/src/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.ErrInvalidParams, http.StatusBadRequest},
		{models.ErrForbidden, http.StatusForbidden},
		{models.ErrSessionNotFound, http.StatusNotFound},
		{models.ErrSubjectNotFound, http.StatusNotFound},
		{models.ErrDuplicateSubmission, http.StatusConflict},
		{models.ErrSessionAlreadyActive, http.StatusConflict},
		{models.ErrInvalidState, http.StatusConflict},
		{models.ErrSessionClosed, http.StatusGone},
		{models.ErrTokenExpiredOrInvalid, http.StatusGone},
		{fmt.Errorf("%w: boom", models.ErrPersistence), http.StatusServiceUnavailable},
		{models.ErrEntropyUnavailable, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, Status(tt.err))
		})
	}
}

func TestErrorEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Error(c, fmt.Errorf("submit: %w", models.ErrDuplicateSubmission))

	assert.Equal(t, http.StatusConflict, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "duplicate_submission", body["reason"])
	assert.NotEmpty(t, body["message"])
}

func TestErrorHidesInfrastructureDetail(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"persistence", fmt.Errorf("%w: insert attendance: dial tcp 10.0.0.7:27017: connection refused", models.ErrPersistence), "persistence error"},
		{"entropy", fmt.Errorf("%w: read /dev/urandom: bad file", models.ErrEntropyUnavailable), "entropy unavailable"},
		{"unclassified", fmt.Errorf("sqlite: disk I/O error"), "persistence error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			Error(c, tt.err)

			assert.Equal(t, http.StatusServiceUnavailable, w.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.want, body["error"])
			assert.NotContains(t, w.Body.String(), "10.0.0.7")
			assert.NotContains(t, w.Body.String(), "urandom")
			assert.NotContains(t, w.Body.String(), "disk I/O")
		})
	}
}

func TestErrorKeepsClientErrorDetail(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Error(c, fmt.Errorf("%w: crn must be 1-50 characters", models.ErrInvalidParams))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "invalid params: crn must be 1-50 characters", body["error"])
}
