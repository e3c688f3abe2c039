package session

import (
	"context"
	"net/http"
	"time"

	"qr-attendance-svc/src/internal/config"
	"qr-attendance-svc/src/internal/middleware"
	"qr-attendance-svc/src/internal/models"
	"qr-attendance-svc/src/internal/render"
	"qr-attendance-svc/src/internal/response"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// CodeReader serves the display code without a store round trip. A nil
// session means a miss.
type CodeReader interface {
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
}

type Handler interface {
	GetSession(c *gin.Context)
	GetCode(c *gin.Context)
	GetQRCode(c *gin.Context)
	RotateSession(c *gin.Context)
	StopSession(c *gin.Context)
}

type SessionResponse struct {
	Session        *models.Session `json:"session"`
	NextRotationAt *time.Time      `json:"nextRotationAt,omitempty"`
}

type CodeResponse struct {
	SessionID               string    `json:"sessionId"`
	Token                   string    `json:"token"`
	RotationCount           int64     `json:"rotationCount"`
	AttendURL               string    `json:"attendUrl"`
	RotationIntervalSeconds int       `json:"rotationIntervalSeconds"`
	NextRotationAt          time.Time `json:"nextRotationAt"`
}

type handler struct {
	config    *config.Configuration
	lifecycle Lifecycle
	codes     CodeReader
	renderer  render.Renderer
}

func NewHandler(cfg *config.Configuration, lifecycle Lifecycle, codes CodeReader, renderer render.Renderer) Handler {
	return &handler{
		config:    cfg,
		lifecycle: lifecycle,
		codes:     codes,
		renderer:  renderer,
	}
}

func (h *handler) timeout() time.Duration {
	return time.Duration(h.config.App.Timeout) * time.Second
}

func (h *handler) GetSession(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout())
	defer cancel()

	session, err := h.ownedSession(ctx, c)
	if err != nil {
		response.Error(c, err)
		return
	}

	data := SessionResponse{Session: session}
	if next, ok := h.lifecycle.NextRotationAt(session.ID); ok {
		data.NextRotationAt = &next
	}
	response.OK(c, http.StatusOK, data, "Session retrieved successfully")
}

func (h *handler) GetCode(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout())
	defer cancel()

	session, err := h.currentCode(ctx, c)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	response.OK(c, http.StatusOK, h.codeResponse(session), "Code retrieved successfully")
}

func (h *handler) GetQRCode(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout())
	defer cancel()

	session, err := h.currentCode(ctx, c)
	if err != nil {
		response.Error(c, err)
		return
	}

	png, err := h.renderer.PNG(render.AttendURL(h.config.App.HostLink, session.ID, session.CurrentToken))
	if err != nil {
		logrus.WithError(err).WithField("session_id", session.ID).Error("Failed to render code")
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to render code",
		})
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

func (h *handler) RotateSession(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout())
	defer cancel()

	session, err := h.ownedSession(ctx, c)
	if err != nil {
		response.Error(c, err)
		return
	}

	rotated, err := h.lifecycle.Rotate(ctx, session.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	logrus.WithFields(logrus.Fields{
		"session_id":     rotated.ID,
		"rotation_count": rotated.RotationCount,
	}).Info("Session rotated manually")

	response.OK(c, http.StatusOK, h.codeResponse(rotated), "Session rotated successfully")
}

func (h *handler) StopSession(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout())
	defer cancel()

	session, err := h.ownedSession(ctx, c)
	if err != nil {
		response.Error(c, err)
		return
	}

	stopped, err := h.lifecycle.Stop(ctx, session.ID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, http.StatusOK, SessionResponse{Session: stopped}, "Session stopped successfully")
}

func (h *handler) ownedSession(ctx context.Context, c *gin.Context) (*models.Session, error) {
	session, err := h.lifecycle.Get(ctx, c.Param("id"))
	if err != nil {
		return nil, err
	}
	if !session.OwnedBy(middleware.TeacherID(c)) {
		logrus.WithFields(logrus.Fields{
			"session_id": session.ID,
			"teacher_id": middleware.TeacherID(c),
		}).Warn("Teacher attempted to access a session they do not own")
		return nil, models.ErrForbidden
	}
	return session, nil
}

// currentCode reads the snapshot cache first and falls back to the store.
func (h *handler) currentCode(ctx context.Context, c *gin.Context) (*models.Session, error) {
	sessionID := c.Param("id")

	session, err := h.codes.GetSession(ctx, sessionID)
	if err != nil {
		logrus.WithError(err).WithField("session_id", sessionID).Warn("Code cache unavailable, reading store")
	}
	if session == nil {
		session, err = h.lifecycle.Get(ctx, sessionID)
		if err != nil {
			return nil, err
		}
	}

	if !session.OwnedBy(middleware.TeacherID(c)) {
		return nil, models.ErrForbidden
	}
	if !session.IsActive() {
		return nil, models.ErrSessionClosed
	}
	return session, nil
}

func (h *handler) codeResponse(session *models.Session) CodeResponse {
	next, ok := h.lifecycle.NextRotationAt(session.ID)
	if !ok {
		next = session.RotatedAt.Add(h.lifecycle.RotationInterval())
	}
	return CodeResponse{
		SessionID:               session.ID,
		Token:                   session.CurrentToken,
		RotationCount:           session.RotationCount,
		AttendURL:               render.AttendURL(h.config.App.HostLink, session.ID, session.CurrentToken),
		RotationIntervalSeconds: int(h.lifecycle.RotationInterval() / time.Second),
		NextRotationAt:          next,
	}
}
