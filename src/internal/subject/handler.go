package subject

import (
	"context"
	"net/http"
	"time"

	"qr-attendance-svc/src/internal/config"
	"qr-attendance-svc/src/internal/middleware"
	"qr-attendance-svc/src/internal/models"
	"qr-attendance-svc/src/internal/response"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Handler interface {
	CreateSubject(c *gin.Context)
	ListSubjects(c *gin.Context)
	StartSession(c *gin.Context)
	ListSessions(c *gin.Context)
}

type handler struct {
	config  *config.Configuration
	service Service
}

func NewHandler(cfg *config.Configuration, service Service) Handler {
	return &handler{
		config:  cfg,
		service: service,
	}
}

func (h *handler) timeout() time.Duration {
	return time.Duration(h.config.App.Timeout) * time.Second
}

func (h *handler) CreateSubject(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout())
	defer cancel()

	var req models.CreateSubjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Debug("Invalid create subject request")
		response.Error(c, models.ErrInvalidParams)
		return
	}

	subject, err := h.service.Create(ctx, middleware.TeacherID(c), &req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, http.StatusCreated, subject, "Subject created successfully")
}

func (h *handler) ListSubjects(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout())
	defer cancel()

	subjects, err := h.service.ListByTeacher(ctx, middleware.TeacherID(c))
	if err != nil {
		logrus.WithError(err).Error("Failed to list subjects")
		response.Error(c, err)
		return
	}

	response.OK(c, http.StatusOK, subjects, "Subjects retrieved successfully")
}

func (h *handler) StartSession(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout())
	defer cancel()

	session, err := h.service.StartSession(ctx, middleware.TeacherID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, http.StatusCreated, session, "Session started successfully")
}

func (h *handler) ListSessions(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout())
	defer cancel()

	history, err := h.service.History(ctx, middleware.TeacherID(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, http.StatusOK, history, "Sessions retrieved successfully")
}
