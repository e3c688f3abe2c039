package attendance

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"qr-attendance-svc/src/internal/config"
	"qr-attendance-svc/src/internal/middleware"
	"qr-attendance-svc/src/internal/models"
	"qr-attendance-svc/src/internal/response"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// SubjectReader resolves the subject shown on the student form.
type SubjectReader interface {
	GetByID(ctx context.Context, subjectID string) (*models.Subject, error)
}

type Handler interface {
	CheckCode(c *gin.Context)
	SubmitAttendance(c *gin.Context)
	ListAttendance(c *gin.Context)
	LiveFeed(c *gin.Context)
}

type SubmitRequest struct {
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName" binding:"required"`
	CRN       string `json:"crn" binding:"required"`
}

type codeResponse struct {
	SessionID string          `json:"sessionId"`
	Subject   *models.Subject `json:"subject,omitempty"`
	Valid     bool            `json:"valid"`
}

type liveMessage struct {
	Type    string                     `json:"type"`
	Session *models.Session            `json:"session,omitempty"`
	Records []*models.AttendanceRecord `json:"records,omitempty"`
	Event   *models.Event              `json:"event,omitempty"`
}

type handler struct {
	config    *config.Configuration
	admission Admission
	ledger    Ledger
	sessions  SessionReader
	subjects  SubjectReader
	upgrader  websocket.Upgrader
}

func NewHandler(cfg *config.Configuration, admission Admission, ledger Ledger, sessions SessionReader, subjects SubjectReader) Handler {
	h := &handler{
		config:    cfg,
		admission: admission,
		ledger:    ledger,
		sessions:  sessions,
		subjects:  subjects,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *handler) timeout() time.Duration {
	return time.Duration(h.config.App.Timeout) * time.Second
}

// CheckCode lets the student form show whether a scanned code is still usable
// before the student types anything. Nothing is recorded.
func (h *handler) CheckCode(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout())
	defer cancel()

	session, err := h.admission.Check(ctx, c.Param("sessionId"), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}

	data := codeResponse{SessionID: session.ID, Valid: true}
	if subject, err := h.subjects.GetByID(ctx, session.SubjectID); err == nil {
		data.Subject = subject
	} else {
		logrus.WithError(err).WithField("subject_id", session.SubjectID).Warn("Failed to resolve subject for code check")
	}

	response.OK(c, http.StatusOK, data, "Code is valid")
}

func (h *handler) SubmitAttendance(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout())
	defer cancel()

	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Debug("Invalid attendance request body")
		response.Error(c, models.ErrInvalidParams)
		return
	}

	claim := models.Claim{
		SessionID: c.Param("sessionId"),
		Token:     c.Param("token"),
		Student: models.StudentKey{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			CRN:       req.CRN,
		},
	}

	record, err := h.admission.Submit(ctx, claim)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, http.StatusCreated, record, "Attendance submitted successfully")
}

func (h *handler) ListAttendance(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout())
	defer cancel()

	session, err := h.ownedSession(ctx, c)
	if err != nil {
		response.Error(c, err)
		return
	}

	records, err := h.ledger.List(ctx, session.ID)
	if err != nil {
		logrus.WithError(err).WithField("session_id", session.ID).Error("Failed to list attendance")
		response.Error(c, err)
		return
	}

	response.OK(c, http.StatusOK, models.SessionHistory{
		Session:    session,
		Attendance: records,
		Total:      len(records),
	}, "Attendance retrieved successfully")
}

// LiveFeed streams a snapshot of the ledger followed by every later session
// event. The connection is closed after the stop event.
func (h *handler) LiveFeed(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout())
	session, err := h.ownedSession(ctx, c)
	if err != nil {
		cancel()
		response.Error(c, err)
		return
	}

	feed, err := h.ledger.Watch(ctx, session.ID)
	cancel()
	if err != nil {
		response.Error(c, err)
		return
	}
	defer feed.Close()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).WithField("session_id", session.ID).Warn("Failed to upgrade live feed connection")
		return
	}
	defer conn.Close()

	log := logrus.WithFields(logrus.Fields{
		"session_id": session.ID,
		"teacher_id": session.TeacherID,
	})
	log.Info("Live feed connected")

	done := make(chan struct{})
	go readPump(conn, done)

	snapshot := liveMessage{Type: "snapshot", Session: session, Records: feed.Snapshot}
	if err := writeJSON(conn, snapshot); err != nil {
		log.WithError(err).Debug("Live feed write failed")
		return
	}
	if !session.IsActive() {
		closeConn(conn, websocket.CloseNormalClosure, "session stopped")
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-feed.Events():
			if !ok {
				log.Warn("Live feed dropped")
				closeConn(conn, websocket.CloseTryAgainLater, "subscriber too slow")
				return
			}
			if !feed.Fresh(event) {
				continue
			}
			if err := writeJSON(conn, liveMessage{Type: "event", Event: &event}); err != nil {
				log.WithError(err).Debug("Live feed write failed")
				return
			}
			if event.Type == models.EventSessionStopped {
				closeConn(conn, websocket.CloseNormalClosure, "session stopped")
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			log.Info("Live feed disconnected")
			return
		}
	}
}

func (h *handler) ownedSession(ctx context.Context, c *gin.Context) (*models.Session, error) {
	session, err := h.sessions.GetByID(ctx, c.Param("id"))
	if err != nil {
		return nil, err
	}
	if !session.OwnedBy(middleware.TeacherID(c)) {
		return nil, models.ErrForbidden
	}
	return session, nil
}

// checkOrigin accepts non-browser clients, same-host pages and the configured
// public origin.
func (h *handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if strings.TrimRight(origin, "/") == strings.TrimRight(h.config.App.HostLink, "/") {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// readPump discards client frames. It keeps pong handling alive and signals
// done when the peer goes away.
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logrus.WithError(err).Debug("Live feed read error")
			}
			return
		}
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

func closeConn(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
