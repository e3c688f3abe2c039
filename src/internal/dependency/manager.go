package dependency

import (
	"time"

	"qr-attendance-svc/src/clients"
	"qr-attendance-svc/src/internal/attendance"
	"qr-attendance-svc/src/internal/cache"
	"qr-attendance-svc/src/internal/config"
	"qr-attendance-svc/src/internal/middleware"
	"qr-attendance-svc/src/internal/notifier"
	"qr-attendance-svc/src/internal/render"
	"qr-attendance-svc/src/internal/session"
	"qr-attendance-svc/src/internal/subject"
	"qr-attendance-svc/src/internal/token"

	"github.com/gin-gonic/gin"
)

type Manager struct {
	Router   *gin.Engine
	Config   *config.Configuration
	Stores   *Stores
	Redis    *clients.RedisClient
	RabbitMQ *clients.RabbitMQ

	CacheService   cache.Service
	Hub            *notifier.Hub
	Dispatcher     *notifier.Dispatcher
	Lifecycle      session.Lifecycle
	Admission      attendance.Admission
	Ledger         attendance.Ledger
	SubjectService subject.Service
	AuthMiddleware *middleware.AuthMiddleware

	SessionHandler    session.Handler
	AttendanceHandler attendance.Handler
	SubjectHandler    subject.Handler
}

// NewDependencyManager wires the service. redisClient and rabbitMQ may be nil,
// in which case the display cache and the message bus are skipped.
func NewDependencyManager(router *gin.Engine,
	stores *Stores,
	redisClient *clients.RedisClient,
	rabbitMQ *clients.RabbitMQ,
	cfg *config.Configuration) *Manager {
	cacheService := cache.NewNopService()
	if redisClient != nil {
		cacheService = cache.NewCacheService(redisClient.Client, cfg)
	}

	hub := notifier.NewHub(cfg.Notifier.QueueSize)

	var busTargets []notifier.Notifier
	if rabbitMQ != nil {
		busTargets = append(busTargets, clients.NewAttendancePublisher(cfg, rabbitMQ.Channel))
	}
	dispatcher := notifier.NewDispatcher(cfg.Notifier.QueueSize,
		time.Duration(cfg.Notifier.TimeoutMs)*time.Millisecond, busTargets...)
	dispatcher.Start()

	// the hub is notified inline so the live feed never waits on the bus
	events := notifier.Multi(hub, dispatcher)

	lifecycle := session.NewLifecycle(stores.Sessions, token.NewGenerator(), cfg.Session.RotationInterval(),
		session.WithSnapshotter(cacheService),
		session.WithNotifier(events))
	admission := attendance.NewAdmission(stores.Sessions, stores.Attendance,
		attendance.WithAdmissionNotifier(events))
	ledger := attendance.NewLedger(stores.Attendance, hub)
	subjectService := subject.NewService(stores.Subjects, lifecycle, ledger)

	return &Manager{
		Router:   router,
		Config:   cfg,
		Stores:   stores,
		Redis:    redisClient,
		RabbitMQ: rabbitMQ,

		CacheService:   cacheService,
		Hub:            hub,
		Dispatcher:     dispatcher,
		Lifecycle:      lifecycle,
		Admission:      admission,
		Ledger:         ledger,
		SubjectService: subjectService,
		AuthMiddleware: middleware.NewAuthMiddleware(cfg.Security.JwtKey),

		SessionHandler:    session.NewHandler(cfg, lifecycle, cacheService, render.NewQRRenderer(cfg.QR.Size)),
		AttendanceHandler: attendance.NewHandler(cfg, admission, ledger, stores.Sessions, stores.Subjects),
		SubjectHandler:    subject.NewHandler(cfg, subjectService),
	}
}

// Close stops rotation timers and drains pending notifications.
func (m *Manager) Close() {
	m.Lifecycle.Close()
	m.Dispatcher.Close()
}
