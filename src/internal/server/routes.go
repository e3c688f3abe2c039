package server

import (
	"net/http"
	"time"

	"qr-attendance-svc/src/internal/dependency"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(deps *dependency.Manager) {
	router := deps.Router
	router.Use(enableCORS)

	setupHealthEndpoint(deps)
	setupPublicRoutes(router, deps)
	setupTeacherRoutes(router, deps)
}

func setupHealthEndpoint(deps *dependency.Manager) {
	router := deps.Router
	cfg := deps.Config

	router.GET("/health", func(c *gin.Context) {
		log.Debug("Health check endpoint requested")

		storeStatus := "ok"
		if err := deps.Stores.Ping(c.Request.Context()); err != nil {
			storeStatus = "error: " + err.Error()
		}

		redisStatus := "disabled"
		if deps.Redis != nil {
			redisStatus = "ok"
			if err := deps.CacheService.Ping(c.Request.Context()); err != nil {
				redisStatus = "error: " + err.Error()
			}
		}

		rabbitStatus := "disabled"
		if deps.RabbitMQ != nil {
			rabbitStatus = getStatus(!deps.RabbitMQ.Conn.IsClosed())
		}

		status := http.StatusOK
		overall := "ok"
		if storeStatus != "ok" {
			status = http.StatusServiceUnavailable
			overall = "degraded"
		}

		c.JSON(status, gin.H{
			"status":    overall,
			"service":   cfg.App.Name,
			"version":   cfg.App.Version,
			"store":     gin.H{"driver": deps.Stores.Driver, "status": storeStatus},
			"redis":     redisStatus,
			"rabbitmq":  rabbitStatus,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})
}

func setupPublicRoutes(router *gin.Engine, deps *dependency.Manager) {
	router.GET("/api/v1/status", func(c *gin.Context) {
		log.Debug("API status requested")
		c.JSON(http.StatusOK, gin.H{
			"api_version":               "v1",
			"status":                    "operational",
			"service":                   deps.Config.App.Name,
			"rotation_interval_seconds": deps.Config.Session.RotationIntervalSeconds,
		})
	})

	handler := deps.AttendanceHandler

	// students never authenticate; the token in the path is the credential
	attend := router.Group("/api/v1/attend")
	{
		attend.GET("/:sessionId/:token",
			setRouteName("checkCode"),
			handler.CheckCode)

		attend.POST("/:sessionId/:token",
			setRouteName("submitAttendance"),
			handler.SubmitAttendance)
	}
}

func setupTeacherRoutes(router *gin.Engine, deps *dependency.Manager) {
	auth := deps.AuthMiddleware
	subjects := deps.SubjectHandler
	sessions := deps.SessionHandler
	attendance := deps.AttendanceHandler

	// Apply route name FIRST, then auth middleware
	subjectGroup := router.Group("/api/v1/subjects")
	{
		subjectGroup.POST("",
			setRouteName("createSubject"),
			auth.RequireTeacher(),
			subjects.CreateSubject)

		subjectGroup.GET("",
			setRouteName("listSubjects"),
			auth.RequireTeacher(),
			subjects.ListSubjects)

		subjectGroup.POST("/:id/sessions",
			setRouteName("startSession"),
			auth.RequireTeacher(),
			subjects.StartSession)

		subjectGroup.GET("/:id/sessions",
			setRouteName("sessionHistory"),
			auth.RequireTeacher(),
			subjects.ListSessions)
	}

	sessionGroup := router.Group("/api/v1/sessions")
	{
		sessionGroup.GET("/:id",
			setRouteName("getSession"),
			auth.RequireTeacher(),
			sessions.GetSession)

		sessionGroup.GET("/:id/code",
			setRouteName("getCode"),
			auth.RequireTeacher(),
			sessions.GetCode)

		sessionGroup.GET("/:id/qr",
			setRouteName("getQRCode"),
			auth.RequireTeacher(),
			sessions.GetQRCode)

		sessionGroup.POST("/:id/rotate",
			setRouteName("rotateSession"),
			auth.RequireTeacher(),
			sessions.RotateSession)

		sessionGroup.POST("/:id/stop",
			setRouteName("stopSession"),
			auth.RequireTeacher(),
			sessions.StopSession)

		sessionGroup.GET("/:id/attendance",
			setRouteName("listAttendance"),
			auth.RequireTeacher(),
			attendance.ListAttendance)

		sessionGroup.GET("/:id/live",
			setRouteName("liveFeed"),
			auth.RequireTeacher(),
			attendance.LiveFeed)
	}
}

func setRouteName(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("route_name", name)
		c.Next()
	}
}

func enableCORS(c *gin.Context) {
	c.Header("Access-Control-Allow-Origin", "*")
	c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if c.Request.Method == "OPTIONS" {
		c.AbortWithStatus(http.StatusNoContent)
		return
	}

	c.Next()
}

func getStatus(b bool) string {
	if b {
		return "connected"
	}
	return "disconnected"
}
