package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"qr-attendance-svc/src/clients"
	"qr-attendance-svc/src/internal/config"
	"qr-attendance-svc/src/internal/dependency"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

var log = logrus.StandardLogger()

const shutdownTimeout = 15 * time.Second

type Server struct {
	cfg  *config.Configuration
	deps *dependency.Manager
	http *http.Server
}

// New connects every backend and wires the router. The store is required;
// Redis and RabbitMQ are optional and skipped with a warning when unreachable.
func New(cfg *config.Configuration) (*Server, error) {
	gin.SetMode(cfg.Server.Mode)

	stores, err := dependency.OpenStores(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	var redisClient *clients.RedisClient
	if cfg.Redis.Url != "" {
		redisClient, err = clients.NewRedisClient(&cfg.Redis)
		if err != nil {
			log.WithError(err).Warn("Redis unavailable, display cache disabled")
			redisClient = nil
		}
	}

	var rabbitMQ *clients.RabbitMQ
	if cfg.Queue.RabbitMQ.Url != "" {
		rabbitMQ, err = clients.NewRabbitMQ(&cfg.Queue)
		if err == nil {
			err = rabbitMQ.SetupExchange()
			if err != nil {
				_ = rabbitMQ.Close()
			}
		}
		if err != nil {
			log.WithError(err).Warn("RabbitMQ unavailable, event publishing disabled")
			rabbitMQ = nil
		}
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	deps := dependency.NewDependencyManager(router, stores, redisClient, rabbitMQ, cfg)
	SetupRoutes(deps)

	return &Server{
		cfg:  cfg,
		deps: deps,
		http: &http.Server{
			Addr:         ":" + cfg.Server.Port,
			Handler:      router,
			ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
			WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
			IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
		},
	}, nil
}

// Start serves until SIGINT or SIGTERM and then shuts down gracefully.
func (s *Server) Start() error {
	if s.cfg.Session.ResumeOnStart {
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(s.cfg.App.Timeout)*time.Second)
		resumed, err := s.deps.Lifecycle.Resume(ctx)
		cancel()
		if err != nil {
			log.WithError(err).Error("Failed to resume active sessions")
		} else if resumed > 0 {
			log.WithField("sessions", resumed).Info("Active sessions resumed")
		}
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", s.cfg.Server.Port).Info("HTTP server listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		s.shutdown()
		return err
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("Shutting down server...")
	}

	return s.shutdown()
}

func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := s.http.Shutdown(ctx)
	if err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	s.deps.Close()

	if s.deps.RabbitMQ != nil {
		_ = s.deps.RabbitMQ.Close()
	}
	if s.deps.Redis != nil {
		_ = s.deps.Redis.Close()
	}
	if closeErr := s.deps.Stores.Close(ctx); closeErr != nil {
		log.WithError(closeErr).Error("Failed to close store")
	}

	log.Info("Server exited")
	return err
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"route_name": c.GetString("route_name"),
		}).Debug("Request handled")
	}
}
