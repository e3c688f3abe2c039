package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"qr-attendance-svc/src/internal/config"
	"qr-attendance-svc/src/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Service keeps a display snapshot of active sessions. It is a read-side
// convenience only; the store stays authoritative.
type Service interface {
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	CacheSession(ctx context.Context, session *models.Session) error
	DeleteSession(ctx context.Context, sessionID string) error
	Ping(ctx context.Context) error
}

// cachedSession carries the token, which models.Session hides from JSON.
type cachedSession struct {
	ID            string               `json:"id"`
	SubjectID     string               `json:"subjectId"`
	TeacherID     string               `json:"teacherId"`
	CurrentToken  string               `json:"currentToken"`
	RotationCount int64                `json:"rotationCount"`
	Status        models.SessionStatus `json:"status"`
	StartedAt     time.Time            `json:"startedAt"`
	RotatedAt     time.Time            `json:"rotatedAt"`
}

type cacheService struct {
	client *redis.Client
	cfg    *config.CacheConfig
}

func NewCacheService(client *redis.Client, cfg *config.Configuration) Service {
	return &cacheService{
		client: client,
		cfg:    &cfg.Cache}
}

func (c *cacheService) key(sessionID string) string {
	return fmt.Sprintf("%s:session:%s", c.cfg.KeyPrefix, sessionID)
}

func (c *cacheService) ttl() time.Duration {
	return time.Duration(c.cfg.SessionExpirationMinutes) * time.Minute
}

// GetSession returns nil, nil on a miss.
func (c *cacheService) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	key := c.key(sessionID)
	logrus.WithField("key", key).Debug("Getting session from cache")

	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			logrus.WithField("key", key).Debug("Session not found in cache")
			return nil, nil
		}
		logrus.WithError(err).WithField("key", key).Error("Failed to get session from cache")
		return nil, models.ErrRedisGet
	}

	var cached cachedSession
	if err := json.Unmarshal([]byte(data), &cached); err != nil {
		logrus.WithError(err).WithField("key", key).Error("Failed to unmarshal session from cache")
		return nil, models.ErrRedisGet
	}

	return &models.Session{
		ID:            cached.ID,
		SubjectID:     cached.SubjectID,
		TeacherID:     cached.TeacherID,
		CurrentToken:  cached.CurrentToken,
		RotationCount: cached.RotationCount,
		Status:        cached.Status,
		StartedAt:     cached.StartedAt,
		RotatedAt:     cached.RotatedAt,
	}, nil
}

// CacheSession stores an active session. Stopped sessions are evicted instead.
func (c *cacheService) CacheSession(ctx context.Context, session *models.Session) error {
	if !session.IsActive() {
		return c.DeleteSession(ctx, session.ID)
	}

	data, err := json.Marshal(cachedSession{
		ID:            session.ID,
		SubjectID:     session.SubjectID,
		TeacherID:     session.TeacherID,
		CurrentToken:  session.CurrentToken,
		RotationCount: session.RotationCount,
		Status:        session.Status,
		StartedAt:     session.StartedAt,
		RotatedAt:     session.RotatedAt,
	})
	if err != nil {
		logrus.WithError(err).WithField("session_id", session.ID).Error("Failed to marshal session for cache")
		return models.ErrRedisSet
	}

	err = c.client.Set(ctx, c.key(session.ID), data, c.ttl()).Err()
	if err != nil {
		logrus.WithError(err).WithField("session_id", session.ID).Error("Failed to cache session")
		return models.ErrRedisSet
	}

	logrus.WithFields(logrus.Fields{
		"session_id":     session.ID,
		"rotation_count": session.RotationCount,
	}).Debug("Session cached successfully")
	return nil
}

func (c *cacheService) DeleteSession(ctx context.Context, sessionID string) error {
	if err := c.client.Del(ctx, c.key(sessionID)).Err(); err != nil {
		logrus.WithError(err).WithField("session_id", sessionID).Error("Failed to delete session from cache")
		return models.ErrRedisDelete
	}
	return nil
}

func (c *cacheService) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", models.ErrRedisConnection, err)
	}
	return nil
}

type nopService struct{}

// NewNopService is used when no Redis is configured. Every read misses.
func NewNopService() Service {
	return nopService{}
}

func (nopService) GetSession(context.Context, string) (*models.Session, error) { return nil, nil }
func (nopService) CacheSession(context.Context, *models.Session) error         { return nil }
func (nopService) DeleteSession(context.Context, string) error                 { return nil }
func (nopService) Ping(context.Context) error                                  { return nil }
