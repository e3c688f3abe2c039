package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"qr-attendance-svc/src/clients"
	"qr-attendance-svc/src/internal/models"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Repository persists sessions. Rotate and Stop are conditional on the stored
// status being active, so no rotation is ever written after a stop commits.
type Repository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, sessionID string) (*models.Session, error)
	Rotate(ctx context.Context, sessionID, token string, at time.Time) (*models.Session, error)
	Stop(ctx context.Context, sessionID string, at time.Time) (*models.Session, error)
	ListBySubject(ctx context.Context, subjectID string) ([]*models.Session, error)
	ListActive(ctx context.Context) ([]*models.Session, error)
}

type repository struct {
	collection *mongo.Collection
}

func NewSessionRepository(db *clients.MongoDB, collectionName string) Repository {
	collection := db.Database.Collection(collectionName)
	return &repository{collection: collection}
}

// EnsureIndexes creates the history index and the one-active-session-per-subject
// partial unique index.
func EnsureIndexes(ctx context.Context, db *clients.MongoDB, collectionName string) error {
	collection := db.Database.Collection(collectionName)
	if _, err := collection.Indexes().CreateMany(ctx, sessionIndexes()); err != nil {
		return fmt.Errorf("create session indexes: %w", err)
	}
	return nil
}

func sessionIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "subject_id", Value: 1}, {Key: "started_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "subject_id", Value: 1}},
			Options: options.Index().
				SetName("one_active_per_subject").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": models.SessionActive}),
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}},
		},
	}
}

// activeFilter matches sessionID only while it has not been stopped.
func activeFilter(sessionID string) bson.M {
	return bson.M{
		"_id":    sessionID,
		"status": models.SessionActive,
	}
}

func rotateUpdate(token string, at time.Time) bson.M {
	return bson.M{
		"$set": bson.M{
			"current_token": token,
			"rotated_at":    at,
		},
		"$inc": bson.M{"rotation_count": 1},
	}
}

func stopUpdate(at time.Time) bson.M {
	return bson.M{
		"$set": bson.M{
			"status":     models.SessionStopped,
			"stopped_at": at,
		},
	}
}

func (r *repository) Create(ctx context.Context, session *models.Session) error {
	_, err := r.collection.InsertOne(ctx, session)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.ErrSessionAlreadyActive
		}
		logrus.WithError(err).WithField("session_id", session.ID).Error("Failed to insert session")
		return fmt.Errorf("%w: insert session: %v", models.ErrPersistence, err)
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, sessionID string) (*models.Session, error) {
	var session models.Session
	err := r.collection.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrSessionNotFound
		}
		logrus.WithError(err).WithField("session_id", sessionID).Error("Failed to get session")
		return nil, fmt.Errorf("%w: get session: %v", models.ErrPersistence, err)
	}
	return &session, nil
}

func (r *repository) Rotate(ctx context.Context, sessionID, token string, at time.Time) (*models.Session, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var session models.Session
	err := r.collection.FindOneAndUpdate(ctx, activeFilter(sessionID), rotateUpdate(token, at), opts).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, r.inactiveError(ctx, sessionID)
		}
		logrus.WithError(err).WithField("session_id", sessionID).Error("Failed to rotate session token")
		return nil, fmt.Errorf("%w: rotate session: %v", models.ErrPersistence, err)
	}
	return &session, nil
}

func (r *repository) Stop(ctx context.Context, sessionID string, at time.Time) (*models.Session, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var session models.Session
	err := r.collection.FindOneAndUpdate(ctx, activeFilter(sessionID), stopUpdate(at), opts).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, r.inactiveError(ctx, sessionID)
		}
		logrus.WithError(err).WithField("session_id", sessionID).Error("Failed to stop session")
		return nil, fmt.Errorf("%w: stop session: %v", models.ErrPersistence, err)
	}
	return &session, nil
}

// inactiveError tells a missing session apart from a stopped one after a
// conditional update matched nothing.
func (r *repository) inactiveError(ctx context.Context, sessionID string) error {
	if _, err := r.GetByID(ctx, sessionID); err != nil {
		return err
	}
	return models.ErrInvalidState
}

func (r *repository) ListBySubject(ctx context.Context, subjectID string) ([]*models.Session, error) {
	opts := options.Find().SetSort(bson.M{"started_at": -1})
	return r.find(ctx, bson.M{"subject_id": subjectID}, opts)
}

func (r *repository) ListActive(ctx context.Context) ([]*models.Session, error) {
	return r.find(ctx, bson.M{"status": models.SessionActive}, options.Find())
}

func (r *repository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.Session, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		logrus.WithError(err).Error("Failed to find sessions")
		return nil, fmt.Errorf("%w: find sessions: %v", models.ErrPersistence, err)
	}
	defer cursor.Close(ctx)

	sessions := make([]*models.Session, 0)
	for cursor.Next(ctx) {
		var session models.Session
		if err := cursor.Decode(&session); err != nil {
			logrus.WithError(err).Error("Failed to decode session")
			return nil, fmt.Errorf("%w: decode session: %v", models.ErrPersistence, err)
		}
		sessions = append(sessions, &session)
	}

	if err := cursor.Err(); err != nil {
		logrus.WithError(err).Error("Cursor error")
		return nil, fmt.Errorf("%w: iterate sessions: %v", models.ErrPersistence, err)
	}

	return sessions, nil
}
