package attendance

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

// Repository is the append-only attendance ledger store. Append must reject a
// second record with the same session and student key atomically, and must
// only insert while the session is active with record.TokenUsed as its current
// token, checked in the same atomic step as the insert.
type Repository interface {
	Append(ctx context.Context, record *models.AttendanceRecord) error
	ListBySession(ctx context.Context, sessionID string) ([]*models.AttendanceRecord, error)
	CountBySession(ctx context.Context, sessionID string) (int64, error)
}

type repository struct {
	client     *mongo.Client
	collection *mongo.Collection
	sessions   *mongo.Collection
}

// NewAttendanceRepository stores records in collectionName and guards every
// insert against the session documents in sessionCollection. The guard runs in
// a multi-document transaction, so the deployment must be a replica set.
func NewAttendanceRepository(db *clients.MongoDB, collectionName, sessionCollection string) Repository {
	return &repository{
		client:     db.Client,
		collection: db.Database.Collection(collectionName),
		sessions:   db.Database.Collection(sessionCollection),
	}
}

func attendanceIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "session_id", Value: 1},
				{Key: "first_name", Value: 1},
				{Key: "last_name", Value: 1},
				{Key: "crn", Value: 1},
			},
			Options: options.Index().SetName("unique_student_per_session").SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "submitted_at", Value: 1}},
		},
	}
}

// EnsureIndexes creates the unique student key index that enforces at most one
// record per student per session.
func EnsureIndexes(ctx context.Context, db *clients.MongoDB, collectionName string) error {
	collection := db.Database.Collection(collectionName)
	if _, err := collection.Indexes().CreateMany(ctx, attendanceIndexes()); err != nil {
		return fmt.Errorf("create attendance indexes: %w", err)
	}
	return nil
}

// admissionGuard matches the session only while it is active and token is
// still current.
func admissionGuard(sessionID, token string) bson.M {
	return bson.M{
		"_id":           sessionID,
		"status":        models.SessionActive,
		"current_token": token,
	}
}

// admissionMark writes to the guarded session document so that a rotation or
// stop racing the insert conflicts with the transaction instead of passing it.
func admissionMark(at time.Time) bson.M {
	return bson.M{"$set": bson.M{"last_admission_at": at}}
}

func (r *repository) Append(ctx context.Context, record *models.AttendanceRecord) error {
	session, err := r.client.StartSession()
	if err != nil {
		return fmt.Errorf("%w: start mongo session: %v", models.ErrPersistence, err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		guard := r.sessions.FindOneAndUpdate(sc, admissionGuard(record.SessionID, record.TokenUsed), admissionMark(record.SubmittedAt))
		if err := guard.Err(); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return nil, r.rejection(sc, record.SessionID)
			}
			return nil, err
		}
		return r.collection.InsertOne(sc, record)
	})
	if err != nil {
		switch {
		case mongo.IsDuplicateKeyError(err):
			return models.ErrDuplicateSubmission
		case rejected(err), errors.Is(err, models.ErrPersistence):
			return err
		}
		logrus.WithError(err).WithField("session_id", record.SessionID).Error("Failed to insert attendance record")
		return fmt.Errorf("%w: insert attendance: %v", models.ErrPersistence, err)
	}
	return nil
}

// rejection explains why the guard matched no session document.
func (r *repository) rejection(ctx context.Context, sessionID string) error {
	var current models.Session
	err := r.sessions.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&current)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return models.ErrSessionNotFound
	case err != nil:
		return fmt.Errorf("%w: get session: %v", models.ErrPersistence, err)
	case !current.IsActive():
		return models.ErrSessionClosed
	}
	return models.ErrTokenExpiredOrInvalid
}

func (r *repository) ListBySession(ctx context.Context, sessionID string) ([]*models.AttendanceRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "submitted_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		logrus.WithError(err).WithField("session_id", sessionID).Error("Failed to list attendance")
		return nil, fmt.Errorf("%w: list attendance: %v", models.ErrPersistence, err)
	}
	defer cursor.Close(ctx)

	records := make([]*models.AttendanceRecord, 0)
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("%w: decode attendance: %v", models.ErrPersistence, err)
	}
	return records, nil
}

func (r *repository) CountBySession(ctx context.Context, sessionID string) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"session_id": sessionID})
	if err != nil {
		return 0, fmt.Errorf("%w: count attendance: %v", models.ErrPersistence, err)
	}
	return count, nil
}
