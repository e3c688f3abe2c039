package subject

import (
	"context"
	"errors"
	"fmt"

	"qr-attendance-svc/src/clients"
	"qr-attendance-svc/src/internal/models"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Repository interface {
	Create(ctx context.Context, subject *models.Subject) error
	GetByID(ctx context.Context, subjectID string) (*models.Subject, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]*models.Subject, error)
}

type repository struct {
	collection *mongo.Collection
}

func NewSubjectRepository(db *clients.MongoDB, collectionName string) Repository {
	collection := db.Database.Collection(collectionName)
	return &repository{collection: collection}
}

func EnsureIndexes(ctx context.Context, db *clients.MongoDB, collectionName string) error {
	collection := db.Database.Collection(collectionName)
	if _, err := collection.Indexes().CreateOne(ctx, subjectIndex()); err != nil {
		return fmt.Errorf("create subject indexes: %w", err)
	}
	return nil
}

// subjectIndex serves ListByTeacher newest-first.
func subjectIndex() mongo.IndexModel {
	return mongo.IndexModel{
		Keys: bson.D{{Key: "teacher_id", Value: 1}, {Key: "created_at", Value: -1}},
	}
}

func (r *repository) Create(ctx context.Context, subject *models.Subject) error {
	if _, err := r.collection.InsertOne(ctx, subject); err != nil {
		logrus.WithError(err).WithField("subject_id", subject.ID).Error("Failed to insert subject")
		return fmt.Errorf("%w: insert subject: %v", models.ErrPersistence, err)
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, subjectID string) (*models.Subject, error) {
	var subject models.Subject
	err := r.collection.FindOne(ctx, bson.M{"_id": subjectID}).Decode(&subject)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.ErrSubjectNotFound
		}
		logrus.WithError(err).WithField("subject_id", subjectID).Error("Failed to get subject")
		return nil, fmt.Errorf("%w: get subject: %v", models.ErrPersistence, err)
	}
	return &subject, nil
}

func (r *repository) ListByTeacher(ctx context.Context, teacherID string) ([]*models.Subject, error) {
	opts := options.Find().SetSort(bson.M{"created_at": -1})
	cursor, err := r.collection.Find(ctx, bson.M{"teacher_id": teacherID}, opts)
	if err != nil {
		logrus.WithError(err).WithField("teacher_id", teacherID).Error("Failed to list subjects")
		return nil, fmt.Errorf("%w: list subjects: %v", models.ErrPersistence, err)
	}
	defer cursor.Close(ctx)

	subjects := make([]*models.Subject, 0)
	if err := cursor.All(ctx, &subjects); err != nil {
		return nil, fmt.Errorf("%w: decode subjects: %v", models.ErrPersistence, err)
	}
	return subjects, nil
}
