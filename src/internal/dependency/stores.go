package dependency

import (
	"context"
	"fmt"
	"time"

	"qr-attendance-svc/src/clients"
	"qr-attendance-svc/src/internal/attendance"
	"qr-attendance-svc/src/internal/config"
	"qr-attendance-svc/src/internal/session"
	"qr-attendance-svc/src/internal/storage/sqlite"
	"qr-attendance-svc/src/internal/subject"

	"github.com/sirupsen/logrus"
)

// Stores is the persistence backend selected by database.driver.
type Stores struct {
	Driver     string
	Sessions   session.Repository
	Attendance attendance.Repository
	Subjects   subject.Repository

	ping  func(ctx context.Context) error
	close func(ctx context.Context) error
}

func (s *Stores) Ping(ctx context.Context) error {
	return s.ping(ctx)
}

func (s *Stores) Close(ctx context.Context) error {
	return s.close(ctx)
}

// OpenStores connects the configured backend and prepares its indexes or
// schema.
func OpenStores(ctx context.Context, cfg *config.Configuration) (*Stores, error) {
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.Database.SQLitePath)
		if err != nil {
			return nil, err
		}
		logrus.WithField("path", cfg.Database.SQLitePath).Info("Using SQLite store")
		return NewSQLiteStores(db), nil

	case config.DriverMongo:
		mongodb, err := clients.NewMongoDB(&cfg.Database)
		if err != nil {
			return nil, err
		}
		stores, err := NewMongoStores(ctx, mongodb, &cfg.Database)
		if err != nil {
			_ = mongodb.Close(context.Background())
			return nil, err
		}
		return stores, nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

func NewSQLiteStores(db *sqlite.DB) *Stores {
	return &Stores{
		Driver:     config.DriverSQLite,
		Sessions:   db.Sessions(),
		Attendance: db.Attendance(),
		Subjects:   db.Subjects(),
		ping:       db.Ping,
		close:      func(context.Context) error { return db.Close() },
	}
}

func NewMongoStores(ctx context.Context, mongodb *clients.MongoDB, cfg *config.Database) (*Stores, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Timeout)*time.Second)
	defer cancel()

	collections := cfg.Collections
	if err := session.EnsureIndexes(ctx, mongodb, collections.Sessions); err != nil {
		return nil, err
	}
	if err := attendance.EnsureIndexes(ctx, mongodb, collections.Attendance); err != nil {
		return nil, err
	}
	if err := subject.EnsureIndexes(ctx, mongodb, collections.Subjects); err != nil {
		return nil, err
	}

	return &Stores{
		Driver:     config.DriverMongo,
		Sessions:   session.NewSessionRepository(mongodb, collections.Sessions),
		Attendance: attendance.NewAttendanceRepository(mongodb, collections.Attendance, collections.Sessions),
		Subjects:   subject.NewSubjectRepository(mongodb, collections.Subjects),
		ping:       mongodb.Ping,
		close:      mongodb.Close,
	}, nil
}
