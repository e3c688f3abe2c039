package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	DriverMongo  = "mongodb"
	DriverSQLite = "sqlite"

	defaultConfigPath      = "src/internal/config/cfg.yml"
	defaultRotationSeconds = 10
)

type Configuration struct {
	Logs     LogsSettings     `mapstructure:"logs"`
	App      Application      `mapstructure:"app"`
	Database Database         `mapstructure:"database"`
	Queue    QueueConfig      `mapstructure:"queue"`
	Redis    Redis            `mapstructure:"redis"`
	Security SecuritySettings `mapstructure:"security"`
	Server   ServerSettings   `mapstructure:"server"`
	Session  SessionConfig    `mapstructure:"session"`
	Notifier NotifierConfig   `mapstructure:"notifier"`
	Cache    CacheConfig      `mapstructure:"cache"`
	QR       QRConfig         `mapstructure:"qr"`
}

type LogsSettings struct {
	Level            string `mapstructure:"level"`
	Path             string `mapstructure:"log-path"`
	EnableJSONOutput bool   `mapstructure:"enable-json-output"`
}

type Application struct {
	Name     string `mapstructure:"name"`
	Timeout  int    `mapstructure:"timeout"`
	Version  string `mapstructure:"version"`
	HostLink string `mapstructure:"host-link"`
}

type Database struct {
	Driver      string      `mapstructure:"driver"`
	Url         string      `mapstructure:"url"`
	DbName      string      `mapstructure:"dbname"`
	SQLitePath  string      `mapstructure:"sqlite-path"`
	Timeout     int         `mapstructure:"timeout"`
	Collections Collections `mapstructure:"collections"`
}

type Collections struct {
	Sessions   string `mapstructure:"sessions"`
	Attendance string `mapstructure:"attendance"`
	Subjects   string `mapstructure:"subjects"`
}

type QueueConfig struct {
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
}

type RabbitMQConfig struct {
	Url          string `mapstructure:"url"`
	Exchange     string `mapstructure:"exchange"`
	ExchangeType string `mapstructure:"exchange-type"`
	RoutingKey   string `mapstructure:"routing-key"`
	Durable      bool   `mapstructure:"durable"`
	AutoDelete   bool   `mapstructure:"auto-delete"`
	Internal     bool   `mapstructure:"internal"`
	NoWait       bool   `mapstructure:"no-wait"`
}

type Redis struct {
	Url      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	Db       int    `mapstructure:"db"`
}

type SecuritySettings struct {
	JwtKey string `mapstructure:"jwt-key"`
}

type ServerSettings struct {
	Port         string `mapstructure:"port"`
	Mode         string `mapstructure:"mode"`
	ReadTimeout  int    `mapstructure:"read-timeout"`
	WriteTimeout int    `mapstructure:"write-timeout"`
	IdleTimeout  int    `mapstructure:"idle-timeout"`
}

type SessionConfig struct {
	RotationIntervalSeconds int  `mapstructure:"rotation-interval-seconds"`
	ResumeOnStart           bool `mapstructure:"resume-on-start"`
}

// RotationInterval is the token lifetime. Validate guarantees it is positive.
func (s SessionConfig) RotationInterval() time.Duration {
	return time.Duration(s.RotationIntervalSeconds) * time.Second
}

type NotifierConfig struct {
	QueueSize int `mapstructure:"queue-size"`
	TimeoutMs int `mapstructure:"timeout-ms"`
}

type CacheConfig struct {
	SessionExpirationMinutes int    `mapstructure:"session-expiration-minutes"`
	KeyPrefix                string `mapstructure:"key-prefix"`
}

type QRConfig struct {
	Size int `mapstructure:"size"`
}

func Load() *Configuration {
	path := os.Getenv("APP_CONFIG_PATH")
	if path == "" {
		path = defaultConfigPath
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		logrus.Panicf("Error loading configuration: %v", err)
	}
	logrus.Info("Configuration loaded")

	return cfg
}

// LoadFrom reads the YAML file at path, applies environment overrides and
// validates the result.
func LoadFrom(path string) (*Configuration, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}

	applyEnv(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func read(path string) (*Configuration, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yml")
	v.AutomaticEnv()
	v.SetDefault("session.rotation-interval-seconds", defaultRotationSeconds)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config file: %w", err)
	}

	return &config, nil
}

func applyEnv(cfg *Configuration) {
	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		cfg.Database.Driver = driver
	}

	if mongoUri := os.Getenv("MONGODB_URL"); mongoUri != "" {
		cfg.Database.Url = mongoUri
	}

	if dbName := os.Getenv("DB_NAME"); dbName != "" {
		cfg.Database.DbName = dbName
	}

	if sqlitePath := os.Getenv("SQLITE_PATH"); sqlitePath != "" {
		cfg.Database.SQLitePath = sqlitePath
	}

	if redisUrl := os.Getenv("REDIS_URL"); redisUrl != "" {
		cfg.Redis.Url = redisUrl
	}

	if redisDB := os.Getenv("REDIS_DB"); redisDB != "" {
		if db, err := strconv.Atoi(redisDB); err == nil {
			cfg.Redis.Db = db
		}
	}

	if rabbitmqUrl := os.Getenv("RABBITMQ_URL"); rabbitmqUrl != "" {
		cfg.Queue.RabbitMQ.Url = rabbitmqUrl
	}

	if jwtKey := os.Getenv("JWT_KEY"); jwtKey != "" {
		cfg.Security.JwtKey = jwtKey
	}

	if origin := os.Getenv("PUBLIC_ORIGIN"); origin != "" {
		cfg.App.HostLink = origin
	}

	if interval := os.Getenv("ROTATION_INTERVAL_SECONDS"); interval != "" {
		seconds, err := strconv.Atoi(interval)
		if err != nil {
			logrus.WithField("value", interval).Warn("Invalid ROTATION_INTERVAL_SECONDS, ignoring")
		} else {
			cfg.Session.RotationIntervalSeconds = seconds
		}
	}
}

func applyDefaults(cfg *Configuration) {
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverMongo
	}
	if cfg.Database.Collections.Sessions == "" {
		cfg.Database.Collections.Sessions = "sessions"
	}
	if cfg.Database.Collections.Attendance == "" {
		cfg.Database.Collections.Attendance = "attendance"
	}
	if cfg.Database.Collections.Subjects == "" {
		cfg.Database.Collections.Subjects = "subjects"
	}
	if cfg.Notifier.QueueSize <= 0 {
		cfg.Notifier.QueueSize = 256
	}
	if cfg.Notifier.TimeoutMs <= 0 {
		cfg.Notifier.TimeoutMs = 2000
	}
	if cfg.Cache.KeyPrefix == "" {
		cfg.Cache.KeyPrefix = "attendance"
	}
	if cfg.Cache.SessionExpirationMinutes <= 0 {
		cfg.Cache.SessionExpirationMinutes = 60
	}
	if cfg.QR.Size <= 0 {
		cfg.QR.Size = 400
	}
	if cfg.App.Timeout <= 0 {
		cfg.App.Timeout = 10
	}
}

// Validate rejects settings the service cannot run with. An explicit zero
// rotation interval is an error; only a missing key falls back to the default.
func (c *Configuration) Validate() error {
	if c.Session.RotationIntervalSeconds <= 0 {
		return fmt.Errorf("session.rotation-interval-seconds must be a positive integer, got %d",
			c.Session.RotationIntervalSeconds)
	}

	switch c.Database.Driver {
	case DriverMongo:
		if c.Database.Url == "" || c.Database.DbName == "" {
			return fmt.Errorf("database.url and database.dbname are required for driver %q", DriverMongo)
		}
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("database.sqlite-path is required for driver %q", DriverSQLite)
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	if c.Security.JwtKey == "" {
		return fmt.Errorf("security.jwt-key is required")
	}

	return nil
}
