package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/stitts-dev/pick-research/pkg/logger"
)

type DB struct {
	*gorm.DB
}

type ConnectionConfig struct {
	DatabaseURL     string
	IsDevelopment   bool
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	SlowQuery       time.Duration

	// Connect attempts before giving up; the database container may still
	// be starting when the server or a scheduled CLI run comes up.
	ConnectAttempts int
	ConnectBackoff  time.Duration

	Logger *logrus.Logger
}

// NewConnection opens the store with the pool sizing used by the server and CLI.
func NewConnection(databaseURL string, isDevelopment bool, log *logrus.Logger) (*DB, error) {
	return NewConnectionWithConfig(ConnectionConfig{
		DatabaseURL:     databaseURL,
		IsDevelopment:   isDevelopment,
		MaxIdleConns:    5,
		MaxOpenConns:    20,
		ConnMaxLifetime: time.Hour,
		SlowQuery:       500 * time.Millisecond,
		ConnectAttempts: 3,
		ConnectBackoff:  2 * time.Second,
		Logger:          log,
	})
}

func NewConnectionWithConfig(config ConnectionConfig) (*DB, error) {
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}
	if config.ConnectAttempts <= 0 {
		config.ConnectAttempts = 1
	}

	var (
		db  *gorm.DB
		err error
	)
	for attempt := 1; attempt <= config.ConnectAttempts; attempt++ {
		db, err = open(config)
		if err == nil {
			break
		}
		if attempt < config.ConnectAttempts {
			config.Logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"error":   err.Error(),
			}).Warn("Database not reachable, retrying")
			time.Sleep(config.ConnectBackoff * time.Duration(attempt))
		}
	}
	if err != nil {
		return nil, err
	}

	config.Logger.WithFields(logrus.Fields{
		"dialect":           db.Dialector.Name(),
		"max_idle_conns":    config.MaxIdleConns,
		"max_open_conns":    config.MaxOpenConns,
		"conn_max_lifetime": config.ConnMaxLifetime,
	}).Info("Database connection established successfully")

	return &DB{db}, nil
}

func open(config ConnectionConfig) (*gorm.DB, error) {
	level := gormlogger.Error
	if config.IsDevelopment {
		level = gormlogger.Warn
	}

	db, err := gorm.Open(dialector(config.DatabaseURL), &gorm.Config{
		Logger: newGormLogger(config.Logger, config.SlowQuery, level),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// newGormLogger routes gorm's slow-query and error output through logrus.
func newGormLogger(log *logrus.Logger, slow time.Duration, level gormlogger.LogLevel) gormlogger.Interface {
	return gormlogger.New(logger.Component(log, "gorm"), gormlogger.Config{
		SlowThreshold:             slow,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

// NewInMemory opens a private sqlite database, used by tests and dry runs.
func NewInMemory() (*DB, error) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// every pooled connection would otherwise get its own empty database
	sqlDB.SetMaxOpenConns(1)
	return &DB{db}, nil
}

// dialector picks sqlite for sqlite:// URLs and postgres for everything else.
func dialector(databaseURL string) gorm.Dialector {
	if strings.HasPrefix(databaseURL, "sqlite://") {
		return sqlite.Open(strings.TrimPrefix(databaseURL, "sqlite://"))
	}
	return postgres.Open(databaseURL)
}

func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// HealthCheck pings the pool within ctx.
func (db *DB) HealthCheck(ctx context.Context) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}
