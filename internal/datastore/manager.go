// Package datastore persists mapping records, migration history and durable queue
// messages with GORM on SQLite, MySQL or PostgreSQL.
package datastore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tphakala/syncbridge/internal/conf"
	"github.com/tphakala/syncbridge/internal/datastore/entities"
	"github.com/tphakala/syncbridge/internal/errors"
	"github.com/tphakala/syncbridge/internal/logger"
)

// Manager owns the database connection and schema.
type Manager struct {
	db       *gorm.DB
	dialect  string
	location string // path or host/database, for display
}

// Open connects to the configured database and migrates the schema.
func Open(settings conf.DatabaseSettings, log logger.Logger) (*Manager, error) {
	dialector, location, err := dialectorFor(settings)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, gormConfig(settings, log))
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to open %s database: %w", settings.Type, err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("location", location).
			Build()
	}
	return newManager(db, settings.Type, location)
}

// OpenDB wraps an existing GORM connection, for tests and embedded use.
func OpenDB(db *gorm.DB, dialect string) (*Manager, error) {
	return newManager(db, dialect, dialect)
}

func newManager(db *gorm.DB, dialect, location string) (*Manager, error) {
	m := &Manager{db: db, dialect: dialect, location: location}

	if sqlDB, err := db.DB(); err == nil {
		switch dialect {
		case "sqlite":
			// SQLite allows a single writer.
			sqlDB.SetMaxOpenConns(1)
		default:
			sqlDB.SetMaxIdleConns(10)
			sqlDB.SetMaxOpenConns(50)
			sqlDB.SetConnMaxLifetime(time.Hour)
		}
	}

	if err := m.Initialize(); err != nil {
		return nil, err
	}
	return m, nil
}

// Initialize creates or updates the schema.
func (m *Manager) Initialize() error {
	err := m.db.AutoMigrate(
		&entities.MappingRecord{},
		&entities.MigrationHistory{},
		&entities.QueueMessage{},
	)
	if err != nil {
		return errors.New(fmt.Errorf("failed to migrate schema: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return nil
}

// DB returns the underlying GORM connection.
func (m *Manager) DB() *gorm.DB {
	return m.db
}

// Dialect returns sqlite, mysql or postgres.
func (m *Manager) Dialect() string {
	return m.dialect
}

// Location describes where the data lives.
func (m *Manager) Location() string {
	return m.location
}

// Ping checks that the database is reachable.
func (m *Manager) Ping(ctx context.Context) error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying database: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return errors.New(fmt.Errorf("database ping failed: %w", err)).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return nil
}

// Close closes the database connection.
func (m *Manager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying database: %w", err)
	}
	return sqlDB.Close()
}

func dialectorFor(s conf.DatabaseSettings) (gorm.Dialector, string, error) {
	switch s.Type {
	case "sqlite", "":
		path := s.SQLite.Path
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, "", fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", path)
		return sqlite.Open(dsn), path, nil
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			s.MySQL.Username, s.MySQL.Password, s.MySQL.Host, s.MySQL.Port, s.MySQL.Database)
		return mysql.Open(dsn), fmt.Sprintf("%s:%d/%s", s.MySQL.Host, s.MySQL.Port, s.MySQL.Database), nil
	case "postgres":
		return postgres.Open(s.Postgres.DSN), "postgres", nil
	default:
		return nil, "", errors.Newf("unsupported database type %q", s.Type).
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

func gormConfig(s conf.DatabaseSettings, log logger.Logger) *gorm.Config {
	cfg := &gorm.Config{
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}
	if log != nil {
		cfg.Logger = logger.NewGormLoggerAdapter(log.Module("datastore"), s.SlowQueryThreshold)
	} else {
		cfg.Logger = gormlogger.Discard
	}
	return cfg
}
