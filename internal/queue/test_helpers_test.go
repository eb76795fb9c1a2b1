package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tphakala/syncbridge/internal/datastore/entities"
)

// MockClock is a manually advanced clock.
type MockClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewMockClock() *MockClock {
	return &MockClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newTestDB opens an in-memory SQLite database with the queue schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// Each connection to :memory: is a separate database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&entities.QueueMessage{}))
	return db
}

// backends returns a constructor per queue implementation so that every
// behavior is checked against all of them.
func backends() map[string]func(t *testing.T, opts Options) Queue {
	return map[string]func(t *testing.T, opts Options) Queue{
		"memory": func(_ *testing.T, opts Options) Queue {
			return NewMemoryQueue(opts)
		},
		"database": func(t *testing.T, opts Options) Queue {
			return NewDatabaseQueue(newTestDB(t), "test", opts)
		},
	}
}
