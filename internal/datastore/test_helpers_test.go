package datastore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tphakala/syncbridge/internal/migration"
)

// newTestManager opens a migrated in-memory SQLite database.
func newTestManager(t *testing.T) *Manager {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Discard,
	})
	require.NoError(t, err)

	m, err := OpenDB(db, "sqlite")
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

var testTime = time.Date(2024, 5, 10, 8, 30, 0, 0, time.UTC)

func mapping(legacyID, newID, label string) migration.MappingRecord {
	return migration.MappingRecord{
		LegacyID:    legacyID,
		NewID:       newID,
		MappingType: migration.MappingMigrated,
		Label:       label,
		WhenCreated: testTime,
	}
}

func history(id, domain string, status migration.Status, started time.Time) migration.History {
	return migration.History{
		MigrationID:          id,
		DomainType:           domain,
		Status:               status,
		WhenStarted:          started,
		EstimatedRecordCount: 14,
		SerializedFilter:     `{"siteId":"NTH"}`,
	}
}
