package datastore

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/syncbridge/internal/conf"
	"github.com/tphakala/syncbridge/internal/datastore/entities"
	"github.com/tphakala/syncbridge/internal/errors"
	"github.com/tphakala/syncbridge/internal/logger"
)

func TestOpenSQLiteCreatesSchema(t *testing.T) {
	var settings conf.DatabaseSettings
	settings.Type = "sqlite"
	settings.SQLite.Path = filepath.Join(t.TempDir(), "data", "syncbridge.db")
	settings.SlowQueryThreshold = time.Second

	var buf bytes.Buffer
	m, err := Open(settings, logger.NewSlogLogger(&buf, logger.LogLevelDebug, time.UTC))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	assert.Equal(t, "sqlite", m.Dialect())
	assert.Equal(t, settings.SQLite.Path, m.Location())
	for _, table := range []any{&entities.MappingRecord{}, &entities.MigrationHistory{}, &entities.QueueMessage{}} {
		assert.True(t, m.DB().Migrator().HasTable(table))
	}
	require.NoError(t, m.Ping(t.Context()))
}

func TestOpenRejectsUnknownType(t *testing.T) {
	_, err := Open(conf.DatabaseSettings{Type: "oracle"}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}
