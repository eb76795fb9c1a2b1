package migration

import (
	"context"
	"time"
)

// Telemetry event names.
const (
	EventMigrationStarted         = "migration-started"
	EventMigrationCompleted       = "migration-completed"
	EventMigrationCancelRequested = "migration-cancel-requested"
	EventMigrationCancelled       = "migration-cancelled"
	EventPageSkipped              = "page-skipped"
	EventEntityProcessed          = "entity-processed"
	EventEntityFailed             = "entity-failed"
	EventMappingDuplicate         = "mapping-duplicate"
	EventMappingRetried           = "mapping-retried"
	EventMappingLost              = "mapping-lost"
	EventSyncIgnored              = "sync-ignored"
	EventSyncProcessed            = "sync-processed"
	EventSyncFailed               = "sync-failed"
	EventTaskProcessed            = "task-processed"
)

// Event is one observable engine occurrence.
type Event struct {
	Name        string
	MigrationID string
	DomainType  string
	LegacyID    string
	NewID       string
	Outcome     Outcome
	Err         error
	Duration    time.Duration
	Attributes  map[string]string
}

// Telemetry receives engine events. Implementations must be safe for concurrent use.
type Telemetry interface {
	Track(ctx context.Context, ev Event)
}

type nopTelemetry struct{}

func (nopTelemetry) Track(context.Context, Event) {}
