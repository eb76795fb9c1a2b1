package telemetry

import (
	"context"
	"maps"
	"slices"

	"github.com/tphakala/syncbridge/internal/logger"
	"github.com/tphakala/syncbridge/internal/migration"
)

// LogTracker writes events to a logger. Per-entity and per-task events are
// logged at debug level, lifecycle events at info and failures at warn.
type LogTracker struct {
	log logger.Logger
}

// NewLogTracker returns a tracker logging to log.
func NewLogTracker(log logger.Logger) *LogTracker {
	return &LogTracker{log: log.Module("telemetry")}
}

func (t *LogTracker) Track(ctx context.Context, ev migration.Event) {
	fields := []logger.Field{logger.String("event", ev.Name), logger.String("domain", ev.DomainType)}
	if ev.MigrationID != "" {
		fields = append(fields, logger.String("migration_id", ev.MigrationID))
	}
	if ev.LegacyID != "" {
		fields = append(fields, logger.String("legacy_id", ev.LegacyID))
	}
	if ev.NewID != "" {
		fields = append(fields, logger.String("new_id", ev.NewID))
	}
	if ev.Outcome != "" {
		fields = append(fields, logger.String("outcome", string(ev.Outcome)))
	}
	if ev.Duration > 0 {
		fields = append(fields, logger.Duration("duration", ev.Duration))
	}
	for _, k := range slices.Sorted(maps.Keys(ev.Attributes)) {
		fields = append(fields, logger.String(k, ev.Attributes[k]))
	}

	log := t.log.WithContext(ctx)
	if ev.Err != nil {
		log.Warn(ev.Name, append(fields, logger.Error(ev.Err))...)
		return
	}
	switch ev.Name {
	case migration.EventMigrationStarted, migration.EventMigrationCompleted,
		migration.EventMigrationCancelRequested, migration.EventMigrationCancelled,
		migration.EventMappingDuplicate:
		log.Info(ev.Name, fields...)
	default:
		log.Debug(ev.Name, fields...)
	}
}
