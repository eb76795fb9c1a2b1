package telemetry

import (
	"context"

	"github.com/tphakala/syncbridge/internal/errors"
	"github.com/tphakala/syncbridge/internal/migration"
	"github.com/tphakala/syncbridge/internal/observability/metrics"
)

// MetricsTracker turns events into Prometheus samples.
type MetricsTracker struct {
	m *metrics.MigrationMetrics
}

// NewMetricsTracker returns a tracker recording into m.
func NewMetricsTracker(m *metrics.MigrationMetrics) *MetricsTracker {
	return &MetricsTracker{m: m}
}

func (t *MetricsTracker) Track(_ context.Context, ev migration.Event) {
	domain := ev.DomainType
	switch ev.Name {
	case migration.EventMigrationStarted:
		t.m.RecordMigrationStarted(domain)
	case migration.EventMigrationCompleted:
		t.m.RecordMigrationFinished(domain, string(migration.StatusCompleted))
	case migration.EventMigrationCancelled:
		t.m.RecordMigrationFinished(domain, string(migration.StatusCancelled))
	case migration.EventEntityProcessed, migration.EventMappingRetried:
		t.m.RecordEntity(domain, string(ev.Outcome))
	case migration.EventEntityFailed:
		t.m.RecordEntityFailure(domain, categoryOf(ev.Err))
	case migration.EventPageSkipped:
		t.m.RecordPageSkipped(domain)
	case migration.EventSyncProcessed, migration.EventSyncIgnored:
		t.m.RecordSyncEvent(domain, eventType(ev), string(ev.Outcome))
	case migration.EventSyncFailed:
		t.m.RecordSyncEvent(domain, eventType(ev), "failed")
	case migration.EventTaskProcessed:
		status := metrics.StatusSuccess
		if ev.Err != nil {
			status = metrics.StatusError
		}
		t.m.ObserveTask(domain, ev.Attributes["kind"], status, ev.Duration.Seconds())
	}
}

func categoryOf(err error) string {
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		return ee.GetCategory()
	}
	return string(errors.CategoryGeneric)
}

// eventType is "unknown" for payloads that failed to decode.
func eventType(ev migration.Event) string {
	if t := ev.Attributes["event_type"]; t != "" {
		return t
	}
	return "unknown"
}
