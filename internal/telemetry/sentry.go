package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/syncbridge/internal/conf"
	"github.com/tphakala/syncbridge/internal/errors"
	"github.com/tphakala/syncbridge/internal/migration"
)

// InitSentry initializes the global Sentry client and enables error reporting
// from the errors package. It does nothing unless Sentry is enabled. transport
// is used by tests; nil selects the SDK's HTTP transport.
func InitSentry(settings *conf.Settings, release string, transport sentry.Transport) error {
	if !settings.Sentry.Enabled {
		return nil
	}

	sampleRate := settings.Sentry.SampleRate
	if sampleRate <= 0 {
		sampleRate = 1.0
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.Sentry.DSN,
		Transport:        transport,
		SampleRate:       sampleRate,
		AttachStacktrace: false,
		Environment:      settings.Sentry.Environment,
		ServerName:       settings.Main.Name,
		Release:          fmt.Sprintf("syncbridge@%s", release),
	})
	if err != nil {
		return errors.New(fmt.Errorf("sentry initialization failed: %w", err)).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("instance", settings.Main.Name)
		scope.SetContext("application", map[string]any{
			"name":    "syncbridge",
			"version": release,
			"domains": len(settings.Domains),
		})
	})

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	return nil
}

// Flush waits for buffered Sentry events to be sent.
func Flush(timeout time.Duration) {
	sentry.Flush(timeout)
}

// SentryTracker records engine events as breadcrumbs and reports migration
// lifecycle milestones as messages. Errors are reported by the errors package
// when they are built, so they are not captured twice here.
type SentryTracker struct {
	hub *sentry.Hub
}

// NewSentryTracker returns a tracker using hub, or the current hub when nil.
func NewSentryTracker(hub *sentry.Hub) *SentryTracker {
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	return &SentryTracker{hub: hub}
}

func (t *SentryTracker) Track(_ context.Context, ev migration.Event) {
	level := sentry.LevelInfo
	if ev.Err != nil {
		level = sentry.LevelWarning
	}
	if ev.Name == migration.EventMappingLost {
		level = sentry.LevelError
	}

	switch ev.Name {
	case migration.EventEntityProcessed, migration.EventTaskProcessed, migration.EventSyncIgnored:
		// Too frequent to be useful as breadcrumbs.
		return
	case migration.EventMigrationCompleted, migration.EventMigrationCancelled,
		migration.EventMappingDuplicate, migration.EventMappingLost:
		t.hub.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("domain", ev.DomainType)
			scope.SetTag("event", ev.Name)
			if ev.MigrationID != "" {
				scope.SetTag("migration_id", ev.MigrationID)
			}
			extra := make(map[string]any, len(ev.Attributes))
			for k, v := range ev.Attributes {
				extra[k] = v
			}
			scope.SetContext("event", extra)
			scope.SetLevel(level)
			t.hub.CaptureMessage(fmt.Sprintf("%s: %s", ev.DomainType, ev.Name))
		})
		return
	}

	data := map[string]any{"domain": ev.DomainType}
	if ev.MigrationID != "" {
		data["migration_id"] = ev.MigrationID
	}
	if ev.LegacyID != "" {
		data["legacy_id"] = ev.LegacyID
	}
	if ev.Err != nil {
		data["error"] = ev.Err.Error()
	}
	t.hub.AddBreadcrumb(&sentry.Breadcrumb{
		Category: "migration",
		Message:  ev.Name,
		Level:    level,
		Data:     data,
	}, nil)
}
