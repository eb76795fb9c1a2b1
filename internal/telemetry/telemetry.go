// Package telemetry fans migration engine events out to logs, Prometheus
// metrics and Sentry.
package telemetry

import (
	"context"

	"github.com/tphakala/syncbridge/internal/migration"
)

// Multi forwards every event to each tracker in order. Nil trackers are skipped.
func Multi(trackers ...migration.Telemetry) migration.Telemetry {
	live := make([]migration.Telemetry, 0, len(trackers))
	for _, t := range trackers {
		if t != nil {
			live = append(live, t)
		}
	}
	return multi(live)
}

type multi []migration.Telemetry

func (m multi) Track(ctx context.Context, ev migration.Event) {
	for _, t := range m {
		t.Track(ctx, ev)
	}
}
