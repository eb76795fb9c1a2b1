// Package metrics provides the Prometheus collectors of syncbridge components.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// MigrationMetrics contains the Prometheus metrics of the migration engines.
type MigrationMetrics struct {
	migrationsStarted  *prometheus.CounterVec
	migrationsFinished *prometheus.CounterVec
	entityOutcomes     *prometheus.CounterVec
	entityFailures     *prometheus.CounterVec
	pagesSkipped       *prometheus.CounterVec
	syncEvents         *prometheus.CounterVec
	taskDuration       *prometheus.HistogramVec
}

// NewMigrationMetrics creates the engine metrics and registers them with registry.
func NewMigrationMetrics(registry prometheus.Registerer) (*MigrationMetrics, error) {
	m := &MigrationMetrics{}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register migration metrics: %w", err)
	}
	return m, nil
}

func (m *MigrationMetrics) initMetrics() {
	m.migrationsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncbridge_migrations_started_total",
			Help: "Total number of migrations started",
		},
		[]string{"domain"},
	)

	m.migrationsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncbridge_migrations_finished_total",
			Help: "Total number of migrations that reached a terminal status",
		},
		[]string{"domain", "status"}, // status: COMPLETED, CANCELLED
	)

	m.entityOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncbridge_entities_total",
			Help: "Entities written by migrations, by outcome",
		},
		[]string{"domain", "outcome"}, // outcome: created, already-migrated, duplicate, mapping-deferred
	)

	m.entityFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncbridge_entity_failures_total",
			Help: "Entity task attempts that failed, by error category",
		},
		[]string{"domain", "category"},
	)

	m.pagesSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncbridge_pages_skipped_total",
			Help: "Pages skipped because their migration was no longer running",
		},
		[]string{"domain"},
	)

	m.syncEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "syncbridge_sync_events_total",
			Help: "Change events applied by the sync handler, by outcome",
		},
		[]string{"domain", "event_type", "outcome"},
	)

	m.taskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "syncbridge_task_duration_seconds",
			Help:    "Time spent handling one queued task",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"domain", "kind", "status"},
	)
}

// RecordMigrationStarted counts a started migration.
func (m *MigrationMetrics) RecordMigrationStarted(domain string) {
	m.migrationsStarted.WithLabelValues(domain).Inc()
}

// RecordMigrationFinished counts a migration reaching status.
func (m *MigrationMetrics) RecordMigrationFinished(domain, status string) {
	m.migrationsFinished.WithLabelValues(domain, status).Inc()
}

// RecordEntity counts one entity outcome.
func (m *MigrationMetrics) RecordEntity(domain, outcome string) {
	m.entityOutcomes.WithLabelValues(domain, outcome).Inc()
}

// RecordEntityFailure counts a failed entity attempt.
func (m *MigrationMetrics) RecordEntityFailure(domain, category string) {
	m.entityFailures.WithLabelValues(domain, category).Inc()
}

// RecordPageSkipped counts a skipped page.
func (m *MigrationMetrics) RecordPageSkipped(domain string) {
	m.pagesSkipped.WithLabelValues(domain).Inc()
}

// RecordSyncEvent counts an applied change event. outcome is "failed" for errors.
func (m *MigrationMetrics) RecordSyncEvent(domain, eventType, outcome string) {
	m.syncEvents.WithLabelValues(domain, eventType, outcome).Inc()
}

// ObserveTask records how long a task took.
func (m *MigrationMetrics) ObserveTask(domain, kind, status string, seconds float64) {
	m.taskDuration.WithLabelValues(domain, kind, status).Observe(seconds)
}

// Describe implements the prometheus.Collector interface.
func (m *MigrationMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.migrationsStarted.Describe(ch)
	m.migrationsFinished.Describe(ch)
	m.entityOutcomes.Describe(ch)
	m.entityFailures.Describe(ch)
	m.pagesSkipped.Describe(ch)
	m.syncEvents.Describe(ch)
	m.taskDuration.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *MigrationMetrics) Collect(ch chan<- prometheus.Metric) {
	m.migrationsStarted.Collect(ch)
	m.migrationsFinished.Collect(ch)
	m.entityOutcomes.Collect(ch)
	m.entityFailures.Collect(ch)
	m.pagesSkipped.Collect(ch)
	m.syncEvents.Collect(ch)
	m.taskDuration.Collect(ch)
}
