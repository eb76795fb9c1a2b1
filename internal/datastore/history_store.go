package datastore

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tphakala/syncbridge/internal/datastore/entities"
	"github.com/tphakala/syncbridge/internal/errors"
	"github.com/tphakala/syncbridge/internal/migration"
)

// HistoryStore is the GORM implementation of migration.HistoryStore. Status
// transitions are single conditional UPDATEs so that concurrent workers and
// processes cannot both win the same transition.
type HistoryStore struct {
	db *gorm.DB
}

var _ migration.HistoryStore = (*HistoryStore)(nil)

// NewHistoryStore creates a history store on db.
func NewHistoryStore(db *gorm.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// Create inserts a new history row.
func (s *HistoryStore) Create(ctx context.Context, h migration.History) error {
	row := fromHistory(h)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return dbError(err, "create", "migration_history")
	}
	return nil
}

// Get returns one history row.
func (s *HistoryStore) Get(ctx context.Context, migrationID string) (*migration.History, error) {
	var row entities.MigrationHistory
	err := s.db.WithContext(ctx).Where("migration_id = ?", migrationID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(migrationID)
	}
	if err != nil {
		return nil, dbError(err, "get", "migration_history")
	}
	h := toHistory(row)
	return &h, nil
}

// List returns history rows matching q, most recent first.
func (s *HistoryStore) List(ctx context.Context, q migration.HistoryQuery) ([]migration.History, error) {
	query := s.db.WithContext(ctx).Model(&entities.MigrationHistory{})
	if q.MigrationID != "" {
		query = query.Where("migration_id = ?", q.MigrationID)
	}
	if q.DomainType != "" {
		query = query.Where("domain_type = ?", q.DomainType)
	}
	if q.Status != "" {
		query = query.Where("status = ?", string(q.Status))
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	var rows []entities.MigrationHistory
	if err := query.Order("when_started DESC").Find(&rows).Error; err != nil {
		return nil, dbError(err, "list", "migration_history")
	}
	out := make([]migration.History, 0, len(rows))
	for _, row := range rows {
		out = append(out, toHistory(row))
	}
	return out, nil
}

// RequestCancel moves a STARTED migration to CANCELLED_REQUESTED.
func (s *HistoryStore) RequestCancel(ctx context.Context, migrationID string) error {
	result := s.db.WithContext(ctx).Model(&entities.MigrationHistory{}).
		Where("migration_id = ? AND status = ?", migrationID, string(migration.StatusStarted)).
		Update("status", string(migration.StatusCancelRequested))
	if result.Error != nil {
		return dbError(result.Error, "cancel", "migration_history")
	}
	if result.RowsAffected == 0 {
		return s.transitionRejected(ctx, migrationID, "cancel migration", migration.StatusStarted)
	}
	return nil
}

// Finalize moves a migration from one status to a terminal status and records the
// final counts. Terminal rows never change again.
func (s *HistoryStore) Finalize(ctx context.Context, migrationID string, from, to migration.Status, migrated, failed int64, whenEnded time.Time) error {
	if !to.Terminal() {
		return errors.Newf("cannot finalize migration %s to non-terminal status %s", migrationID, to).
			Component("datastore").
			Category(errors.CategoryValidation).
			Build()
	}

	ended := whenEnded.UTC()
	updates := map[string]any{
		"status":           string(to),
		"when_ended":       &ended,
		"records_migrated": migrated,
		"records_failed":   failed,
	}
	result := s.db.WithContext(ctx).Model(&entities.MigrationHistory{}).
		Where("migration_id = ? AND status = ?", migrationID, string(from)).
		Updates(updates)
	if result.Error != nil {
		return dbError(result.Error, "finalize", "migration_history")
	}
	if result.RowsAffected == 0 {
		return s.transitionRejected(ctx, migrationID, "finalize migration", from)
	}
	return nil
}

// transitionRejected explains why a conditional update matched no row.
func (s *HistoryStore) transitionRejected(ctx context.Context, migrationID, action string, expected migration.Status) error {
	current, err := s.Get(ctx, migrationID)
	if err != nil {
		return err
	}
	return errors.Newf("cannot %s: current status is %s, expected %s", action, current.Status, expected).
		Component("datastore").
		Category(errors.CategoryState).
		Context("migration_id", migrationID).
		Build()
}

func notFound(migrationID string) error {
	return errors.New(fmt.Errorf("migration %s: %w", migrationID, migration.ErrMigrationNotFound)).
		Component("datastore").
		Category(errors.CategoryNotFound).
		Build()
}

func toHistory(row entities.MigrationHistory) migration.History {
	h := migration.History{
		MigrationID:          row.MigrationID,
		DomainType:           row.DomainType,
		Status:               migration.Status(row.Status),
		WhenStarted:          row.WhenStarted.UTC(),
		EstimatedRecordCount: row.EstimatedRecordCount,
		RecordsMigrated:      row.RecordsMigrated,
		RecordsFailed:        row.RecordsFailed,
		SerializedFilter:     row.SerializedFilter,
	}
	if row.WhenEnded != nil {
		ended := row.WhenEnded.UTC()
		h.WhenEnded = &ended
	}
	return h
}

func fromHistory(h migration.History) entities.MigrationHistory {
	row := entities.MigrationHistory{
		MigrationID:          h.MigrationID,
		DomainType:           h.DomainType,
		Status:               string(h.Status),
		WhenStarted:          h.WhenStarted.UTC(),
		EstimatedRecordCount: h.EstimatedRecordCount,
		RecordsMigrated:      h.RecordsMigrated,
		RecordsFailed:        h.RecordsFailed,
		SerializedFilter:     h.SerializedFilter,
	}
	if h.WhenEnded != nil {
		ended := h.WhenEnded.UTC()
		row.WhenEnded = &ended
	}
	return row
}
