package datastore

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/tphakala/syncbridge/internal/datastore/entities"
	"github.com/tphakala/syncbridge/internal/errors"
	"github.com/tphakala/syncbridge/internal/migration"
)

// MappingStore is the GORM implementation of migration.MappingStore. Every
// store is bound to one domain; legacy and new ids are unique per domain only.
type MappingStore struct {
	db         *gorm.DB
	domainType string
}

var _ migration.MappingStore = (*MappingStore)(nil)

// NewMappingStore creates a mapping store of domainType on db.
func NewMappingStore(db *gorm.DB, domainType string) *MappingStore {
	return &MappingStore{db: db, domainType: domainType}
}

func (s *MappingStore) scope(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Where("domain_type = ?", s.domainType)
}

// GetByLegacyID returns the mapping of legacyID or migration.ErrMappingNotFound.
func (s *MappingStore) GetByLegacyID(ctx context.Context, legacyID string) (*migration.MappingRecord, error) {
	var row entities.MappingRecord
	err := s.scope(ctx).Where("legacy_id = ?", legacyID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.New(fmt.Errorf("legacy id %s: %w", legacyID, migration.ErrMappingNotFound)).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Context("domain", s.domainType).
			Build()
	}
	if err != nil {
		return nil, dbError(err, "get", "mapping_records")
	}
	rec := toMappingRecord(row)
	return &rec, nil
}

// Create inserts record. When the legacy id or the new id is already mapped, the
// colliding row is returned inside a *migration.DuplicateMappingError.
func (s *MappingStore) Create(ctx context.Context, record migration.MappingRecord) error {
	row := fromMappingRecord(record)
	row.DomainType = s.domainType
	err := s.db.WithContext(ctx).Create(&row).Error
	if err == nil {
		return nil
	}
	if !isDuplicateKey(err) {
		return dbError(err, "create", "mapping_records")
	}

	var existing entities.MappingRecord
	lookup := s.scope(ctx).
		Where("(legacy_id = ? OR new_id = ?)", record.LegacyID, record.NewID).
		Order("id").
		Take(&existing).Error
	if lookup != nil {
		return dbError(fmt.Errorf("load conflicting mapping: %w", lookup), "create", "mapping_records")
	}
	return &migration.DuplicateMappingError{
		Existing:  toMappingRecord(existing),
		Duplicate: record,
	}
}

// CountByLabel counts mappings written by one migration.
func (s *MappingStore) CountByLabel(ctx context.Context, label string) (int64, error) {
	var n int64
	err := s.scope(ctx).Model(&entities.MappingRecord{}).Where("label = ?", label).Count(&n).Error
	if err != nil {
		return 0, dbError(err, "count", "mapping_records")
	}
	return n, nil
}

func toMappingRecord(row entities.MappingRecord) migration.MappingRecord {
	return migration.MappingRecord{
		LegacyID:    row.LegacyID,
		NewID:       row.NewID,
		MappingType: migration.MappingType(row.MappingType),
		Label:       row.Label,
		WhenCreated: row.WhenCreated.UTC(),
	}
}

func fromMappingRecord(rec migration.MappingRecord) entities.MappingRecord {
	return entities.MappingRecord{
		LegacyID:    rec.LegacyID,
		NewID:       rec.NewID,
		MappingType: string(rec.MappingType),
		Label:       rec.Label,
		WhenCreated: rec.WhenCreated.UTC(),
	}
}
