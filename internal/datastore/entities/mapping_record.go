package entities

import "time"

// MappingRecord links one legacy id to one target id within a domain. Rows are
// never updated.
type MappingRecord struct {
	ID          uint      `gorm:"primaryKey"`
	DomainType  string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_mapping_domain_legacy,priority:1;uniqueIndex:idx_mapping_domain_new,priority:1;index:idx_mapping_domain_label,priority:1"`
	LegacyID    string    `gorm:"type:varchar(191);not null;uniqueIndex:idx_mapping_domain_legacy,priority:2"`
	NewID       string    `gorm:"type:varchar(191);not null;uniqueIndex:idx_mapping_domain_new,priority:2"`
	MappingType string    `gorm:"type:varchar(20);not null"`
	Label       string    `gorm:"type:varchar(64);index:idx_mapping_domain_label,priority:2"`
	WhenCreated time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM.
func (MappingRecord) TableName() string {
	return "mapping_records"
}
