package entities

import "time"

// MigrationHistory is the audit row of one migration run.
type MigrationHistory struct {
	MigrationID          string     `gorm:"primaryKey;type:varchar(64)"`
	DomainType           string     `gorm:"type:varchar(64);not null;index:idx_history_domain"`
	Status               string     `gorm:"type:varchar(24);not null;index:idx_history_status"`
	WhenStarted          time.Time  `gorm:"not null;index:idx_history_started"`
	WhenEnded            *time.Time `gorm:"default:null"`
	EstimatedRecordCount int64      `gorm:"default:0"`
	RecordsMigrated      int64      `gorm:"default:0"`
	RecordsFailed        int64      `gorm:"default:0"`
	SerializedFilter     string     `gorm:"type:text"`
}

// TableName returns the table name for GORM.
func (MigrationHistory) TableName() string {
	return "migration_history"
}
