package entities

import "time"

// QueueMessage is one task of the database-backed queue. Receipt is set while the
// message is in flight and cleared on release; Dead marks dead letters.
type QueueMessage struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)"`
	QueueName   string    `gorm:"type:varchar(64);not null;index:idx_queue_visible,priority:1;index:idx_queue_migration,priority:1"`
	MigrationID string    `gorm:"type:varchar(64);index:idx_queue_migration,priority:2"`
	Kind        string    `gorm:"type:varchar(32);not null"`
	Control     bool      `gorm:"not null;default:false"`
	Body        []byte    `gorm:"type:bytes"`
	Deliveries  int       `gorm:"not null;default:0"`
	Dead        bool      `gorm:"not null;default:false;index:idx_queue_visible,priority:2"`
	VisibleAt   time.Time `gorm:"not null;index:idx_queue_visible,priority:3"`
	Receipt     string    `gorm:"type:varchar(36);index:idx_queue_receipt"`
	SentAt      time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM.
func (QueueMessage) TableName() string {
	return "queue_messages"
}
