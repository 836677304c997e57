package indexer

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NameEvent is one indexed registry notification. Amounts are kept as
// decimal strings so no driver needs a big-number column type.
type NameEvent struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sequence    uint64    `gorm:"uniqueIndex;not null"`
	Height      uint64    `gorm:"index"`
	Type        string    `gorm:"index;not null"`
	Name        string    `gorm:"index"`
	NameHash    string
	Owner       string `gorm:"index"`
	Caller      string
	Fingerprint string
	Fee         string
	Locked      string
	Amount      string
	ExpiresAt   int64
	Timestamp   int64
	CreatedAt   time.Time
}

// TableName pins the table name across drivers.
func (NameEvent) TableName() string { return "name_events" }

// AutoMigrate creates or updates the indexer schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&NameEvent{})
}
