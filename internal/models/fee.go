package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fee is one collected placement fee, keyed by the event that reported it so
// replays upsert instead of duplicating.
type Fee struct {
	EventID uint64          `gorm:"primaryKey;autoIncrement:false"`
	BetID   uint64          `gorm:"not null;index"`
	Bettor  string          `gorm:"type:varchar(100);index"`
	Amount  decimal.Decimal `gorm:"type:numeric(30,0);not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (Fee) TableName() string {
	return "fees"
}
