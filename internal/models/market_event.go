package models

import (
	"time"

	"gorm.io/datatypes"
)

// MarketEvent is one row of the append-only event log. Rows are written in
// the same transaction as the state transition they describe; ID order is
// the log order consumed by the projection.
type MarketEvent struct {
	ID   uint64 `gorm:"primaryKey;autoIncrement"`
	Type string `gorm:"type:varchar(40);not null;index"`

	BetID  *uint64 `gorm:"index"`
	Bucket *int64  `gorm:"index"`
	Bettor string  `gorm:"type:varchar(100);index"`

	Payload datatypes.JSON `gorm:"type:jsonb;not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (MarketEvent) TableName() string {
	return "market_events"
}
