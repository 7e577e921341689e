package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProjectedBet is the read-side mirror of a bet. Its Finalized/Claimed flags
// are the dedup source for the projection handlers: a counter delta is
// applied only on the flag transition, never on a replayed event.
type ProjectedBet struct {
	BetID  uint64 `gorm:"primaryKey;autoIncrement:false"`
	Bettor string `gorm:"type:varchar(100);not null;index"`

	Stake    decimal.Decimal `gorm:"type:numeric(30,0);not null"`
	PriceMin int64           `gorm:"not null"`
	PriceMax int64           `gorm:"not null"`

	TargetTimestamp int64 `gorm:"not null;index"`
	Bucket          int64 `gorm:"not null;index"`
	BucketIndex     int   `gorm:"not null"`

	QualityBps int64           `gorm:"not null"`
	Weight     decimal.Decimal `gorm:"type:numeric(40,0);not null"`

	Finalized   bool            `gorm:"not null;default:false"`
	Won         bool            `gorm:"not null;default:false"`
	Claimed     bool            `gorm:"not null;default:false"`
	Payout      decimal.Decimal `gorm:"type:numeric(30,0);not null"`
	ActualPrice *int64

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (ProjectedBet) TableName() string {
	return "projected_bets"
}
