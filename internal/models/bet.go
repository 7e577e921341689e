package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bet is the authoritative record of one stake on a price range. Immutable
// once finalized except for the claim fields.
type Bet struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"`
	Bettor string `gorm:"type:varchar(100);not null;index"`

	// Amounts are integers in the smallest denomination.
	Stake    decimal.Decimal `gorm:"type:numeric(30,0);not null"`
	Fee      decimal.Decimal `gorm:"type:numeric(30,0);not null"`
	StakeNet decimal.Decimal `gorm:"type:numeric(30,0);not null"`

	// Prices in basis points; PriceMin < PriceMax.
	PriceMin int64 `gorm:"not null"`
	PriceMax int64 `gorm:"not null"`

	TargetTimestamp int64     `gorm:"not null;index"`
	PlacedAt        time.Time `gorm:"type:timestamptz;not null"`

	Bucket int64 `gorm:"not null;index"`
	// BucketIndex is the bet's append position inside its bucket; the
	// settlement cursor walks this ordering.
	BucketIndex int `gorm:"not null;index:idx_bets_bucket_pos,priority:2"`

	SharpnessBps int64           `gorm:"not null"`
	TimeBps      int64           `gorm:"not null"`
	QualityBps   int64           `gorm:"not null"`
	Weight       decimal.Decimal `gorm:"type:numeric(40,0);not null"`

	Finalized   bool            `gorm:"not null;default:false"`
	Won         bool            `gorm:"not null;default:false"`
	Claimed     bool            `gorm:"not null;default:false"`
	Payout      decimal.Decimal `gorm:"type:numeric(30,0);not null"`
	ActualPrice *int64

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Bet) TableName() string {
	return "bets"
}
