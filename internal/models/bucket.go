package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bucket aggregates all bets whose target time maps to the same discretized
// slot. It owns the processing cursor; invariants:
// NextProcessIndex <= TotalBets, AggregationComplete iff the cursor reached
// TotalBets, ResolvedPrice set at most once.
type Bucket struct {
	ID int64 `gorm:"primaryKey;autoIncrement:false"`

	TotalBets   int             `gorm:"not null;default:0"`
	TotalStaked decimal.Decimal `gorm:"type:numeric(30,0);not null"`

	NextProcessIndex   int             `gorm:"not null;default:0"`
	TotalWinningWeight decimal.Decimal `gorm:"type:numeric(40,0);not null"`
	AggregationComplete bool           `gorm:"not null;default:false;index"`

	ResolvedPrice *int64
	ResolvedAt    *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Bucket) TableName() string {
	return "buckets"
}
