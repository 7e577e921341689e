package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProjectedBucket mirrors bucket aggregation progress as last seen by the
// projection. AggregationComplete here reflects the projection's view and
// may lag the authoritative bucket by one or more events.
type ProjectedBucket struct {
	ID int64 `gorm:"primaryKey;autoIncrement:false"`

	TotalBets           int             `gorm:"not null;default:0"`
	NextProcessIndex    int             `gorm:"not null;default:0"`
	TotalWinningWeight  decimal.Decimal `gorm:"type:numeric(40,0);not null"`
	AggregationComplete bool            `gorm:"not null;default:false;index"`

	ResolvedPrice *int64

	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (ProjectedBucket) TableName() string {
	return "projected_buckets"
}
