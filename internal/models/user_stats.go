package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// UserStats is a read-side rollup per bettor. Never authoritative; rebuilt
// from the event log by replay.
type UserStats struct {
	Address string `gorm:"primaryKey;type:varchar(100)"`

	TotalBets   int             `gorm:"not null;default:0"`
	TotalWon    int             `gorm:"not null;default:0"`
	TotalStaked decimal.Decimal `gorm:"type:numeric(30,0);not null"`
	TotalPayout decimal.Decimal `gorm:"type:numeric(30,0);not null"`

	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (UserStats) TableName() string {
	return "user_stats"
}
