package db

import (
	"torchmarket/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		// Authoritative settlement state.
		&models.Bet{},
		&models.Bucket{},
		&models.MarketEvent{},
		// Read-side projection.
		&models.UserStats{},
		&models.ProjectedBet{},
		&models.ProjectedBucket{},
		&models.Fee{},
		&models.ProjectionCursor{},
	)
}
