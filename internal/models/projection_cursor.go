package models

import "time"

// ProjectionCursor is a named consumer position in the event log. The cursor
// is saved after the event's transaction commits, so delivery is
// at-least-once and handlers must be idempotent.
type ProjectionCursor struct {
	Name        string `gorm:"primaryKey;type:varchar(50)"`
	LastEventID uint64 `gorm:"not null;default:0"`

	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (ProjectionCursor) TableName() string {
	return "projection_cursors"
}
