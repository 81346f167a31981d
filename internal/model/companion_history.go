package model

import "time"

// HistoryAction tags a companion-relationship change.
type HistoryAction string

const (
	ActionCreatedTogether  HistoryAction = "created_together"
	ActionPairedFromSpares HistoryAction = "paired_from_spares"
	ActionUnlinked         HistoryAction = "unlinked"
	ActionReplaced         HistoryAction = "replaced"
	ActionCascadedStatus   HistoryAction = "cascaded_status"
	ActionCascadedLocation HistoryAction = "cascaded_location"
	ActionOrphaned         HistoryAction = "orphaned"
)

// CompanionHistory is the append-only log of relationship-changing actions.
// Rows are only ever inserted; nothing in this codebase updates or deletes
// them.
type CompanionHistory struct {
	ID          int64          `gorm:"autoIncrement;primaryKey"`
	GaugeID     int64          `gorm:"not null;index"`
	CompanionID *int64         `gorm:"index"`
	Action      HistoryAction  `gorm:"size:32;not null;index"`
	UserID      int64          `gorm:"not null"`
	Reason      string         `gorm:"size:512"`
	Details     map[string]any `gorm:"serializer:json"`
	CreatedAt   time.Time      `gorm:"not null;index"`
}
