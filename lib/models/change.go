package models

import "gorm.io/gorm"

// Change records a detected difference in one watchpoint's value between two
// consecutive snapshots. The owning watchpoint is always the new side of the
// comparison. DetectedAt is CreatedAt.
type Change struct {
	gorm.Model
	WatchpointID uint `gorm:"index"`

	OldValue string
	NewValue string
	Kind     ChangeKind

	// SignificanceScore is clamped to [0.0, 1.0] before persisting. No column
	// default: a clamped 0.0 is a real value and must not be rewritten.
	SignificanceScore float64 `gorm:"notNull"`

	Watchpoint Watchpoint
}

// Notification is a user-facing message about detected changes. ChangeID is a
// weak reference: lookup only, no cascade dependency on the change.
type Notification struct {
	gorm.Model
	UserID     uint `gorm:"index"`
	BookmarkID uint `gorm:"index"`
	ChangeID   *uint

	Kind  NotificationKind `gorm:"notNull"`
	Title string
	Body  string
	Read  bool `gorm:"notNull;default:false"`
}

type Notifications []Notification
