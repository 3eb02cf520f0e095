package models

import (
	"database/sql"
	"time"

	"gorm.io/gorm"
)

// Bookmark is a user-saved content reference under change surveillance.
type Bookmark struct {
	gorm.Model
	UserID uint `gorm:"index"`

	ContentKind ContentKind `gorm:"notNull"`
	URL         string
	Title       string
	Description string
	RawContent  string // inline payload for text-kind bookmarks

	PlatformData JSONMap

	// No column default on purpose: gorm omits zero-valued fields that carry
	// a default tag, which would silently re-enable a bookmark created with
	// monitoring off. Callers always set this explicitly.
	MonitoringEnabled bool `gorm:"notNull"`
	CheckInterval     int  `gorm:"notNull"` // minutes
	LastCheckedAt     sql.NullTime

	Snapshots     []Snapshot     `gorm:"constraint:OnDelete:CASCADE"`
	Notifications []Notification `gorm:"constraint:OnDelete:CASCADE"`
}

type Bookmarks []*Bookmark

// DisplayTitle picks a human-readable name for notifications.
func (b *Bookmark) DisplayTitle() string {
	switch {
	case b.Title != "":
		return b.Title
	case b.URL != "":
		return b.URL
	default:
		return "Your bookmark"
	}
}

// DueForCheck reports whether enough time has passed since the last check.
// A bookmark that has never been checked is always due.
func (b *Bookmark) DueForCheck(now time.Time) bool {
	if !b.LastCheckedAt.Valid {
		return true
	}
	interval := time.Duration(b.CheckInterval) * time.Minute
	return now.Sub(b.LastCheckedAt.Time) >= interval
}
