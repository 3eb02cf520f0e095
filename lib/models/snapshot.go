package models

import "gorm.io/gorm"

// Snapshot is an immutable capture of a bookmark's content at one point in
// time. Snapshots for one bookmark are totally ordered by creation time.
type Snapshot struct {
	gorm.Model
	BookmarkID uint `gorm:"index"`

	ContentHash      string `gorm:"notNull"`
	ExtractedContent string
	Metadata         JSONMap

	Watchpoints []Watchpoint `gorm:"constraint:OnDelete:CASCADE"`
}

type Snapshots []Snapshot

// Watchpoint is a named, typed field extracted from a snapshot's content and
// tracked for changes across snapshots. Names are unique within a snapshot.
type Watchpoint struct {
	gorm.Model
	SnapshotID uint `gorm:"index"`

	FieldName  string `gorm:"notNull"`
	FieldValue string
	FieldType  string
	IsPrimary  bool `gorm:"notNull;default:false"`

	Changes []Change `gorm:"constraint:OnDelete:CASCADE"`
}
