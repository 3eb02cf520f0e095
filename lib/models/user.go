package models

import (
	"database/sql"
	"time"

	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	Username    string `gorm:"unique"`
	Password    string
	LastLoginAt sql.NullTime

	Notifiers     []Notifier     `gorm:"constraint:OnDelete:CASCADE"`
	Bookmarks     []Bookmark     `gorm:"constraint:OnDelete:CASCADE"`
	Notifications []Notification `gorm:"constraint:OnDelete:CASCADE"`
}

// Notifier is a verified delivery address on a platform (currently email only).
type Notifier struct {
	gorm.Model
	UserID             uint
	Verified           bool
	Platform           string
	PlatformIdentifier string
}

type NotifierConfirmation struct {
	NotifierID uint
	Nonce      string `gorm:"uniqueIndex"`
	Expiry     time.Time

	Notifier Notifier
}
