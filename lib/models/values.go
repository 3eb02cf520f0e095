package models

import (
	"crypto/sha256"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// ContentKind enumerates the kinds of content a bookmark can track.
type ContentKind string

const (
	ContentURL   ContentKind = "url"
	ContentImage ContentKind = "image"
	ContentVideo ContentKind = "video"
	ContentPDF   ContentKind = "pdf"
	ContentText  ContentKind = "text"
)

// ChangeKind classifies how a watchpoint value moved between two snapshots.
type ChangeKind string

const (
	ChangeIncreased ChangeKind = "increase"
	ChangeDecreased ChangeKind = "decrease"
	ChangeModified  ChangeKind = "modified"
	ChangeAdded     ChangeKind = "added"
	ChangeRemoved   ChangeKind = "removed"
)

type NotificationKind string

const (
	NotificationChange    NotificationKind = "change"
	NotificationDuplicate NotificationKind = "duplicate"
	NotificationRelated   NotificationKind = "related"
	NotificationReminder  NotificationKind = "reminder"
)

func DigestContent(content string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(content)))
}

func DigestBytes(content []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(content))
}

// JSONMap stores opaque key/value metadata as a JSON text column.
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	return string(b), err
}

func (m *JSONMap) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for JSONMap: %T", src)
	}
	return json.Unmarshal(data, m)
}
