// Package store provides the append-only snapshot history.
package store

import (
	"context"
	"errors"

	"github.com/ticketguy/Keepshot/lib/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SnapshotStore appends and reads immutable snapshots for a bookmark. There
// are no update or delete operations; deletion happens only as a cascade of
// bookmark deletion.
type SnapshotStore struct {
	db *gorm.DB
}

func NewSnapshotStore(db *gorm.DB) *SnapshotStore {
	return &SnapshotStore{db}
}

// WithTx returns a store scoped to tx, so appends participate in a caller's
// transaction.
func (s *SnapshotStore) WithTx(tx *gorm.DB) *SnapshotStore {
	return &SnapshotStore{tx}
}

// Append persists a new snapshot with its watchpoints. Watchpoint order is
// preserved; a duplicate field name keeps the last occurrence.
func (s *SnapshotStore) Append(ctx context.Context, bookmarkID uint, hash, content string, fields []models.Watchpoint, metadata models.JSONMap) (*models.Snapshot, error) {
	snap := models.Snapshot{
		BookmarkID:       bookmarkID,
		ContentHash:      hash,
		ExtractedContent: content,
		Metadata:         metadata,
		Watchpoints:      dedupeFields(fields),
	}

	tx := s.db.WithContext(ctx).Clauses(clause.Returning{}).Create(&snap)
	if err := tx.Error; err != nil {
		return nil, err
	}
	return &snap, nil
}

// Latest returns the most recent snapshot for a bookmark with its watchpoints
// in extraction order, or nil when the bookmark has no snapshots yet.
func (s *SnapshotStore) Latest(ctx context.Context, bookmarkID uint) (*models.Snapshot, error) {
	snap := &models.Snapshot{}
	tx := s.db.WithContext(ctx).
		Where("bookmark_id = ?", bookmarkID).
		Order("created_at desc, id desc").
		Preload("Watchpoints", func(db *gorm.DB) *gorm.DB {
			return db.Order("watchpoints.id asc")
		}).
		First(snap)
	if err := tx.Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	return snap, nil
}

// dedupeFields drops earlier occurrences of a repeated field name, keeping
// extraction order otherwise.
func dedupeFields(fields []models.Watchpoint) []models.Watchpoint {
	lastIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		lastIdx[f.FieldName] = i
	}

	out := make([]models.Watchpoint, 0, len(lastIdx))
	for i, f := range fields {
		if lastIdx[f.FieldName] == i {
			out = append(out, f)
		}
	}
	return out
}
