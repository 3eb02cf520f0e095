package lib

import (
	"context"
	"errors"
	"fmt"

	"github.com/ticketguy/Keepshot/config"
	"github.com/ticketguy/Keepshot/lib/ai"
	"github.com/ticketguy/Keepshot/lib/models"
	"github.com/ticketguy/Keepshot/lib/monitor"
	"github.com/ticketguy/Keepshot/lib/scrape"
	"github.com/ticketguy/Keepshot/lib/store"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrBookmarkNotFound = errors.New("bookmark not found")

type bookmarks struct {
	cfg       *config.Config
	log       *zap.Logger
	db        *gorm.DB
	scraper   *scrape.Scraper
	extractor ai.Extractor
	mon       *monitor.Monitor
	snapshots *store.SnapshotStore
}

type CreateBookmarkParams struct {
	ContentKind       models.ContentKind
	URL               string
	Title             string
	Description       string
	RawContent        string
	MonitoringEnabled bool
	CheckInterval     int // minutes; clamped to the configured bounds
}

// CreateBookmark registers a bookmark, captures its initial snapshot and
// extracts the first watchpoint set so the next scheduled check has a
// baseline to diff against.
func (svc *bookmarks) CreateBookmark(ctx context.Context, userID uint, params CreateBookmarkParams) (*models.Bookmark, error) {
	bm := &models.Bookmark{
		UserID:            userID,
		ContentKind:       params.ContentKind,
		URL:               params.URL,
		Title:             params.Title,
		Description:       params.Description,
		RawContent:        params.RawContent,
		MonitoringEnabled: params.MonitoringEnabled,
		CheckInterval:     svc.cfg.ClampCheckInterval(params.CheckInterval),
	}

	content, err := svc.scraper.Fetch(ctx, bm)
	if err != nil {
		return nil, fmt.Errorf("fetch content for new bookmark: %w", err)
	}
	if bm.Title == "" {
		bm.Title = content.Title
	}
	bm.PlatformData = content.Metadata

	tx := svc.db.Clauses(clause.Returning{}).Create(bm)
	if err := tx.Error; err != nil {
		return nil, err
	}

	fields := svc.extractInitialFields(ctx, bm, content)
	snap, err := svc.snapshots.Append(ctx, bm.ID, content.Hash, content.Text, fields, content.Metadata)
	if err != nil {
		return nil, err
	}

	svc.log.Sugar().Infof("Created bookmark id:%v with initial snapshot:%v", bm.ID, snap.ContentHash)
	return bm, nil
}

func (svc *bookmarks) extractInitialFields(ctx context.Context, bm *models.Bookmark, content *scrape.Content) []models.Watchpoint {
	extracted, err := svc.extractor.ExtractWatchpoints(ctx, content.Text, bm.ContentKind, content.Metadata)
	if err != nil {
		svc.log.Sugar().Warnw("Initial watchpoint extraction failed, using fallback field", "bookmark_id", bm.ID, "err", err)
		return []models.Watchpoint{{
			FieldName:  "content",
			FieldValue: ai.Excerpt(content.Text, 500),
			FieldType:  "text",
			IsPrimary:  true,
		}}
	}

	fields := make([]models.Watchpoint, 0, len(extracted))
	for _, f := range extracted {
		fields = append(fields, models.Watchpoint{
			FieldName:  f.Name,
			FieldValue: f.Value,
			FieldType:  f.Type,
			IsPrimary:  f.Primary,
		})
	}
	return fields
}

func (svc *bookmarks) ListBookmarks(ctx context.Context, userID uint, page, pageSize int) (models.Bookmarks, int64, error) {
	query := svc.db.Model(&models.Bookmark{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items models.Bookmarks
	tx := query.
		Order("created_at desc").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&items)
	if err := tx.Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (svc *bookmarks) GetBookmark(ctx context.Context, userID, bookmarkID uint) (*models.Bookmark, error) {
	bm := &models.Bookmark{}
	tx := svc.db.
		Where("user_id = ?", userID).
		Where("id = ?", bookmarkID).
		First(bm)
	if err := tx.Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBookmarkNotFound
	} else if err != nil {
		return nil, err
	}
	return bm, nil
}

type UpdateBookmarkParams struct {
	Title             *string
	Description       *string
	MonitoringEnabled *bool
	CheckInterval     *int
}

func (svc *bookmarks) UpdateBookmark(ctx context.Context, userID, bookmarkID uint, params UpdateBookmarkParams) (*models.Bookmark, error) {
	bm, err := svc.GetBookmark(ctx, userID, bookmarkID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if params.Title != nil {
		updates["title"] = *params.Title
	}
	if params.Description != nil {
		updates["description"] = *params.Description
	}
	if params.MonitoringEnabled != nil {
		updates["monitoring_enabled"] = *params.MonitoringEnabled
	}
	if params.CheckInterval != nil {
		updates["check_interval"] = svc.cfg.ClampCheckInterval(*params.CheckInterval)
	}
	if len(updates) == 0 {
		return bm, nil
	}

	if err := svc.db.Model(bm).Updates(updates).Error; err != nil {
		return nil, err
	}
	return bm, nil
}

// DeleteBookmark removes a bookmark and cascades its snapshots, watchpoints,
// changes and notifications in one transaction.
func (svc *bookmarks) DeleteBookmark(ctx context.Context, userID, bookmarkID uint) error {
	bm, err := svc.GetBookmark(ctx, userID, bookmarkID)
	if err != nil {
		return err
	}

	return svc.db.Transaction(func(tx *gorm.DB) error {
		snapshotIDs := tx.Model(&models.Snapshot{}).Select("id").Where("bookmark_id = ?", bm.ID)
		watchpointIDs := tx.Model(&models.Watchpoint{}).Select("id").Where("snapshot_id IN (?)", snapshotIDs)

		if err := tx.Where("watchpoint_id IN (?)", watchpointIDs).Delete(&models.Change{}).Error; err != nil {
			return err
		}
		if err := tx.Where("snapshot_id IN (?)", snapshotIDs).Delete(&models.Watchpoint{}).Error; err != nil {
			return err
		}
		if err := tx.Where("bookmark_id = ?", bm.ID).Delete(&models.Snapshot{}).Error; err != nil {
			return err
		}
		if err := tx.Where("bookmark_id = ?", bm.ID).Delete(&models.Notification{}).Error; err != nil {
			return err
		}
		return tx.Delete(bm).Error
	})
}

// CheckNow runs a single monitoring check outside the scheduler.
func (svc *bookmarks) CheckNow(ctx context.Context, userID, bookmarkID uint) error {
	bm, err := svc.GetBookmark(ctx, userID, bookmarkID)
	if err != nil {
		return err
	}
	return svc.mon.CheckBookmark(ctx, bm.ID)
}

func (svc *bookmarks) LatestSnapshot(ctx context.Context, userID, bookmarkID uint) (*models.Snapshot, error) {
	bm, err := svc.GetBookmark(ctx, userID, bookmarkID)
	if err != nil {
		return nil, err
	}

	snap, err := svc.snapshots.Latest(ctx, bm.ID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, ErrBookmarkNotFound
	}
	return snap, nil
}
