// Package monitor runs the per-bookmark check: fetch, snapshot, diff, score,
// notify, timestamp-update. All database effects of one check happen inside a
// single transaction so a mid-check failure leaves no partial history.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ticketguy/Keepshot/config"
	"github.com/ticketguy/Keepshot/lib/ai"
	"github.com/ticketguy/Keepshot/lib/diff"
	"github.com/ticketguy/Keepshot/lib/models"
	"github.com/ticketguy/Keepshot/lib/scrape"
	"github.com/ticketguy/Keepshot/lib/store"
	"github.com/ticketguy/Keepshot/senders"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrFetch wraps content-source failures. The check aborts with no
	// effects and the bookmark stays due for the next tick.
	ErrFetch = errors.New("content fetch failed")

	// ErrStorage wraps persistence failures, fatal to the current check only.
	ErrStorage = errors.New("storage failed")
)

const (
	fallbackFieldName  = "content"
	fallbackExcerptLen = 500
	defaultScore       = 0.5

	fallbackTitle = "Bookmark Updated"
)

// ContentFetcher produces a comparable content snapshot for a bookmark.
type ContentFetcher interface {
	Fetch(ctx context.Context, bm *models.Bookmark) (*scrape.Content, error)
}

// Dispatcher delivers a persisted notification to live subscribers.
type Dispatcher interface {
	Deliver(userID uint, n *models.Notification)
}

type Monitor struct {
	cfg       *config.Config
	log       *zap.Logger
	db        *gorm.DB
	snapshots *store.SnapshotStore

	fetcher    ContentFetcher
	extractor  ai.Extractor
	analyzer   ai.Analyzer
	generator  ai.Generator
	dispatcher Dispatcher
	senders    senders.Registry
}

func New(
	cfg *config.Config,
	log *zap.Logger,
	db *gorm.DB,
	snapshots *store.SnapshotStore,
	fetcher ContentFetcher,
	extractor ai.Extractor,
	analyzer ai.Analyzer,
	generator ai.Generator,
	dispatcher Dispatcher,
	senders senders.Registry,
) *Monitor {
	return &Monitor{cfg, log, db, snapshots, fetcher, extractor, analyzer, generator, dispatcher, senders}
}

// CheckBookmark runs one end-to-end check. A fetch or storage failure returns
// the wrapped error with last_checked_at untouched; degraded extraction,
// scoring or message generation fall back and the check still completes.
func (m *Monitor) CheckBookmark(ctx context.Context, bookmarkID uint) error {
	bm := &models.Bookmark{}
	tx := m.db.WithContext(ctx).First(bm, bookmarkID)
	if err := tx.Error; err != nil {
		return fmt.Errorf("%w: bookmark %d: %v", ErrStorage, bookmarkID, err)
	}

	content, err := m.fetch(ctx, bm)
	if err != nil {
		return fmt.Errorf("%w: bookmark %d: %v", ErrFetch, bookmarkID, err)
	}

	prev, err := m.snapshots.Latest(ctx, bm.ID)
	if err != nil {
		return fmt.Errorf("%w: latest snapshot for bookmark %d: %v", ErrStorage, bookmarkID, err)
	}

	// No-change fast path: same digest means no extraction, no snapshot
	// write, no notification. Only the checked timestamp moves.
	if prev != nil && prev.ContentHash == content.Hash {
		m.log.Sugar().Infow("No change detected", "bookmark_id", bm.ID)
		return m.touchLastChecked(m.db.WithContext(ctx), bm.ID)
	}

	fields := m.extractFields(ctx, bm, content)

	var created *models.Notification
	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		snap, err := m.snapshots.WithTx(tx).Append(ctx, bm.ID, content.Hash, content.Text, fields, content.Metadata)
		if err != nil {
			return fmt.Errorf("%w: append snapshot for bookmark %d: %v", ErrStorage, bm.ID, err)
		}

		if prev == nil {
			// First snapshot ever: nothing to compare against.
			m.log.Sugar().Infow("First snapshot created", "bookmark_id", bm.ID, "snapshot_id", snap.ID)
			return m.touchLastChecked(tx, bm.ID)
		}

		changes, err := m.scoreCandidates(ctx, tx, bm, diff.Fields(prev.Watchpoints, snap.Watchpoints))
		if err != nil {
			return err
		}

		created, err = m.notifyIfSignificant(ctx, tx, bm, changes)
		if err != nil {
			return err
		}

		return m.touchLastChecked(tx, bm.ID)
	})
	if err != nil {
		return err
	}

	if created != nil {
		m.deliver(ctx, bm, created)
	}
	return nil
}

func (m *Monitor) fetch(ctx context.Context, bm *models.Bookmark) (*scrape.Content, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.FetchTimeout())
	defer cancel()
	return m.fetcher.Fetch(ctx, bm)
}

// extractFields asks the extractor for watchpoints. Extraction failure is
// degraded, not fatal: the snapshot falls back to a single synthetic primary
// field holding a content excerpt.
func (m *Monitor) extractFields(ctx context.Context, bm *models.Bookmark, content *scrape.Content) []models.Watchpoint {
	extracted, err := m.extractor.ExtractWatchpoints(ctx, content.Text, bm.ContentKind, content.Metadata)
	if err != nil {
		m.log.Sugar().Warnw("Watchpoint extraction failed, using fallback field", "bookmark_id", bm.ID, "err", err)
		return []models.Watchpoint{{
			FieldName:  fallbackFieldName,
			FieldValue: ai.Excerpt(content.Text, fallbackExcerptLen),
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

// scoreCandidates turns diff candidates into persisted Change rows. An
// analyzer failure on one field does not abort the check: that field gets the
// default moderate score and the modified classification.
func (m *Monitor) scoreCandidates(ctx context.Context, tx *gorm.DB, bm *models.Bookmark, candidates []diff.Candidate) ([]*models.Change, error) {
	changes := make([]*models.Change, 0, len(candidates))
	for _, cand := range candidates {
		analysis, err := m.analyzer.AnalyzeChange(ctx, cand.Watchpoint.FieldName, cand.OldValue, cand.Watchpoint.FieldValue, bm.ContentKind)
		if err != nil {
			m.log.Sugar().Warnw("Change analysis failed, using default score",
				"bookmark_id", bm.ID, "field", cand.Watchpoint.FieldName, "err", err)
			analysis = &ai.Analysis{Score: defaultScore, Kind: models.ChangeModified}
		}

		change := &models.Change{
			WatchpointID:      cand.Watchpoint.ID,
			OldValue:          cand.OldValue,
			NewValue:          cand.Watchpoint.FieldValue,
			Kind:              analysis.Kind,
			SignificanceScore: clampScore(analysis.Score),
			Watchpoint:        *cand.Watchpoint,
		}
		if err := tx.Omit("Watchpoint").Create(change).Error; err != nil {
			return nil, fmt.Errorf("%w: create change for bookmark %d: %v", ErrStorage, bm.ID, err)
		}

		m.log.Sugar().Infow("Change recorded",
			"bookmark_id", bm.ID, "field", cand.Watchpoint.FieldName, "significance", change.SignificanceScore)
		changes = append(changes, change)
	}
	return changes, nil
}

// notifyIfSignificant persists one notification when at least one change
// clears the notify threshold. Message generation failure falls back to a
// static template.
func (m *Monitor) notifyIfSignificant(ctx context.Context, tx *gorm.DB, bm *models.Bookmark, changes []*models.Change) (*models.Notification, error) {
	significant := make([]*models.Change, 0, len(changes))
	for _, c := range changes {
		if c.SignificanceScore >= m.cfg.Monitoring.NotifyThreshold {
			significant = append(significant, c)
		}
	}
	if len(significant) == 0 {
		return nil, nil
	}

	msg := m.generateMessage(ctx, bm, significant)

	primaryID := significant[0].ID
	notification := &models.Notification{
		UserID:     bm.UserID,
		BookmarkID: bm.ID,
		ChangeID:   &primaryID,
		Kind:       models.NotificationChange,
		Title:      msg.Title,
		Body:       msg.Body,
	}
	if err := tx.Create(notification).Error; err != nil {
		return nil, fmt.Errorf("%w: create notification for bookmark %d: %v", ErrStorage, bm.ID, err)
	}

	m.log.Sugar().Infow("Notification created",
		"bookmark_id", bm.ID, "notification_id", notification.ID, "changes_count", len(significant))
	return notification, nil
}

func (m *Monitor) generateMessage(ctx context.Context, bm *models.Bookmark, significant []*models.Change) *ai.Message {
	deltas := make([]ai.FieldDelta, 0, len(significant))
	for _, c := range significant {
		deltas = append(deltas, ai.FieldDelta{
			Name:     c.Watchpoint.FieldName,
			OldValue: c.OldValue,
			NewValue: c.NewValue,
			Score:    c.SignificanceScore,
		})
	}

	msg, err := m.generator.GenerateMessage(ctx, bm.DisplayTitle(), deltas, bm.ContentKind)
	if err != nil {
		m.log.Sugar().Warnw("Message generation failed, using static template", "bookmark_id", bm.ID, "err", err)
		return &ai.Message{
			Title: fallbackTitle,
			Body:  fmt.Sprintf("%s has changed.", bm.DisplayTitle()),
		}
	}
	return msg
}

// deliver fans out after commit. Live delivery and email are best-effort;
// their failures never fail the check.
func (m *Monitor) deliver(ctx context.Context, bm *models.Bookmark, n *models.Notification) {
	m.dispatcher.Deliver(bm.UserID, n)

	notifier := &models.Notifier{}
	tx := m.db.Where("user_id = ?", bm.UserID).Where("verified = ?", true).First(notifier)
	if err := tx.Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return
	} else if err != nil {
		m.log.Sugar().Warnw("Failed to look up notifier", "user_id", bm.UserID, "err", err)
		return
	}

	sender, ok := m.senders[notifier.Platform]
	if !ok {
		m.log.Sugar().Warnf("unsupported notifier platform: %s", notifier.Platform)
		return
	}
	if _, err := sender.SendNotification(ctx, notifier, bm, n); err != nil {
		m.log.Sugar().Warnw("Failed to send notification email", "user_id", bm.UserID, "err", err)
	}
}

func (m *Monitor) touchLastChecked(tx *gorm.DB, bookmarkID uint) error {
	err := tx.Model(&models.Bookmark{}).Where("id = ?", bookmarkID).
		Update("last_checked_at", time.Now().UTC()).Error
	if err != nil {
		return fmt.Errorf("%w: update last_checked_at for bookmark %d: %v", ErrStorage, bookmarkID, err)
	}
	return nil
}

func clampScore(score float64) float64 {
	switch {
	case math.IsNaN(score):
		return defaultScore
	case score < 0.0:
		return 0.0
	case score > 1.0:
		return 1.0
	default:
		return score
	}
}
