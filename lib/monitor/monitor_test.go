package monitor

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ticketguy/Keepshot/config"
	"github.com/ticketguy/Keepshot/lib/ai"
	"github.com/ticketguy/Keepshot/lib/models"
	"github.com/ticketguy/Keepshot/lib/scrape"
	"github.com/ticketguy/Keepshot/lib/store"
	"github.com/ticketguy/Keepshot/senders"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeFetcher struct {
	content *scrape.Content
	err     error
}

func (f *fakeFetcher) Fetch(ctx context.Context, bm *models.Bookmark) (*scrape.Content, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.content, nil
}

type fakeExtractor struct {
	fields []ai.Field
	err    error
	calls  int
}

func (f *fakeExtractor) ExtractWatchpoints(ctx context.Context, text string, kind models.ContentKind, metadata models.JSONMap) ([]ai.Field, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.fields, nil
}

type fakeAnalyzer struct {
	analysis *ai.Analysis
	err      error
}

func (f *fakeAnalyzer) AnalyzeChange(ctx context.Context, fieldName, oldValue, newValue string, kind models.ContentKind) (*ai.Analysis, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.analysis, nil
}

type fakeGenerator struct {
	msg *ai.Message
	err error
}

func (f *fakeGenerator) GenerateMessage(ctx context.Context, bookmarkTitle string, deltas []ai.FieldDelta, kind models.ContentKind) (*ai.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.msg, nil
}

type fakeDispatcher struct {
	mu        sync.Mutex
	delivered []*models.Notification
}

func (f *fakeDispatcher) Deliver(userID uint, n *models.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, n)
}

type fixture struct {
	db         *gorm.DB
	snapshots  *store.SnapshotStore
	fetcher    *fakeFetcher
	extractor  *fakeExtractor
	analyzer   *fakeAnalyzer
	generator  *fakeGenerator
	dispatcher *fakeDispatcher
	monitor    *Monitor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Notifier{}, &models.Bookmark{},
		&models.Snapshot{}, &models.Watchpoint{}, &models.Change{}, &models.Notification{},
	))

	cfg := &config.Config{}
	cfg.Monitoring.NotifyThreshold = 0.5
	cfg.Monitoring.FetchTimeoutSecs = 30

	f := &fixture{
		db:         db,
		snapshots:  store.NewSnapshotStore(db),
		fetcher:    &fakeFetcher{},
		extractor:  &fakeExtractor{},
		analyzer:   &fakeAnalyzer{analysis: &ai.Analysis{Score: 0.7, Kind: models.ChangeModified}},
		generator:  &fakeGenerator{msg: &ai.Message{Title: "Price alert", Body: "Price went down."}},
		dispatcher: &fakeDispatcher{},
	}
	f.monitor = New(cfg, zap.NewNop(), db, f.snapshots,
		f.fetcher, f.extractor, f.analyzer, f.generator, f.dispatcher, senders.Registry{})
	return f
}

func (f *fixture) createBookmark(t *testing.T) *models.Bookmark {
	t.Helper()
	bm := &models.Bookmark{
		UserID:            1,
		ContentKind:       models.ContentText,
		Title:             "Test bookmark",
		MonitoringEnabled: true,
		CheckInterval:     60,
	}
	require.NoError(t, f.db.Create(bm).Error)
	return bm
}

func (f *fixture) seedSnapshot(t *testing.T, bookmarkID uint, hash string, fields ...models.Watchpoint) {
	t.Helper()
	_, err := f.snapshots.Append(context.Background(), bookmarkID, hash, "seed", fields, nil)
	require.NoError(t, err)
}

func (f *fixture) counts(t *testing.T, bookmarkID uint) (snapshots, changes, notifications int64) {
	t.Helper()
	require.NoError(t, f.db.Model(&models.Snapshot{}).Where("bookmark_id = ?", bookmarkID).Count(&snapshots).Error)
	require.NoError(t, f.db.Model(&models.Change{}).Count(&changes).Error)
	require.NoError(t, f.db.Model(&models.Notification{}).Where("bookmark_id = ?", bookmarkID).Count(&notifications).Error)
	return
}

func (f *fixture) reload(t *testing.T, bookmarkID uint) *models.Bookmark {
	t.Helper()
	bm := &models.Bookmark{}
	require.NoError(t, f.db.First(bm, bookmarkID).Error)
	return bm
}

func TestFirstSnapshotProducesNoChanges(t *testing.T) {
	f := newFixture(t)
	bm := f.createBookmark(t)

	f.fetcher.content = &scrape.Content{Text: "hello world", Hash: "hash-1"}
	f.extractor.fields = []ai.Field{{Name: "content", Value: "hello world", Type: "text", Primary: true}}

	require.NoError(t, f.monitor.CheckBookmark(context.Background(), bm.ID))

	snapshots, changes, notifications := f.counts(t, bm.ID)
	assert.EqualValues(t, 1, snapshots)
	assert.Zero(t, changes)
	assert.Zero(t, notifications)
	assert.True(t, f.reload(t, bm.ID).LastCheckedAt.Valid)
	assert.Empty(t, f.dispatcher.delivered)
}

func TestNoChangeFastPath(t *testing.T) {
	f := newFixture(t)
	bm := f.createBookmark(t)
	f.seedSnapshot(t, bm.ID, "hash-1")

	f.fetcher.content = &scrape.Content{Text: "same as before", Hash: "hash-1"}

	require.NoError(t, f.monitor.CheckBookmark(context.Background(), bm.ID))

	snapshots, changes, notifications := f.counts(t, bm.ID)
	assert.EqualValues(t, 1, snapshots, "no new snapshot on identical hash")
	assert.Zero(t, changes)
	assert.Zero(t, notifications)
	assert.Zero(t, f.extractor.calls, "fast path must not call the extractor")
	assert.True(t, f.reload(t, bm.ID).LastCheckedAt.Valid, "last checked still updates")
}

func TestSignificantChangeCreatesNotification(t *testing.T) {
	f := newFixture(t)
	bm := f.createBookmark(t)
	f.seedSnapshot(t, bm.ID, "hash-1", models.Watchpoint{FieldName: "price", FieldValue: "$10"})

	f.fetcher.content = &scrape.Content{Text: "price is $9", Hash: "hash-2"}
	f.extractor.fields = []ai.Field{{Name: "price", Value: "$9", Type: "currency", Primary: true}}
	f.analyzer.analysis = &ai.Analysis{Score: 0.7, Kind: models.ChangeDecreased}

	require.NoError(t, f.monitor.CheckBookmark(context.Background(), bm.ID))

	change := &models.Change{}
	require.NoError(t, f.db.First(change).Error)
	assert.Equal(t, "$10", change.OldValue)
	assert.Equal(t, "$9", change.NewValue)
	assert.Equal(t, models.ChangeDecreased, change.Kind)
	assert.InDelta(t, 0.7, change.SignificanceScore, 1e-9)

	n := &models.Notification{}
	require.NoError(t, f.db.First(n).Error)
	assert.Equal(t, models.NotificationChange, n.Kind)
	assert.Equal(t, "Price alert", n.Title)
	require.NotNil(t, n.ChangeID)
	assert.Equal(t, change.ID, *n.ChangeID)

	require.Len(t, f.dispatcher.delivered, 1)
	assert.Equal(t, n.ID, f.dispatcher.delivered[0].ID)
}

func TestBelowThresholdChangeIsSilent(t *testing.T) {
	f := newFixture(t)
	bm := f.createBookmark(t)
	f.seedSnapshot(t, bm.ID, "hash-1", models.Watchpoint{FieldName: "title", FieldValue: "old title"})

	f.fetcher.content = &scrape.Content{Text: "new", Hash: "hash-2"}
	f.extractor.fields = []ai.Field{{Name: "title", Value: "new title"}}
	f.analyzer.analysis = &ai.Analysis{Score: 0.3, Kind: models.ChangeModified}

	require.NoError(t, f.monitor.CheckBookmark(context.Background(), bm.ID))

	_, changes, notifications := f.counts(t, bm.ID)
	assert.EqualValues(t, 1, changes, "change is still recorded")
	assert.Zero(t, notifications)
	assert.Empty(t, f.dispatcher.delivered)
}

func TestIdenticalFieldValuesProduceNoChanges(t *testing.T) {
	f := newFixture(t)
	bm := f.createBookmark(t)
	f.seedSnapshot(t, bm.ID, "hash-1", models.Watchpoint{FieldName: "price", FieldValue: "$10"})

	// Content hash moved but the tracked field did not.
	f.fetcher.content = &scrape.Content{Text: "reordered page", Hash: "hash-2"}
	f.extractor.fields = []ai.Field{{Name: "price", Value: "$10"}}

	require.NoError(t, f.monitor.CheckBookmark(context.Background(), bm.ID))

	snapshots, changes, notifications := f.counts(t, bm.ID)
	assert.EqualValues(t, 2, snapshots)
	assert.Zero(t, changes)
	assert.Zero(t, notifications)
}

func TestExtractionFailureFallsBackToContentField(t *testing.T) {
	f := newFixture(t)
	bm := f.createBookmark(t)

	f.fetcher.content = &scrape.Content{Text: "hello world", Hash: "hash-1"}
	f.extractor.err = fmt.Errorf("model unavailable")

	require.NoError(t, f.monitor.CheckBookmark(context.Background(), bm.ID))

	snap, err := f.snapshots.Latest(context.Background(), bm.ID)
	require.NoError(t, err)
	require.NotNil(t, snap)
	require.Len(t, snap.Watchpoints, 1)
	assert.Equal(t, "content", snap.Watchpoints[0].FieldName)
	assert.Equal(t, "hello world", snap.Watchpoints[0].FieldValue)
	assert.True(t, snap.Watchpoints[0].IsPrimary)
}

func TestScoringFailureUsesDefault(t *testing.T) {
	f := newFixture(t)
	bm := f.createBookmark(t)
	f.seedSnapshot(t, bm.ID, "hash-1", models.Watchpoint{FieldName: "price", FieldValue: "$10"})

	f.fetcher.content = &scrape.Content{Text: "new", Hash: "hash-2"}
	f.extractor.fields = []ai.Field{{Name: "price", Value: "$9"}}
	f.analyzer.err = fmt.Errorf("model unavailable")

	require.NoError(t, f.monitor.CheckBookmark(context.Background(), bm.ID))

	change := &models.Change{}
	require.NoError(t, f.db.First(change).Error)
	assert.InDelta(t, 0.5, change.SignificanceScore, 1e-9)
	assert.Equal(t, models.ChangeModified, change.Kind)
}

func TestOutOfRangeScoreIsClamped(t *testing.T) {
	f := newFixture(t)
	bm := f.createBookmark(t)
	f.seedSnapshot(t, bm.ID, "hash-1", models.Watchpoint{FieldName: "price", FieldValue: "$10"})

	f.fetcher.content = &scrape.Content{Text: "new", Hash: "hash-2"}
	f.extractor.fields = []ai.Field{{Name: "price", Value: "$9"}}
	f.analyzer.analysis = &ai.Analysis{Score: 1.7, Kind: models.ChangeIncreased}

	require.NoError(t, f.monitor.CheckBookmark(context.Background(), bm.ID))

	change := &models.Change{}
	require.NoError(t, f.db.First(change).Error)
	assert.InDelta(t, 1.0, change.SignificanceScore, 1e-9)
}

func TestZeroScoreIsPersistedAsZero(t *testing.T) {
	f := newFixture(t)
	bm := f.createBookmark(t)
	f.seedSnapshot(t, bm.ID, "hash-1", models.Watchpoint{FieldName: "price", FieldValue: "$10"})

	f.fetcher.content = &scrape.Content{Text: "new", Hash: "hash-2"}
	f.extractor.fields = []ai.Field{{Name: "price", Value: "$9"}}
	f.analyzer.analysis = &ai.Analysis{Score: -0.4, Kind: models.ChangeModified}

	require.NoError(t, f.monitor.CheckBookmark(context.Background(), bm.ID))

	change := &models.Change{}
	require.NoError(t, f.db.First(change).Error)
	assert.Zero(t, change.SignificanceScore, "clamped zero must not be rewritten by a column default")
}

func TestGenerationFailureUsesStaticTemplate(t *testing.T) {
	f := newFixture(t)
	bm := f.createBookmark(t)
	f.seedSnapshot(t, bm.ID, "hash-1", models.Watchpoint{FieldName: "price", FieldValue: "$10"})

	f.fetcher.content = &scrape.Content{Text: "new", Hash: "hash-2"}
	f.extractor.fields = []ai.Field{{Name: "price", Value: "$9"}}
	f.generator.err = fmt.Errorf("model unavailable")

	require.NoError(t, f.monitor.CheckBookmark(context.Background(), bm.ID))

	n := &models.Notification{}
	require.NoError(t, f.db.First(n).Error)
	assert.Equal(t, "Bookmark Updated", n.Title)
	assert.Equal(t, "Test bookmark has changed.", n.Body)
}

func TestFetchFailureLeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	bm := f.createBookmark(t)

	f.fetcher.err = fmt.Errorf("connection refused")

	err := f.monitor.CheckBookmark(context.Background(), bm.ID)
	require.ErrorIs(t, err, ErrFetch)

	snapshots, changes, notifications := f.counts(t, bm.ID)
	assert.Zero(t, snapshots)
	assert.Zero(t, changes)
	assert.Zero(t, notifications)
	assert.False(t, f.reload(t, bm.ID).LastCheckedAt.Valid)
}

func TestStorageFailureRollsBackWholeCheck(t *testing.T) {
	f := newFixture(t)
	bm := f.createBookmark(t)
	f.seedSnapshot(t, bm.ID, "hash-1", models.Watchpoint{FieldName: "price", FieldValue: "$10"})

	f.fetcher.content = &scrape.Content{Text: "new", Hash: "hash-2"}
	f.extractor.fields = []ai.Field{{Name: "price", Value: "$9"}}

	// Break change persistence mid-check; everything written before it must
	// roll back with it.
	require.NoError(t, f.db.Migrator().DropTable(&models.Change{}))

	err := f.monitor.CheckBookmark(context.Background(), bm.ID)
	require.ErrorIs(t, err, ErrStorage)

	var snapshots int64
	require.NoError(t, f.db.Model(&models.Snapshot{}).Where("bookmark_id = ?", bm.ID).Count(&snapshots).Error)
	assert.EqualValues(t, 1, snapshots, "new snapshot must not survive the rollback")

	var notifications int64
	require.NoError(t, f.db.Model(&models.Notification{}).Count(&notifications).Error)
	assert.Zero(t, notifications)
	assert.False(t, f.reload(t, bm.ID).LastCheckedAt.Valid)
	assert.Empty(t, f.dispatcher.delivered)
}

func TestClampScore(t *testing.T) {
	assert.Equal(t, 0.0, clampScore(-0.2))
	assert.Equal(t, 1.0, clampScore(1.7))
	assert.Equal(t, 0.42, clampScore(0.42))
	assert.Equal(t, 0.5, clampScore(math.NaN()), "NaN falls back to the moderate default")
}
