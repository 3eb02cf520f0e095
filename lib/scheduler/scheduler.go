// Package scheduler drives periodic bookmark checks. Each tick selects every
// enabled bookmark due by its own interval and runs the checks with bounded
// concurrency; a slow previous tick shares the limit but is otherwise not
// waited for.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/ticketguy/Keepshot/config"
	"github.com/ticketguy/Keepshot/lib/models"
	"github.com/ticketguy/Keepshot/lib/monitor"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Checker runs one bookmark check end to end.
type Checker interface {
	CheckBookmark(ctx context.Context, bookmarkID uint) error
}

type Scheduler struct {
	cfg     *config.Config
	log     *zap.Logger
	db      *gorm.DB
	checker Checker

	cancel context.CancelFunc

	// inflight guards against two concurrent checks of the same bookmark,
	// e.g. a check overrunning its own interval into the next tick.
	mu       sync.Mutex
	inflight map[uint]struct{}
}

func New(cfg *config.Config, log *zap.Logger, db *gorm.DB, checker Checker) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		log:      log,
		db:       db,
		checker:  checker,
		inflight: make(map[uint]struct{}),
	}
}

func NewScheduler(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, db *gorm.DB, m *monitor.Monitor) *Scheduler {
	s := New(cfg, log, db, m)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go s.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Sugar().Info("Trying to stop scheduler")
			s.Stop()
			return nil
		},
	})

	return s
}

func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	alarm := newAlarmClock(s.cfg.TickInterval())
	defer alarm.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Sugar().Info("Scheduler stopped")
			return

		case tickStart := <-alarm.C:
			s.RunTick(ctx, tickStart.UTC())
		}
	}
}

func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// RunTick selects due bookmarks and drives the checker over them, at most
// MaxConcurrentChecks at a time. Per-bookmark failures are logged, never
// fatal to the tick; the tick returns after every selected bookmark has been
// attempted.
func (s *Scheduler) RunTick(ctx context.Context, tickStart time.Time) {
	var enabled models.Bookmarks
	tx := s.db.Where("monitoring_enabled = ?", true).Find(&enabled)
	if err := tx.Error; err != nil {
		s.log.Sugar().Errorw("Failed to select bookmarks for tick", "err", err)
		return
	}

	due := make(models.Bookmarks, 0, len(enabled))
	for _, bm := range enabled {
		if bm.DueForCheck(tickStart) {
			due = append(due, bm)
		}
	}

	s.log.Sugar().Infow("Checking bookmarks", "enabled", len(enabled), "due", len(due))

	m := &tickMetrics{selected: len(due)}

	g := new(errgroup.Group)
	g.SetLimit(s.cfg.Monitoring.MaxConcurrentChecks)

	for _, bm := range due {
		if !s.acquire(bm.ID) {
			m.skip()
			continue
		}

		bm := bm
		g.Go(func() error {
			defer s.release(bm.ID)

			if err := s.checker.CheckBookmark(ctx, bm.ID); err != nil {
				s.log.Sugar().Errorw("Bookmark check failed", "bookmark_id", bm.ID, "err", err)
				m.fail()
			} else {
				m.ok()
			}
			return nil
		})
	}

	g.Wait()

	elapsed := time.Now().UTC().Sub(tickStart)
	s.log.Sugar().Infow("Tick completed", m.logArgs("elapsed_msecs", int(elapsed.Milliseconds()))...)
}

func (s *Scheduler) acquire(bookmarkID uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.inflight[bookmarkID]; busy {
		return false
	}
	s.inflight[bookmarkID] = struct{}{}
	return true
}

func (s *Scheduler) release(bookmarkID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, bookmarkID)
}
