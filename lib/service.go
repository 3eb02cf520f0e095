package lib

import (
	"github.com/ticketguy/Keepshot/config"
	"github.com/ticketguy/Keepshot/lib/ai"
	"github.com/ticketguy/Keepshot/lib/monitor"
	"github.com/ticketguy/Keepshot/lib/scrape"
	"github.com/ticketguy/Keepshot/lib/store"
	"github.com/ticketguy/Keepshot/senders"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service is the API-facing facade over users, bookmarks and notifications.
type Service struct {
	cfg *config.Config
	log *zap.Logger
	db  *gorm.DB

	*users
	*bookmarks
	*notifications
}

func NewService(
	lc fx.Lifecycle,
	cfg *config.Config,
	log *zap.Logger,
	db *gorm.DB,
	scraper *scrape.Scraper,
	extractor ai.Extractor,
	mon *monitor.Monitor,
	snapshots *store.SnapshotStore,
	senders senders.Registry,
) *Service {
	return &Service{
		cfg, log, db,
		&users{cfg, log, db, senders},
		&bookmarks{cfg, log, db, scraper, extractor, mon, snapshots},
		&notifications{cfg, log, db},
	}
}
