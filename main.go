package main

import (
	"net/http"
	"os"
	"time"

	"github.com/ticketguy/Keepshot/app"
	"github.com/ticketguy/Keepshot/config"
	"github.com/ticketguy/Keepshot/lib"
	"github.com/ticketguy/Keepshot/lib/ai"
	"github.com/ticketguy/Keepshot/lib/monitor"
	"github.com/ticketguy/Keepshot/lib/notify"
	"github.com/ticketguy/Keepshot/lib/scheduler"
	"github.com/ticketguy/Keepshot/lib/scrape"
	"github.com/ticketguy/Keepshot/lib/store"
	"github.com/ticketguy/Keepshot/senders"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func NewLogger() (*zap.Logger, error) {
	switch os.Getenv("ENVIRONMENT") {
	default:
		return zap.NewDevelopment()

	case "production":
		logCfg := zap.NewProductionConfig()
		logCfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
			t = t.UTC()
			zapcore.ISO8601TimeEncoder(t, enc)
		}
		return logCfg.Build()
	}
}

func main() {
	fx.New(
		fx.Provide(config.NewConfig),
		fx.Provide(NewLogger),

		fx.Provide(senders.NewSenderRegistry),

		fx.Provide(app.NewDatabase),
		fx.Provide(app.NewTransport),

		fx.Provide(scrape.NewScraper),
		fx.Provide(ai.NewClient),
		fx.Provide(func(c *ai.Client) (ai.Extractor, ai.Analyzer, ai.Generator) { return c, c, c }),

		fx.Provide(store.NewSnapshotStore),
		fx.Provide(notify.NewDispatcher),
		fx.Provide(func(s *scrape.Scraper) monitor.ContentFetcher { return s }),
		fx.Provide(func(d *notify.Dispatcher) monitor.Dispatcher { return d }),
		fx.Provide(monitor.New),
		fx.Provide(scheduler.NewScheduler),

		fx.Provide(lib.NewService),
		fx.Provide(app.NewAPI),

		fx.Invoke(func(*scheduler.Scheduler) {}),
		fx.Invoke(func(*http.Server) {}),
	).Run()
}
