// Package cmds defines the scraper CLI: ingestion entry points meant to
// be invoked by an external scheduler, plus migration and seed helpers.
package cmds

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/cpaggregator/cpaggregator/internal/config"
	"github.com/cpaggregator/cpaggregator/internal/db"
	"github.com/cpaggregator/cpaggregator/internal/fetch"
	"github.com/cpaggregator/cpaggregator/internal/ingest"
	"github.com/cpaggregator/cpaggregator/internal/logger"
	"github.com/cpaggregator/cpaggregator/internal/scrapers"
	"github.com/cpaggregator/cpaggregator/internal/sink"

	"github.com/redis/go-redis/v9"
)

var tracer = otel.Tracer("github.com/cpaggregator/cpaggregator/scraper")

var rootCmd = &cobra.Command{
	Use:   "scraper",
	Short: "Scrapes competitive programming judges into the canonical store",
}

func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

type app struct {
	cfg          *config.Config
	db           *gorm.DB
	store        *sink.Store
	scrapers     *scrapers.Factory
	orchestrator *ingest.Orchestrator
}

// setup loads config and wires the whole pipeline: store, adapter
// factory and orchestrator.
func setup(ctx context.Context) (*app, error) {
	cfg, err := config.GetConfig()
	if err != nil {
		return nil, err
	}
	logger.LogLevel.Set(slog.Level(cfg.Logging.App.Level))

	gormDB, err := db.Open(cfg)
	if err != nil {
		return nil, err
	}

	var limiter fetch.Limiter
	if cfg.Scraper.RequestsPerMinute > 0 {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Host + ":6379"})
		limiter = fetch.NewRedisLimiter(redisClient, cfg.Scraper.RequestsPerMinute)
	}

	store := sink.New(gormDB)
	factory := scrapers.NewFactory(cfg.Scraper, limiter)
	orchestrator := ingest.New(factory, store, store, cfg.Scraper.BatchSize)

	logger.Logger.InfoContext(ctx, "pipeline ready")
	return &app{
		cfg:          cfg,
		db:           gormDB,
		store:        store,
		scrapers:     factory,
		orchestrator: orchestrator,
	}, nil
}
