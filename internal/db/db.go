// Package db opens the canonical store's Postgres connection with the
// pool, logging and tracing settings from config.
package db

import (
	"fmt"
	"log/slog"

	sloggorm "github.com/orandin/slog-gorm"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormtracing "gorm.io/plugin/opentelemetry/tracing"

	"github.com/cpaggregator/cpaggregator/internal/config"
	"github.com/cpaggregator/cpaggregator/internal/logger"
)

func Open(cfg *config.Config) (*gorm.DB, error) {
	gormLogger := slog.New(logger.Handler)
	sg := sloggorm.New(
		sloggorm.WithHandler(gormLogger.Handler()),
		sloggorm.SetLogLevel(sloggorm.DefaultLogType, slog.Level(cfg.Logging.Gorm.Level)),
	)

	db, err := gorm.Open(
		postgres.Open(cfg.PostgresDSN()),
		&gorm.Config{Logger: sg, TranslateError: true},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire underlying database connection: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.Postgres.MaxIdleConnections)
	sqlDB.SetMaxOpenConns(cfg.Postgres.MaxOpenConnections)
	sqlDB.SetConnMaxLifetime(cfg.Postgres.ConnectionTTL)

	if err := db.Use(gormtracing.NewPlugin()); err != nil {
		return nil, fmt.Errorf("failed to add otel plugin to gorm: %w", err)
	}

	return db, nil
}
