package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/formsync/formsync/internal/classify"
	"github.com/formsync/formsync/internal/config"
	"github.com/formsync/formsync/internal/database"
	"github.com/formsync/formsync/internal/normalize"
	"github.com/formsync/formsync/internal/rawstore"
	"github.com/formsync/formsync/internal/seed"
	"github.com/formsync/formsync/internal/store"
	"github.com/formsync/formsync/internal/sync"
)

func main() {
	if err := run(); err != nil {
		logrus.WithError(err).Fatal("fatal error")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	logger.SetLevel(level)

	db, d, err := database.Open(cfg.Database.Driver, cfg.Database.DSN, database.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := database.Migrate(ctx, db, d); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	if cfg.Sync.SeedDemo {
		if err := seed.Seed(ctx, db, d); err != nil {
			return fmt.Errorf("seed demo data: %w", err)
		}
		logger.Info("demo raw tabs seeded")
	}

	st := store.New(db, d)
	tabs := rawstore.NewSQLTabStore(db, d, logger)
	engine := normalize.NewNormalizer(db, st, tabs, classify.NewKeywordClassifier(), logger, cfg.Sync.SampleRows)
	tracker := sync.NewTracker(db, tabs, st.Sync, logger)
	scheduler := sync.NewScheduler(tracker, engine, logger)

	if cfg.Sync.AutoStart {
		scheduler.Start(cfg.Sync.Interval)
	} else {
		logger.Info("auto-sync disabled, waiting for manual triggers")
	}

	logger.WithFields(logrus.Fields{
		"driver":   cfg.Database.Driver,
		"interval": cfg.Sync.Interval,
	}).Info("formsync running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	scheduler.Stop()
	return nil
}
