// Package main loads the sample library into the configured store.
//
// Usage:
//
//	go run ./cmd/seed
//	STORE_DRIVER=badger DATA_PATH=/tmp/library go run ./cmd/seed
//
// Authors are reused when already present, books are always added, so
// running it twice duplicates the books.
package main

import (
	"context"
	"os"

	"github.com/listenupapp/library-server/internal/config"
	"github.com/listenupapp/library-server/internal/di/providers"
	"github.com/listenupapp/library-server/internal/logger"
	"github.com/listenupapp/library-server/internal/seed"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.New(logger.Config{}).Fatalf("Failed to load config: %v", err)
	}

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		Environment: cfg.App.Environment,
	})

	st, path, err := providers.OpenStore(cfg.Store, log)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}

	res, err := seed.Load(context.Background(), st)
	closeErr := st.Close()
	if err != nil {
		log.WithError(err).Error("Seeding failed")
		os.Exit(1)
	}
	if closeErr != nil {
		log.WithError(closeErr).Warn("Failed to close store")
	}

	log.Info("Seed complete",
		"driver", cfg.Store.Driver,
		"path", path,
		"authors", res.Authors,
		"books", res.Books,
	)
}
