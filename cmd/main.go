package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"time"

	"github.com/RickGroenewegen/qrhit-api-sub006/internal/cache"
	"github.com/RickGroenewegen/qrhit-api-sub006/internal/credentials"
	"github.com/RickGroenewegen/qrhit-api-sub006/internal/providers"
	"github.com/RickGroenewegen/qrhit-api-sub006/internal/reload"
	"github.com/RickGroenewegen/qrhit-api-sub006/internal/repositories"
	"github.com/RickGroenewegen/qrhit-api-sub006/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)

	config := shared.DefaultConfig()
	if _, err := os.Stat("config.toml"); err == nil {
		if loadedConfig, err := shared.LoadConfig("config.toml"); err == nil {
			config = loadedConfig
		} else {
			logger.Warn("failed to load config.toml, using defaults", "error", err)
		}
	}

	var cacheStore cache.Store = cache.NewMemory()
	if config.Cache.Path != "" {
		if bolt, err := cache.NewBolt(config.Cache.Path); err == nil {
			cacheStore = bolt
			defer bolt.Close()
		} else {
			logger.Warn("failed to open cache file, using in-memory cache", "path", config.Cache.Path, "error", err)
		}
	}

	// The database is created by setup. Until then token persistence and
	// reload are unavailable but read-only commands still work.
	var credStore credentials.Store = credentials.NewMemoryStore()
	var db *sql.DB
	if _, err := os.Stat(config.Database.Path); err == nil {
		if opened, err := shared.NewDatabase(config.Database.Path); err == nil {
			db = opened
			defer db.Close()
			shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)
			if store, err := credentials.NewSQLStore(db); err == nil {
				credStore = store
			} else {
				logger.Warn("failed to open settings store", "error", err)
			}
		} else {
			logger.Warn("failed to open database", "path", config.Database.Path, "error", err)
		}
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}

	registry := providers.NewRegistry(
		providers.NewSpotifyProvider(config.Credentials.Spotify, credStore, cacheStore, httpClient, logger),
		providers.NewYTMusicProvider(cacheStore, httpClient, logger),
		providers.NewAppleMusicProvider(config.Credentials.AppleMusic, cacheStore, httpClient, logger),
		providers.NewDeezerProvider(cacheStore, httpClient, logger),
		providers.NewTidalProvider(config.Credentials.Tidal, credStore, cacheStore, httpClient, logger),
	)

	var guard *reload.Guard
	if db != nil {
		guard = reload.NewGuard(repositories.NewFulfillmentStore(db), registry, cacheStore, logger, config.Production())
	}

	runner := NewRunner(RunnerOpts{
		Config:     config,
		Registry:   registry,
		Guard:      guard,
		Cache:      cacheStore,
		CredStore:  credStore,
		HTTPClient: httpClient,
		Logger:     logger,
	})

	app := &cli.Command{
		Name:     "qrhit",
		Usage:    "Normalize and reload streaming service playlists",
		Version:  "0.3.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		logger.Fatalf("application error: %v", err)
	}
}
