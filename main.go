package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"bandersnatch/config"
	"bandersnatch/db"
	qhttp "bandersnatch/http"
	"bandersnatch/logging"
	"bandersnatch/ml"
	"bandersnatch/storage"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config")
	flag.Parse()

	// 1. Load config and logger
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, closeLogger, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer closeLogger()

	// 2. Open the document store, seeding an empty collection
	database, err := db.Open(cfg.Database.Path, cfg.Database.Collection, logger)
	if err != nil {
		logger.Fatal("failed to open database", zap.Error(err))
	}
	defer database.Close()

	count, err := database.Count()
	if err != nil {
		logger.Fatal("failed to count documents", zap.Error(err))
	}
	if count == 0 && cfg.Database.SeedSize > 0 {
		if err := database.Seed(cfg.Database.SeedSize); err != nil {
			logger.Fatal("failed to seed database", zap.Error(err))
		}
	}

	// 3. Open the model store
	store, closeStore, err := openModelStore(cfg)
	if err != nil {
		logger.Fatal("failed to open model store", zap.Error(err))
	}
	defer closeStore()

	// 4. Restore the model, or train and save one
	trainOptions := []ml.Option{
		ml.WithLogger(logger),
		ml.WithForestOptions(
			ml.WithEstimators(cfg.Model.Estimators),
			ml.WithMaxDepth(cfg.Model.MaxDepth),
			ml.WithRandomState(cfg.Model.Seed),
		),
	}
	api, err := qhttp.NewAPI(qhttp.APIConfig{
		Database:     database,
		Store:        store,
		Locator:      cfg.Model.Path,
		CacheSize:    cfg.Http.PredictionCacheSize,
		TrainOptions: trainOptions,
		Logger:       logger,
	})
	if err != nil {
		logger.Fatal("failed to build api", zap.Error(err))
	}

	if _, err := api.LoadOrTrain(); err != nil {
		logger.Fatal("failed to initialise model", zap.Error(err))
	}
	logger.Info(api.Machine().Info())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 5. Hot-swap when the artifact file is replaced
	if cfg.Model.Store == "file" && cfg.Model.Watch {
		go func() {
			err := storage.Watch(ctx, cfg.Model.Path, logger, func() {
				if _, err := api.Reload(); err != nil {
					logger.Warn("failed to reload model", zap.Error(err))
					return
				}
				logger.Info("model reloaded", zap.String("path", cfg.Model.Path))
			})
			if err != nil {
				logger.Error("artifact watcher stopped", zap.Error(err))
			}
		}()
	}

	// 6. Start HTTP server
	serverConfig := qhttp.DefaultServerConfig()
	serverConfig.Port = cfg.Http.Port
	server := qhttp.NewServer(serverConfig, api, logger)
	go func() {
		if err := server.Start(); err != nil {
			logger.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	// 7. Handle graceful shutdown
	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Warn("server forced to shutdown", zap.Error(err))
	}
	logger.Info("exiting")
}

// openModelStore returns the configured blob store behind the read cache.
func openModelStore(cfg *config.Config) (storage.BlobStore, func() error, error) {
	var inner storage.BlobStore
	closeFn := func() error { return nil }
	switch cfg.Model.Store {
	case "sqlite":
		sqliteStore, err := storage.NewSQLiteStore(cfg.Model.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		inner = sqliteStore
		closeFn = sqliteStore.Close
	default:
		inner = storage.NewFileStore("")
	}
	cached, err := storage.NewCachedStore(inner, cfg.Model.CacheSize)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return cached, closeFn, nil
}
