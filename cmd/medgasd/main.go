package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"medgas-backend/config"
	"medgas-backend/internal/api"
	"medgas-backend/internal/billing"
	"medgas-backend/internal/blob"
	"medgas-backend/internal/blobgc"
	"medgas-backend/internal/db"
	"medgas-backend/internal/logging"
	"medgas-backend/internal/mw"
	"medgas-backend/internal/store"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, cfg.Log.Service)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()
	logger.Info("configuration loaded", zap.String("path", configPath))

	// Initialize database
	gormDB, err := db.Init(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		logger.Fatal("failed to open blob store", zap.Error(err))
	}
	logger.Info("blob store ready", zap.String("driver", string(blobs.Driver())))

	emitter, err := billing.Open(cfg.Billing, logger)
	if err != nil {
		logger.Fatal("failed to build billing emitter", zap.Error(err))
	}

	reaper := blobgc.NewPool(cfg.Blob.ReaperWorkers, blobs, logger)
	reaper.Start(ctx)

	appStore := store.New(gormDB, store.Options{
		Logger:                logger,
		Blobs:                 blobs,
		Reaper:                reaper,
		Billing:               emitter,
		EquipmentDeletePolicy: store.EquipmentDeletePolicy(cfg.Features.EquipmentDeletePolicy),
		HierarchyDeletePolicy: store.HierarchyDeletePolicy(cfg.Features.HierarchyDeletePolicy),
		SignedURLTTL:          cfg.Blob.SignedURLTTL,
	})
	logger.Info("data store initialized",
		zap.String("equipment_delete_policy", cfg.Features.EquipmentDeletePolicy),
		zap.String("hierarchy_delete_policy", cfg.Features.HierarchyDeletePolicy),
	)

	router := api.NewRouter(appStore, cfg.Server, logger, mw.NewMetrics("medgas"))
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		logger.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server ListenAndServe", zap.Error(err))
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	// Block until a signal is received.
	<-stop
	logger.Info("shutdown signal received, stopping services")

	// Create a deadline to wait for.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server Shutdown", zap.Error(err))
	}
	cancel()

	logger.Info("server gracefully stopped")
}
