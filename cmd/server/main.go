package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Harshitk-cp/concord/internal/api"
	"github.com/Harshitk-cp/concord/internal/config"
	"github.com/Harshitk-cp/concord/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	if err := config.Load(); err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx := context.Background()

	var stores api.Stores
	var pool *pgxpool.Pool

	switch backend := config.StorageBackend(); backend {
	case "postgres":
		dbURL := config.DatabaseURL()
		if dbURL == "" {
			logger.Fatal("DATABASE_URL is required for the postgres backend")
		}

		var err error
		pool, err = pgxpool.New(ctx, dbURL)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pool.Close()

		if err := pool.Ping(ctx); err != nil {
			logger.Fatal("failed to ping database", zap.Error(err))
		}
		if err := store.EnsureSchema(ctx, pool); err != nil {
			logger.Fatal("failed to ensure schema", zap.Error(err))
		}
		logger.Info("connected to database")

		stores = api.Stores{
			Conflicts:  store.NewPGConflictStore(pool),
			Votes:      store.NewPGVoteStore(pool),
			Evolutions: store.NewPGEvolutionStore(pool),
		}

	case "file":
		dataDir := config.DataDir()

		conflictStore, err := store.NewFileConflictStore(filepath.Join(dataDir, "conflicts"), logger)
		if err != nil {
			logger.Fatal("failed to open conflict store", zap.Error(err))
		}
		voteStore, err := store.NewFileVoteStore(filepath.Join(dataDir, "votes"), logger)
		if err != nil {
			logger.Fatal("failed to open vote store", zap.Error(err))
		}
		evolutionStore, err := store.NewFileEvolutionStore(filepath.Join(dataDir, "history"), logger)
		if err != nil {
			logger.Fatal("failed to open evolution store", zap.Error(err))
		}
		logger.Info("using file storage", zap.String("dir", dataDir))

		stores = api.Stores{
			Conflicts:  conflictStore,
			Votes:      voteStore,
			Evolutions: evolutionStore,
		}

	default:
		logger.Fatal("unknown storage backend", zap.String("backend", backend))
	}

	app, err := api.NewApp(ctx, stores, pool, logger)
	if err != nil {
		logger.Fatal("failed to initialize app", zap.Error(err))
	}

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:    addr,
		Handler: app.Router,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
