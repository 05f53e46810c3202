package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"profilephoto/internal/cache"
	"profilephoto/internal/config"
	"profilephoto/internal/database"
	"profilephoto/internal/handlers"
	"profilephoto/internal/log"
	"profilephoto/internal/queue"
	"profilephoto/internal/repository"
	"profilephoto/internal/server"
	"profilephoto/internal/service"
	"profilephoto/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level).With().Str("service", "api").Logger()

	ctx := context.Background()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}

	if cfg.Postgres.MigrateOnStart {
		if err := database.Migrate(ctx, dbPool, logger); err != nil {
			logger.Fatal().Err(err).Msg("database migration failed")
		}
	}

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}
	if err := objectStore.EnsureBucket(ctx, cfg.Storage.Bucket); err != nil {
		logger.Warn().Err(err).Msg("ensure bucket failed")
	}

	checks := handlers.Checks{
		Database: dbPool.Ping,
		Storage: func(ctx context.Context) error {
			_, err := objectStore.BucketExists(ctx, cfg.Storage.Bucket)
			return err
		},
	}

	var kicker service.Kicker
	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, uploads wait for the scheduled thumbnail run")
		redisClient = nil
	} else {
		checks.Cache = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
		if cfg.Queue.Enabled {
			kicker = queue.NewPublisher(redisClient, cfg.Queue.Stream)
		}
	}

	profiles := repository.NewProfileRepository(dbPool)
	handlerSet := handlers.NewHandlerSet(
		logger,
		cfg,
		service.NewProfileService(profiles, logger),
		service.NewUploadService(profiles, objectStore, kicker, cfg.Storage.Bucket, cfg.HTTP.MaxUploadMB<<20, logger),
		checks,
	)
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet)

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, dbPool, redisClient)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, db *pgxpool.Pool, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	db.Close()
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("redis close error")
		}
	}

	logger.Info().Msg("server exited cleanly")
}
