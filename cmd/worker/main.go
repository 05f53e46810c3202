package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"profilephoto/internal/cache"
	"profilephoto/internal/config"
	"profilephoto/internal/database"
	"profilephoto/internal/events"
	"profilephoto/internal/jobs"
	"profilephoto/internal/log"
	"profilephoto/internal/queue"
	"profilephoto/internal/repository"
	"profilephoto/internal/storage"
	"profilephoto/internal/thumbnail"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level).With().Str("service", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}
	defer dbPool.Close()

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}

	var redisClient *redis.Client
	redisClient, err = cache.NewRedisClient(ctx, cfg.Redis, logger)
	if err != nil {
		if cfg.Queue.Enabled {
			logger.Fatal().Err(err).Msg("failed to connect redis")
		}
		logger.Warn().Err(err).Msg("redis unavailable, running without cross-process run lock")
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	var notifier interface {
		jobs.Notifier
		Close() error
	} = events.NopNotifier{}
	if len(cfg.Kafka.Brokers) > 0 {
		notifier = events.NewKafkaNotifier(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		logger.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("thumbnail events enabled")
	}
	defer func() {
		if err := notifier.Close(); err != nil {
			logger.Error().Err(err).Msg("notifier close error")
		}
	}()

	profiles := repository.NewProfileRepository(dbPool)
	thumbnailJob := jobs.NewThumbnailJob(
		jobs.NewPendingSelector(profiles, cfg.Thumbnails.BatchSize),
		func() jobs.UnitOfWork { return repository.NewUnitOfWork(dbPool) },
		objectStore,
		thumbnail.Build,
		notifier,
		jobs.ThumbnailJobConfig{
			Bucket:            cfg.Storage.Bucket,
			Size:              thumbnail.Size{Width: cfg.Thumbnails.Width, Height: cfg.Thumbnails.Height},
			CompensateTimeout: cfg.Thumbnails.CompensateTimeout,
		},
		logger,
	)
	sweeper := jobs.NewOrphanSweeper(objectStore, profiles, cfg.Storage.Bucket, logger)

	var guard jobs.RunGuard
	if redisClient != nil {
		guard = cache.NewRunLock(redisClient, cache.RunLockKey, cfg.Thumbnails.RunLockTTL, logger)
	}

	scheduler := jobs.NewScheduler(guard, logger)
	if err := scheduler.Register(jobs.TaskThumbnails, cfg.Thumbnails.Schedule, thumbnailJob); err != nil {
		logger.Fatal().Err(err).Msg("register thumbnail job failed")
	}
	if err := scheduler.Register(jobs.TaskOrphans, cfg.Thumbnails.ReconcileSchedule, sweeper); err != nil {
		logger.Fatal().Err(err).Msg("register orphan sweep failed")
	}
	scheduler.Start()

	if cfg.Queue.Enabled {
		consumer := queue.NewConsumer(
			redisClient,
			cfg.Queue.Stream,
			cfg.Queue.Group,
			cfg.Queue.Consumer,
			cfg.Queue.Block,
			cfg.Queue.ClaimInterval,
			logger,
			queue.NewProcessor(scheduler, logger),
		)
		go func() {
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("queue consumer stopped unexpectedly")
				stop()
			}
		}()
	}

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	scheduler.Stop(shutdownTimeout)
	logger.Info().Msg("worker exited cleanly")
}
