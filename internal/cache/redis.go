package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"profilephoto/internal/config"
)

const pingTimeout = 5 * time.Second

// NewRedisClient connects the client shared by the thumbnail run lock and
// the upload kick stream. An unreachable server is returned as an error so
// callers can decide whether to run without them.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig, log zerolog.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s db %d: %w", cfg.Addr, cfg.DB, err)
	}

	log.Info().
		Str("component", "redis").
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Msg("redis connected for run lock and kick stream")
	return client, nil
}
