package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"profilephoto/internal/ids"
)

const RunLockKey = "profiles:thumbnails:run-lock"

// releaseScript deletes the lock only if it still carries our token, so a
// holder whose TTL lapsed cannot release a successor's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type lockClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RunLock is a single-holder lease in redis shared by every worker process.
type RunLock struct {
	client lockClient
	key    string
	ttl    time.Duration
	log    zerolog.Logger
}

func NewRunLock(client lockClient, key string, ttl time.Duration, log zerolog.Logger) *RunLock {
	if key == "" {
		key = RunLockKey
	}
	return &RunLock{
		client: client,
		key:    key,
		ttl:    ttl,
		log:    log.With().Str("component", "run_lock").Str("key", key).Logger(),
	}
}

func (l *RunLock) Acquire(ctx context.Context) (func(), bool, error) {
	token := ids.New()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			l.log.Warn().Err(err).Msg("release run lock failed")
		}
	}
	return release, true, nil
}
