package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// Publisher enqueues kick messages for the worker.
type Publisher struct {
	client streamAdder
	stream string
}

func NewPublisher(client streamAdder, stream string) *Publisher {
	return &Publisher{client: client, stream: stream}
}

func (p *Publisher) KickThumbnail(ctx context.Context, profileID string) error {
	return p.publish(ctx, Payload{Type: TypeThumbnail, ProfileID: profileID})
}

func (p *Publisher) publish(ctx context.Context, payload Payload) error {
	_, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"type":      payload.Type,
			"profileId": payload.ProfileID,
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("enqueue %s kick: %w", payload.Type, err)
	}
	return nil
}
