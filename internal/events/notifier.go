package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// ThumbnailReady is published once a thumbnail has been committed.
type ThumbnailReady struct {
	ProfileID     string    `json:"profileId"`
	Bucket        string    `json:"bucket"`
	ThumbnailName string    `json:"thumbnailName"`
	OccurredAt    time.Time `json:"occurredAt"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaNotifier struct {
	writer messageWriter
}

func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
	}
}

func (n *KafkaNotifier) ThumbnailReady(ctx context.Context, evt ThumbnailReady) error {
	msg, err := encode(evt)
	if err != nil {
		return err
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish thumbnail ready: %w", err)
	}
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

func encode(evt ThumbnailReady) (kafka.Message, error) {
	value, err := json.Marshal(evt)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal thumbnail ready: %w", err)
	}
	return kafka.Message{
		Key:   []byte(evt.ProfileID),
		Value: value,
		Time:  evt.OccurredAt,
	}, nil
}

type NopNotifier struct{}

func (NopNotifier) ThumbnailReady(context.Context, ThumbnailReady) error { return nil }

func (NopNotifier) Close() error { return nil }
