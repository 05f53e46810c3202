package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"profilephoto/internal/jobs"
)

const (
	TypeThumbnail = "thumbnail"
	TypeSweep     = "sweep"
)

// Payload is the body of a kick message. ProfileID is informational: a kick
// runs a whole batch, and the batch picks up every pending profile.
type Payload struct {
	Type      string `json:"type"`
	ProfileID string `json:"profileId"`
}

type Trigger interface {
	Trigger(name string) (bool, error)
}

// Processor turns kick messages into immediate scheduler runs. A kick that
// lands while a run is in flight is dropped; the next scheduled run covers it.
type Processor struct {
	scheduler Trigger
	logger    zerolog.Logger
}

func NewProcessor(scheduler Trigger, logger zerolog.Logger) *Processor {
	return &Processor{
		scheduler: scheduler,
		logger:    logger.With().Str("component", "queue_processor").Logger(),
	}
}

func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	var payload Payload
	if err := decodePayload(msg.Values, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	switch payload.Type {
	case TypeThumbnail:
		return p.trigger(jobs.TaskThumbnails, payload, msg.ID)
	case TypeSweep:
		return p.trigger(jobs.TaskOrphans, payload, msg.ID)
	default:
		p.logger.Warn().Str("type", payload.Type).Str("message_id", msg.ID).Msg("unknown task type")
		return nil
	}
}

func (p *Processor) trigger(task string, payload Payload, msgID string) error {
	log := p.logger.With().
		Str("task", task).
		Str("profile_id", payload.ProfileID).
		Str("message_id", msgID).
		Logger()

	ran, err := p.scheduler.Trigger(task)
	if errors.Is(err, jobs.ErrUnknownTask) {
		return err
	}
	// A failed run is already logged by the scheduler and the schedule
	// retries it; redelivering the kick would not help.
	if err != nil {
		log.Warn().Err(err).Msg("kicked run failed")
		return nil
	}
	if !ran {
		log.Debug().Msg("run already in flight, kick coalesced")
		return nil
	}
	log.Debug().Msg("kicked run finished")
	return nil
}

func decodePayload(values map[string]interface{}, out *Payload) error {
	raw, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
