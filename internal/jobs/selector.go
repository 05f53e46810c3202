package jobs

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

const DefaultBatchSize = 10

type PendingLister interface {
	SelectPending(ctx context.Context, limit int) ([]uuid.UUID, error)
}

// PendingSelector picks the next batch of profiles that have an upload but
// no thumbnail yet, oldest first. It has no side effects.
type PendingSelector struct {
	profiles  PendingLister
	batchSize int
}

func NewPendingSelector(profiles PendingLister, batchSize int) *PendingSelector {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &PendingSelector{profiles: profiles, batchSize: batchSize}
}

func (s *PendingSelector) Next(ctx context.Context) ([]uuid.UUID, error) {
	ids, err := s.profiles.SelectPending(ctx, s.batchSize)
	if err != nil {
		return nil, fmt.Errorf("select pending profiles: %w", err)
	}
	return ids, nil
}
