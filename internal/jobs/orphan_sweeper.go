package jobs

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"profilephoto/internal/apperr"
	"profilephoto/internal/models"
	"profilephoto/internal/thumbnail"
)

type ObjectLister interface {
	ListObjects(ctx context.Context, bucket, prefix string) ([]string, error)
	DeleteObject(ctx context.Context, bucket, name string) error
}

type ProfileReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (models.Profile, error)
}

// OrphanSweeper deletes thumbnail blobs no committed profile points at:
// leftovers of attempts that died between writing the thumbnail and
// committing, and thumbnails superseded by a newer upload. It must run under
// the same mutual exclusion as ThumbnailJob or it would reap in-flight work.
type OrphanSweeper struct {
	blobs    ObjectLister
	profiles ProfileReader
	bucket   string
	log      zerolog.Logger
}

func NewOrphanSweeper(blobs ObjectLister, profiles ProfileReader, bucket string, log zerolog.Logger) *OrphanSweeper {
	return &OrphanSweeper{
		blobs:    blobs,
		profiles: profiles,
		bucket:   bucket,
		log:      log.With().Str("component", "orphan_sweeper").Logger(),
	}
}

func (s *OrphanSweeper) Run(ctx context.Context) error {
	_, err := s.Sweep(ctx)
	return err
}

// Sweep returns the number of orphans removed.
func (s *OrphanSweeper) Sweep(ctx context.Context) (int, error) {
	names, err := s.blobs.ListObjects(ctx, s.bucket, "")
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("list objects: %w", err)
	}

	removed := 0
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		profileID, ok := thumbnail.IsThumbnailName(name)
		if !ok {
			continue
		}

		orphan, err := s.isOrphan(ctx, profileID, name)
		if err != nil {
			s.log.Warn().Err(err).Str("object", name).Msg("cannot resolve thumbnail owner, keeping it")
			continue
		}
		if !orphan {
			continue
		}

		if err := s.blobs.DeleteObject(ctx, s.bucket, name); err != nil && !apperr.Is(err, apperr.KindNotFound) {
			s.log.Error().Err(err).Str("object", name).Msg("delete orphan thumbnail failed")
			continue
		}
		removed++
		s.log.Info().Str("object", name).Msg("orphan thumbnail removed")
	}

	if removed > 0 {
		s.log.Info().Int("removed", removed).Msg("orphan sweep finished")
	}
	return removed, nil
}

func (s *OrphanSweeper) isOrphan(ctx context.Context, profileID, name string) (bool, error) {
	id, err := uuid.Parse(profileID)
	if err != nil {
		return true, nil
	}

	profile, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return true, nil
		}
		return false, err
	}

	return !profile.HasThumbnail || profile.ThumbnailName == nil || *profile.ThumbnailName != name, nil
}
