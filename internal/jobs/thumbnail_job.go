package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"profilephoto/internal/apperr"
	"profilephoto/internal/events"
	"profilephoto/internal/media/sniffer"
	"profilephoto/internal/models"
	"profilephoto/internal/thumbnail"
)

const defaultCompensateTimeout = 30 * time.Second

type BlobStore interface {
	EnsureBucket(ctx context.Context, bucket string) error
	GetObject(ctx context.Context, bucket, name string) ([]byte, error)
	PutObject(ctx context.Context, bucket, name string, data []byte, contentType string) error
	DeleteObject(ctx context.Context, bucket, name string) error
}

// UnitOfWork is one transaction scope over the profile records.
type UnitOfWork interface {
	Begin(ctx context.Context, level pgx.TxIsoLevel) error
	GetProfile(ctx context.Context, id uuid.UUID) (models.Profile, error)
	UpdateProfile(ctx context.Context, profile models.Profile) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type Notifier interface {
	ThumbnailReady(ctx context.Context, evt events.ThumbnailReady) error
}

// Builder is the image transform; thumbnail.Build in production.
type Builder func(original []byte, size thumbnail.Size) ([]byte, error)

type ThumbnailJobConfig struct {
	Bucket            string
	Size              thumbnail.Size
	CompensateTimeout time.Duration
}

type ThumbnailJob struct {
	selector *PendingSelector
	newUnit  func() UnitOfWork
	blobs    BlobStore
	build    Builder
	notifier Notifier
	cfg      ThumbnailJobConfig
	log      zerolog.Logger
	now      func() time.Time
}

// Result summarises one batch run.
type Result struct {
	Selected    int
	Built       int
	Compensated int
	Skipped     int
	Failed      int
}

type outcome int

const (
	outcomeFailed outcome = iota
	outcomeBuilt
	outcomeCompensated
	outcomeSkipped
)

const (
	stepDeleteOriginal = "delete original"
	stepUpdate         = "update profile"
	stepCommit         = "commit"
)

func NewThumbnailJob(selector *PendingSelector, newUnit func() UnitOfWork, blobs BlobStore, build Builder, notifier Notifier, cfg ThumbnailJobConfig, log zerolog.Logger) *ThumbnailJob {
	if cfg.CompensateTimeout <= 0 {
		cfg.CompensateTimeout = defaultCompensateTimeout
	}
	if notifier == nil {
		notifier = events.NopNotifier{}
	}
	return &ThumbnailJob{
		selector: selector,
		newUnit:  newUnit,
		blobs:    blobs,
		build:    build,
		notifier: notifier,
		cfg:      cfg,
		log:      log.With().Str("component", "thumbnail_job").Logger(),
		now:      time.Now,
	}
}

func (j *ThumbnailJob) Run(ctx context.Context) error {
	_, err := j.RunBatch(ctx)
	return err
}

// RunBatch builds thumbnails for one batch of pending profiles, one at a
// time. A failing profile is logged and the batch moves on; only a failed
// selection or cancellation ends the run early.
func (j *ThumbnailJob) RunBatch(ctx context.Context) (Result, error) {
	j.log.Debug().Msg("checking profiles without thumbnails")

	ids, err := j.selector.Next(ctx)
	if err != nil {
		return Result{}, err
	}

	res := Result{Selected: len(ids)}
	if len(ids) == 0 {
		j.log.Debug().Msg("no profiles pending thumbnail generation")
		return res, nil
	}

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			j.log.Warn().Err(err).Int("remaining", len(ids)-i).Msg("thumbnail run cancelled")
			return res, err
		}

		j.log.Info().Str("profile_id", id.String()).Msg("building thumbnail")
		out, err := j.buildOne(ctx, id)
		switch out {
		case outcomeBuilt:
			res.Built++
		case outcomeCompensated:
			res.Compensated++
		case outcomeSkipped:
			res.Skipped++
		default:
			res.Failed++
			j.log.Error().
				Err(err).
				Str("profile_id", id.String()).
				Str("kind", apperr.KindOf(err).String()).
				Msg("thumbnail build failed")
		}
	}

	j.log.Info().
		Int("selected", res.Selected).
		Int("built", res.Built).
		Int("compensated", res.Compensated).
		Int("failed", res.Failed).
		Msg("thumbnail run finished")

	return res, nil
}

// BuildOne runs a single build attempt for id. A compensated attempt is not
// an error: the profile stays pending and the next run retries it.
func (j *ThumbnailJob) BuildOne(ctx context.Context, id uuid.UUID) error {
	_, err := j.buildOne(ctx, id)
	return err
}

// attempt tracks what a build attempt changed in the blob store so
// compensation can put it back.
type attempt struct {
	profileID       uuid.UUID
	original        string
	originalData    []byte
	originalDeleted bool
	thumbnailName   string
}

func (j *ThumbnailJob) buildOne(ctx context.Context, id uuid.UUID) (outcome, error) {
	log := j.log.With().Str("profile_id", id.String()).Logger()

	uow := j.newUnit()
	if err := uow.Begin(ctx, pgx.Serializable); err != nil {
		return outcomeFailed, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err := uow.Rollback(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Msg("rollback failed")
		}
	}()

	profile, err := uow.GetProfile(ctx, id)
	if err != nil {
		return outcomeFailed, fmt.Errorf("load profile: %w", err)
	}
	if !profile.Pending() {
		log.Debug().Msg("profile no longer pending")
		return outcomeSkipped, nil
	}

	if err := j.blobs.EnsureBucket(ctx, j.cfg.Bucket); err != nil {
		return outcomeFailed, fmt.Errorf("ensure bucket: %w", err)
	}

	att := attempt{profileID: id, original: *profile.TempPictureName}

	att.originalData, err = j.blobs.GetObject(ctx, j.cfg.Bucket, att.original)
	if err != nil {
		return outcomeFailed, fmt.Errorf("read original %s: %w", att.original, err)
	}

	thumb, err := j.build(att.originalData, j.cfg.Size)
	if err != nil {
		return outcomeFailed, fmt.Errorf("build thumbnail: %w", err)
	}

	// The thumbnail is written before the original is removed so that a
	// failure in between never leaves the profile with neither.
	att.thumbnailName = thumbnail.ObjectName(id.String(), att.original)
	if err := j.blobs.PutObject(ctx, j.cfg.Bucket, att.thumbnailName, thumb, thumbnail.ContentType); err != nil {
		return outcomeFailed, fmt.Errorf("write thumbnail %s: %w", att.thumbnailName, err)
	}

	switch err := j.blobs.DeleteObject(ctx, j.cfg.Bucket, att.original); {
	case err == nil:
		att.originalDeleted = true
	case apperr.Is(err, apperr.KindNotFound):
		log.Debug().Str("object", att.original).Msg("original already removed")
	default:
		// The removal may have landed before the failure surfaced.
		att.originalDeleted = true
		return j.abort(ctx, uow, att, stepDeleteOriginal, err, log)
	}

	profile.MarkThumbnail(att.thumbnailName)
	if err := uow.UpdateProfile(ctx, profile); err != nil {
		return j.abort(ctx, uow, att, stepUpdate, err, log)
	}

	// Past this point a cancelled context would make the commit outcome
	// ambiguous; stop while it is still certain nothing was committed.
	if err := ctx.Err(); err != nil {
		return j.abort(ctx, uow, att, stepUpdate, err, log)
	}
	if err := uow.Commit(ctx); err != nil {
		return j.abort(ctx, uow, att, stepCommit, err, log)
	}

	log.Info().Str("thumbnail", att.thumbnailName).Msg("thumbnail committed")

	evt := events.ThumbnailReady{
		ProfileID:     id.String(),
		Bucket:        j.cfg.Bucket,
		ThumbnailName: att.thumbnailName,
		OccurredAt:    j.now().UTC(),
	}
	if err := j.notifier.ThumbnailReady(ctx, evt); err != nil {
		log.Warn().Err(err).Msg("thumbnail ready notification failed")
	}

	return outcomeBuilt, nil
}

// abort decides between compensation and surfacing the error. Compensation
// runs only when the commit provably did not take effect: the record store
// reported a transient conflict, or the context was cancelled before commit.
func (j *ThumbnailJob) abort(ctx context.Context, uow UnitOfWork, att attempt, step string, err error, log zerolog.Logger) (outcome, error) {
	conflict := apperr.Is(err, apperr.KindTransientConflict)
	cancelled := step != stepCommit && ctx.Err() != nil
	if !conflict && !cancelled {
		// The thumbnail may be referenced by a commit that did land, so it
		// is left for the orphan sweep. Before commit nothing landed and the
		// original can go back; after a failed commit only the record can
		// tell.
		if att.originalDeleted {
			cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), j.cfg.CompensateTimeout)
			defer cancel()
			if step != stepCommit {
				j.restoreOriginal(cctx, att, log)
			} else {
				j.restoreIfStillPending(cctx, att, false, log)
			}
		}
		return outcomeFailed, fmt.Errorf("%s: %w", step, err)
	}

	log.Warn().
		Err(err).
		Str("step", step).
		Bool("cancelled", cancelled).
		Msg("thumbnail attempt not committed, compensating")

	j.compensate(ctx, uow, att, log)
	return outcomeCompensated, nil
}

// compensate restores the blob store to its pre-attempt state. Every step
// is best effort: failures are logged and never returned.
func (j *ThumbnailJob) compensate(ctx context.Context, uow UnitOfWork, att attempt, log zerolog.Logger) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), j.cfg.CompensateTimeout)
	defer cancel()

	if err := uow.Rollback(cctx); err != nil {
		log.Error().Err(err).Msg("compensation: rollback failed")
	}

	if err := j.blobs.DeleteObject(cctx, j.cfg.Bucket, att.thumbnailName); err != nil && !apperr.Is(err, apperr.KindNotFound) {
		log.Error().Err(err).Str("object", att.thumbnailName).Msg("compensation: delete thumbnail failed")
	}

	if att.originalDeleted {
		j.restoreIfStillPending(cctx, att, true, log)
	}
}

// restoreIfStillPending puts the original back only while the committed
// record is still pending on it. When the record cannot be read,
// restoreOnUnknown decides.
func (j *ThumbnailJob) restoreIfStillPending(ctx context.Context, att attempt, restoreOnUnknown bool, log zerolog.Logger) {
	waiting, err := j.awaitsOriginal(ctx, att)
	switch {
	case err != nil && restoreOnUnknown:
		log.Warn().Err(err).Msg("cannot re-read profile, restoring original")
	case err != nil:
		log.Error().Err(err).Str("object", att.original).Msg("cannot re-read profile, original not restored")
		return
	case !waiting:
		log.Info().Str("object", att.original).Msg("profile no longer references original, not restoring")
		return
	}
	j.restoreOriginal(ctx, att, log)
}

func (j *ThumbnailJob) awaitsOriginal(ctx context.Context, att attempt) (bool, error) {
	uow := j.newUnit()
	if err := uow.Begin(ctx, pgx.ReadCommitted); err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = uow.Rollback(ctx) }()

	profile, err := uow.GetProfile(ctx, att.profileID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return false, nil
		}
		return false, err
	}
	return profile.Pending() && *profile.TempPictureName == att.original, nil
}

func (j *ThumbnailJob) restoreOriginal(ctx context.Context, att attempt, log zerolog.Logger) {
	contentType := "application/octet-stream"
	if detected, err := sniffer.DetectHead(att.originalData); err == nil {
		contentType = detected.MIME
	}
	if err := j.blobs.PutObject(ctx, j.cfg.Bucket, att.original, att.originalData, contentType); err != nil {
		log.Error().Err(err).Str("object", att.original).Msg("restore original failed")
	}
}
