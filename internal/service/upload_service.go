package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"profilephoto/internal/apperr"
	"profilephoto/internal/ids"
	"profilephoto/internal/media/sniffer"
	"profilephoto/internal/models"
)

var (
	ErrEmptyFile       = errors.New("empty file")
	ErrFileTooLarge    = errors.New("file too large")
	ErrUnsupportedType = errors.New("unsupported image type")
)

type ObjectWriter interface {
	EnsureBucket(ctx context.Context, bucket string) error
	PutObject(ctx context.Context, bucket, name string, data []byte, contentType string) error
	DeleteObject(ctx context.Context, bucket, name string) error
}

// Kicker asks the worker to run the thumbnail job now instead of waiting for
// the next scheduled run.
type Kicker interface {
	KickThumbnail(ctx context.Context, profileID string) error
}

type UploadInput struct {
	ProfileID uuid.UUID
	File      io.Reader
	Header    http.Header
}

type UploadService struct {
	profiles ProfileStore
	store    ObjectWriter
	kicker   Kicker
	bucket   string
	maxBytes int64
	log      zerolog.Logger
}

// NewUploadService builds the upload path. kicker may be nil, in which case
// uploads wait for the scheduled run.
func NewUploadService(profiles ProfileStore, store ObjectWriter, kicker Kicker, bucket string, maxBytes int64, log zerolog.Logger) *UploadService {
	return &UploadService{
		profiles: profiles,
		store:    store,
		kicker:   kicker,
		bucket:   bucket,
		maxBytes: maxBytes,
		log:      log.With().Str("component", "upload_service").Logger(),
	}
}

// Upload stores a new original for the profile and marks it pending. Any
// previous thumbnail is invalidated.
func (s *UploadService) Upload(ctx context.Context, input UploadInput) (models.Profile, error) {
	if input.File == nil {
		return models.Profile{}, ErrEmptyFile
	}

	current, err := s.profiles.GetByID(ctx, input.ProfileID)
	if err != nil {
		return models.Profile{}, err
	}

	data, err := s.readAll(input.File)
	if err != nil {
		return models.Profile{}, err
	}

	detected, err := sniffer.DetectHead(data)
	if err != nil || !detected.Thumbnailable() {
		return models.Profile{}, ErrUnsupportedType
	}
	if declared := sniffer.MimeTypeFromHTTP(input.Header); declared != "" && declared != "application/octet-stream" && declared != detected.MIME {
		return models.Profile{}, fmt.Errorf("%w: declared %s, actual %s", ErrUnsupportedType, declared, detected.MIME)
	}

	if err := s.store.EnsureBucket(ctx, s.bucket); err != nil {
		return models.Profile{}, fmt.Errorf("ensure bucket: %w", err)
	}

	objectName := buildObjectName(input.ProfileID, detected)
	if err := s.store.PutObject(ctx, s.bucket, objectName, data, detected.MIME); err != nil {
		return models.Profile{}, fmt.Errorf("store upload: %w", err)
	}

	log := s.log.With().
		Str("profile_id", input.ProfileID.String()).
		Str("object", objectName).
		Logger()

	updated, err := s.profiles.SetTempPicture(ctx, input.ProfileID, objectName)
	if err != nil {
		cleanupCtx := context.WithoutCancel(ctx)
		if derr := s.store.DeleteObject(cleanupCtx, s.bucket, objectName); derr != nil && !apperr.Is(derr, apperr.KindNotFound) {
			log.Error().Err(derr).Msg("remove unreferenced upload failed")
		}
		return models.Profile{}, err
	}
	log.Info().Int("bytes", len(data)).Str("mime", detected.MIME).Msg("upload stored")

	s.removeSuperseded(ctx, current, objectName, log)

	if s.kicker != nil {
		if err := s.kicker.KickThumbnail(ctx, input.ProfileID.String()); err != nil {
			log.Warn().Err(err).Msg("thumbnail kick failed, waiting for schedule")
		}
	}

	return updated, nil
}

// removeSuperseded drops an upload that was still waiting for its thumbnail.
// Superseded thumbnails are left to the orphan sweep.
func (s *UploadService) removeSuperseded(ctx context.Context, previous models.Profile, replacement string, log zerolog.Logger) {
	if previous.TempPictureName == nil || *previous.TempPictureName == replacement {
		return
	}
	old := *previous.TempPictureName
	if err := s.store.DeleteObject(ctx, s.bucket, old); err != nil && !apperr.Is(err, apperr.KindNotFound) {
		log.Warn().Err(err).Str("superseded", old).Msg("remove superseded upload failed")
	}
}

func (s *UploadService) readAll(r io.Reader) ([]byte, error) {
	if s.maxBytes > 0 {
		r = io.LimitReader(r, s.maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, ErrFileTooLarge
		}
		return nil, fmt.Errorf("read file: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return nil, ErrFileTooLarge
	}
	return data, nil
}

func buildObjectName(profileID uuid.UUID, detected sniffer.Result) string {
	return path.Join(profileID.String(), "uploads", ids.New()+detected.Extension())
}
