package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"profilephoto/internal/models"
)

var ErrInvalidProfile = errors.New("invalid profile")

type ProfileStore interface {
	Create(ctx context.Context, profile models.Profile) (models.Profile, error)
	GetByID(ctx context.Context, id uuid.UUID) (models.Profile, error)
	SetTempPicture(ctx context.Context, id uuid.UUID, objectName string) (models.Profile, error)
}

type CreateProfileInput struct {
	FirstName string
	LastName  string
	Address   string
	Mobile    string
	Email     string
}

type ProfileService struct {
	profiles ProfileStore
	log      zerolog.Logger
}

func NewProfileService(profiles ProfileStore, log zerolog.Logger) *ProfileService {
	return &ProfileService{
		profiles: profiles,
		log:      log.With().Str("component", "profile_service").Logger(),
	}
}

func (s *ProfileService) Create(ctx context.Context, input CreateProfileInput) (models.Profile, error) {
	profile := models.Profile{
		ID:        uuid.New(),
		FirstName: strings.TrimSpace(input.FirstName),
		LastName:  strings.TrimSpace(input.LastName),
		Address:   strings.TrimSpace(input.Address),
		Mobile:    strings.TrimSpace(input.Mobile),
	}
	if profile.FirstName == "" || profile.LastName == "" {
		return models.Profile{}, fmt.Errorf("%w: first and last name are required", ErrInvalidProfile)
	}
	if email := strings.TrimSpace(input.Email); email != "" {
		if !strings.Contains(email, "@") {
			return models.Profile{}, fmt.Errorf("%w: malformed email", ErrInvalidProfile)
		}
		profile.Email = &email
	}

	created, err := s.profiles.Create(ctx, profile)
	if err != nil {
		return models.Profile{}, err
	}
	s.log.Info().Str("profile_id", created.ID.String()).Msg("profile created")
	return created, nil
}

func (s *ProfileService) Get(ctx context.Context, id uuid.UUID) (models.Profile, error) {
	return s.profiles.GetByID(ctx, id)
}
