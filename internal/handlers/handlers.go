package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"profilephoto/internal/config"
	"profilephoto/internal/models"
	"profilephoto/internal/service"
)

type ProfileService interface {
	Create(ctx context.Context, input service.CreateProfileInput) (models.Profile, error)
	Get(ctx context.Context, id uuid.UUID) (models.Profile, error)
}

type UploadService interface {
	Upload(ctx context.Context, input service.UploadInput) (models.Profile, error)
}

// Check probes one dependency for /healthz.
type Check func(ctx context.Context) error

type Checks struct {
	Database Check
	Cache    Check
	Storage  Check
}

type HandlerSet struct {
	log      zerolog.Logger
	cfg      *config.AppConfig
	profiles ProfileService
	uploads  UploadService
	checks   Checks
}

func NewHandlerSet(log zerolog.Logger, cfg *config.AppConfig, profiles ProfileService, uploads UploadService, checks Checks) HandlerSet {
	return HandlerSet{
		log:      log,
		cfg:      cfg,
		profiles: profiles,
		uploads:  uploads,
		checks:   checks,
	}
}

// Register mounts the profile routes. Health is served by the server at the
// root so probes do not depend on the API prefix.
func (h HandlerSet) Register(router *gin.RouterGroup) {
	profiles := router.Group("/profiles")
	profiles.POST("", h.CreateProfile)
	profiles.GET("/:id", h.GetProfile)
	profiles.POST("/:id/upload", h.UploadPicture)
}
