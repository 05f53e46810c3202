package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"profilephoto/internal/apperr"
	"profilephoto/internal/models"
	"profilephoto/internal/service"
)

type createProfileRequest struct {
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName" binding:"required"`
	Address   string `json:"address"`
	Mobile    string `json:"mobile"`
	Email     string `json:"email"`
}

type profileResponse struct {
	ID              string    `json:"id"`
	FirstName       string    `json:"firstName"`
	LastName        string    `json:"lastName"`
	Address         string    `json:"address,omitempty"`
	Mobile          string    `json:"mobile,omitempty"`
	Email           *string   `json:"email,omitempty"`
	TempPictureName *string   `json:"tempPictureName,omitempty"`
	HasThumbnail    bool      `json:"hasThumbnail"`
	ThumbnailName   *string   `json:"thumbnailName,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func toProfileResponse(p models.Profile) profileResponse {
	return profileResponse{
		ID:              p.ID.String(),
		FirstName:       p.FirstName,
		LastName:        p.LastName,
		Address:         p.Address,
		Mobile:          p.Mobile,
		Email:           p.Email,
		TempPictureName: p.TempPictureName,
		HasThumbnail:    p.HasThumbnail,
		ThumbnailName:   p.ThumbnailName,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func (h HandlerSet) CreateProfile(c *gin.Context) {
	var req createProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	profile, err := h.profiles.Create(c.Request.Context(), service.CreateProfileInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Address:   req.Address,
		Mobile:    req.Mobile,
		Email:     req.Email,
	})
	if err != nil {
		h.writeError(c, err, "create profile failed")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"profile": toProfileResponse(profile)})
}

func (h HandlerSet) GetProfile(c *gin.Context) {
	id, ok := parseProfileID(c)
	if !ok {
		return
	}

	profile, err := h.profiles.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err, "get profile failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{"profile": toProfileResponse(profile)})
}

func parseProfileID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_profile_id"})
		return uuid.Nil, false
	}
	return id, true
}

func (h HandlerSet) writeError(c *gin.Context, err error, msg string) {
	status, code := http.StatusInternalServerError, "internal_server_error"
	switch {
	case apperr.Is(err, apperr.KindNotFound):
		status, code = http.StatusNotFound, "profile_not_found"
	case errors.Is(err, service.ErrInvalidProfile):
		status, code = http.StatusBadRequest, "invalid_profile"
	case errors.Is(err, service.ErrEmptyFile):
		status, code = http.StatusBadRequest, "file_required"
	case errors.Is(err, service.ErrUnsupportedType):
		status, code = http.StatusUnsupportedMediaType, "unsupported_media_type"
	case errors.Is(err, service.ErrFileTooLarge):
		status, code = http.StatusRequestEntityTooLarge, "file_too_large"
	}

	event := h.log.Warn()
	if status >= http.StatusInternalServerError {
		event = h.log.Error()
	}
	event.Err(err).Str("path", c.FullPath()).Msg(msg)

	c.JSON(status, gin.H{"error": code})
}
