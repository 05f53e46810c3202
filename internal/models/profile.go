package models

import (
	"time"

	"github.com/google/uuid"
)

type Profile struct {
	ID              uuid.UUID
	FirstName       string
	LastName        string
	Address         string
	Mobile          string
	Email           *string
	TempPictureName *string
	HasThumbnail    bool
	ThumbnailName   *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Pending reports whether the thumbnail job should pick this profile up.
func (p Profile) Pending() bool {
	return !p.HasThumbnail && p.TempPictureName != nil
}

// MarkThumbnail records a committed thumbnail. The original upload is gone
// once the thumbnail exists, so its name is cleared along with it.
func (p *Profile) MarkThumbnail(name string) {
	p.HasThumbnail = true
	p.ThumbnailName = &name
	p.TempPictureName = nil
}

// SetTempPicture points the profile at a fresh upload and invalidates any
// previous thumbnail.
func (p *Profile) SetTempPicture(name string) {
	p.TempPictureName = &name
	p.HasThumbnail = false
	p.ThumbnailName = nil
}
