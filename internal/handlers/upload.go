package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"profilephoto/internal/service"
)

func (h HandlerSet) UploadPicture(c *gin.Context) {
	id, ok := parseProfileID(c)
	if !ok {
		return
	}

	if limit := h.cfg.HTTP.MaxUploadMB; limit > 0 {
		// Leave room for the multipart envelope; the service enforces the
		// exact file limit.
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, (limit+1)<<20)
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file_too_large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file_required"})
		return
	}
	defer file.Close()

	profile, err := h.uploads.Upload(c.Request.Context(), service.UploadInput{
		ProfileID: id,
		File:      file,
		Header:    http.Header(header.Header),
	})
	if err != nil {
		h.writeError(c, err, "upload failed")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"profile": toProfileResponse(profile)})
}
