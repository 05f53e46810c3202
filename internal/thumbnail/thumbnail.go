// Package thumbnail turns uploaded images into fixed-size JPEG thumbnails.
// Everything here is a pure function of its inputs.
package thumbnail

import (
	"bytes"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const (
	ContentType = "image/jpeg"
	namespace   = "thumbnails"
	jpegQuality = 85
)

var ErrEmptyImage = errors.New("thumbnail: empty image data")

type Size struct {
	Width  int
	Height int
}

// Build decodes original (jpeg, png, gif, bmp, tiff or webp), resizes it to
// exactly size and re-encodes it as JPEG.
func Build(original []byte, size Size) ([]byte, error) {
	if len(original) == 0 {
		return nil, ErrEmptyImage
	}
	if size.Width <= 0 || size.Height <= 0 {
		return nil, fmt.Errorf("thumbnail: invalid size %dx%d", size.Width, size.Height)
	}

	src, err := imaging.Decode(bytes.NewReader(original), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	resized := imaging.Resize(src, size.Width, size.Height, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// ObjectName derives where the thumbnail of an upload lives:
// "{profileID}/thumbnails/{base name of the original}".
func ObjectName(profileID, originalName string) string {
	base := path.Base(strings.TrimRight(originalName, "/"))
	return path.Join(profileID, namespace, base)
}

// IsThumbnailName reports whether name sits in a profile's thumbnail
// namespace and returns the profile id segment.
func IsThumbnailName(name string) (profileID string, ok bool) {
	parts := strings.Split(name, "/")
	if len(parts) != 3 || parts[1] != namespace || parts[0] == "" || parts[2] == "" {
		return "", false
	}
	return parts[0], true
}
