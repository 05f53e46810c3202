package sniffer

import (
	"bytes"
	"errors"
	"mime"
	"net/http"
	"strings"
)

type MediaType string

const (
	TypeJPEG MediaType = "jpeg"
	TypePNG  MediaType = "png"
	TypeGIF  MediaType = "gif"
	TypeWEBP MediaType = "webp"
	TypeAVIF MediaType = "avif"
	TypeSVG  MediaType = "svg"
)

// sniffLen is how much of a file DetectHead looks at.
const sniffLen = 512

var ErrUnknownType = errors.New("unknown media type")

type Result struct {
	Type MediaType
	MIME string
}

// Thumbnailable reports whether the thumbnail builder can decode this type.
func (r Result) Thumbnailable() bool {
	switch r.Type {
	case TypeJPEG, TypePNG, TypeGIF, TypeWEBP:
		return true
	}
	return false
}

// Extension is the canonical file extension, dot included.
func (r Result) Extension() string {
	if r.Type == TypeJPEG {
		return ".jpg"
	}
	return "." + string(r.Type)
}

type signature struct {
	result Result
	match  func(head []byte) bool
}

// Checked in order; SVG goes last since it is a text heuristic.
var signatures = []signature{
	{Result{TypeJPEG, "image/jpeg"}, prefix(0, "\xff\xd8\xff")},
	{Result{TypePNG, "image/png"}, prefix(0, "\x89PNG\r\n\x1a\n")},
	{Result{TypeGIF, "image/gif"}, anyOf(prefix(0, "GIF87a"), prefix(0, "GIF89a"))},
	{Result{TypeWEBP, "image/webp"}, allOf(prefix(0, "RIFF"), prefix(8, "WEBP"))},
	{Result{TypeAVIF, "image/avif"}, isAVIF},
	{Result{TypeSVG, "image/svg+xml"}, isSVG},
}

// DetectHead identifies an image from its leading bytes. Only the first
// sniffLen bytes are inspected.
func DetectHead(head []byte) (Result, error) {
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	for _, sig := range signatures {
		if sig.match(head) {
			return sig.result, nil
		}
	}
	return Result{}, ErrUnknownType
}

func prefix(offset int, magic string) func([]byte) bool {
	return func(head []byte) bool {
		return len(head) >= offset+len(magic) && string(head[offset:offset+len(magic)]) == magic
	}
}

func anyOf(matchers ...func([]byte) bool) func([]byte) bool {
	return func(head []byte) bool {
		for _, m := range matchers {
			if m(head) {
				return true
			}
		}
		return false
	}
}

func allOf(matchers ...func([]byte) bool) func([]byte) bool {
	return func(head []byte) bool {
		for _, m := range matchers {
			if !m(head) {
				return false
			}
		}
		return true
	}
}

// isAVIF looks for an ISO-BMFF ftyp box whose brands include avif.
func isAVIF(head []byte) bool {
	return prefix(4, "ftyp")(head) && bytes.Contains(head[8:], []byte("avif"))
}

func isSVG(head []byte) bool {
	trimmed := bytes.TrimSpace(head)
	return bytes.HasPrefix(trimmed, []byte("<svg")) || bytes.HasPrefix(trimmed, []byte("<?xml"))
}

// MimeTypeFromHTTP returns the declared media type without parameters, or ""
// when none was sent.
func MimeTypeFromHTTP(header http.Header) string {
	contentType := header.Get("Content-Type")
	if contentType == "" {
		return ""
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		return mediaType
	}
	if idx := strings.IndexByte(contentType, ';'); idx >= 0 {
		contentType = contentType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}
