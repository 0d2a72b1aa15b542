package ingest

import (
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultMaxBytes is the largest accepted receipt image.
const DefaultMaxBytes = 10 << 20

var (
	ErrUnsupportedType = errors.New("unsupported image type")
	ErrTooLarge        = errors.New("image too large")
	ErrEmptyUpload     = errors.New("empty upload")
)

// AllowedTypes are the receipt image formats the analysis service accepts.
var AllowedTypes = []string{"image/jpeg", "image/png", "image/webp"}

// Upload is a receipt image as received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

func allowed(ct string) bool {
	for _, t := range AllowedTypes {
		if ct == t {
			return true
		}
	}
	return false
}

// ValidateUpload checks size and type before anything is stored or sent.
// The declared type, when present, and the sniffed type must both be allowed
// and agree. It returns the sniffed content type.
func ValidateUpload(u Upload, maxBytes int64) (string, error) {
	if len(u.Data) == 0 {
		return "", ErrEmptyUpload
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if int64(len(u.Data)) > maxBytes {
		return "", fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, len(u.Data), maxBytes)
	}

	detected := mimetype.Detect(u.Data)
	sniffed := ""
	for _, t := range AllowedTypes {
		if detected.Is(t) {
			sniffed = t
			break
		}
	}
	if sniffed == "" {
		return "", fmt.Errorf("%w: detected %s", ErrUnsupportedType, detected.String())
	}

	declared := strings.TrimSpace(u.ContentType)
	if declared == "" || declared == "application/octet-stream" {
		return sniffed, nil
	}
	mt, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, declared)
	}
	if mt == "image/jpg" || mt == "image/pjpeg" {
		mt = "image/jpeg"
	}
	if !allowed(mt) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, mt)
	}
	if mt != sniffed {
		return "", fmt.Errorf("%w: declared %s but content is %s", ErrUnsupportedType, mt, sniffed)
	}
	return sniffed, nil
}
