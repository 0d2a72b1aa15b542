// Package imagestore keeps the uploaded receipt images.
package imagestore

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("image not found")
	ErrInvalidKey = errors.New("invalid image key")
)

// Store persists images under slash-separated keys.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, string, error)
	Delete(ctx context.Context, key string) error
}

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// NewKey returns a unique key such as receipts/2025/03/01/<uuid>.jpg.
func NewKey(contentType string, now time.Time) string {
	return path.Join("receipts", now.UTC().Format("2006/01/02"), uuid.NewString()+extensions[contentType])
}

// ContentTypeFor guesses an image content type from the key's extension.
func ContentTypeFor(key string) string {
	ext := strings.ToLower(path.Ext(key))
	for ct, e := range extensions {
		if e == ext {
			return ct
		}
	}
	if ext == ".jpeg" {
		return "image/jpeg"
	}
	return "application/octet-stream"
}

func validKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return false
	}
	return path.Clean(key) == key && !strings.HasPrefix(key, "..")
}
