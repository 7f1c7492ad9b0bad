// Package storage is the permanent archive for original product images.
// Originals are archived here before a watermarked replacement goes live,
// which is what makes rollback possible after the platform CDN URL expires.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
)

var (
	ErrNotFound   = errors.New("storage: object not found")
	ErrInvalidKey = errors.New("storage: invalid key")
)

type Storage interface {
	Upload(ctx context.Context, key string, reader io.Reader, contentType string, size int64) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	GetPresignedURL(ctx context.Context, key string, expirySeconds int) (string, error)
	HealthCheck(ctx context.Context) error
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Region    string
}

// ArchiveKey is the canonical location of an archived original. The media
// ID is platform-global, so one shop re-running jobs always maps a media to
// the same object.
func ArchiveKey(shop, mediaID, ext string) string {
	return fmt.Sprintf("originals/%s/%s.%s", shop, sanitizeMediaID(mediaID), ext)
}

// LogoKey is where a shop's uploaded watermark logo asset lives.
func LogoKey(shop, filename string) string {
	return fmt.Sprintf("logos/%s/%s", shop, filename)
}

// sanitizeMediaID strips the platform GID prefix (gid://.../Type/123) down
// to a path-safe identifier.
func sanitizeMediaID(mediaID string) string {
	out := make([]rune, 0, len(mediaID))
	for _, r := range mediaID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
