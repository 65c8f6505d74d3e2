package storage

import (
	"context"
	"errors"
	"time"

	"account-portal/internal/domain"
)

// ErrNotConfigured is returned when no bucket is configured.
var ErrNotConfigured = errors.New("storage bucket is not configured")

type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified *time.Time
}

// Service stores user content in remote object storage.
type Service interface {
	// Upload writes body under key and returns the key.
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
	// URLFor returns the public URL of key inside the contentType namespace.
	URLFor(contentType domain.ContentType, key string) string
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
	DeletePrefix(ctx context.Context, prefix string) error
	PresignUpload(ctx context.Context, key, contentType string, expires time.Duration) (string, error)
	PresignDownload(ctx context.Context, key string, expires time.Duration) (string, error)
}

// ObjectKey joins a content namespace and a relative key.
func ObjectKey(contentType domain.ContentType, key string) string {
	return string(contentType) + "/" + key
}
