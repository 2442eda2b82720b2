package storage

import (
	"bytes"
	"context"
	"io"
)

// ObjectStorage defines the interface for thumbnail object storage
type ObjectStorage interface {
	// Upload uploads an object to storage
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download downloads an object from storage
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// GetURL returns the URL for accessing an object
	GetURL(key string) string

	// Delete deletes an object from storage
	Delete(ctx context.Context, key string) error

	// EnsureBucket creates the bucket if it does not exist
	EnsureBucket(ctx context.Context) error
}

// ThumbnailUploader adapts ObjectStorage to the byte-slice interface the
// classification pipeline uses for thumbnail uploads.
type ThumbnailUploader struct {
	store ObjectStorage
}

// NewThumbnailUploader wraps an ObjectStorage.
func NewThumbnailUploader(store ObjectStorage) *ThumbnailUploader {
	return &ThumbnailUploader{store: store}
}

// Upload stores a thumbnail under key.
func (u *ThumbnailUploader) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	return u.store.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
}
