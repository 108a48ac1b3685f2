// Package storage persists generated images and user uploads in an object
// store addressed by key.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrPresignUnsupported is returned by stores that cannot issue direct upload URLs.
var ErrPresignUnsupported = errors.New("storage: presigned uploads not supported")

// Metadata is attached to stored objects. Values may be any UTF-8 text.
type Metadata map[string]string

// Object describes a stored object.
type Object struct {
	Key         string
	URL         string
	ContentType string
	Size        int64
}

// UploadRequest describes a client file that will be uploaded directly to the store.
type UploadRequest struct {
	Filename    string
	ContentType string
}

// PresignedUpload is a time-limited direct upload grant.
type PresignedUpload struct {
	UploadURL string
	FileKey   string
	ExpiresAt time.Time
}

// ObjectStore is the object store adapter used by the lifecycle controller
// and the upload endpoints.
type ObjectStore interface {
	// UploadFromURL downloads sourceURL and stores it under key. Storing the
	// same key twice overwrites the object.
	UploadFromURL(ctx context.Context, sourceURL, key string, meta Metadata) (*Object, error)
	PresignUpload(ctx context.Context, req UploadRequest) (*PresignedUpload, error)
	// ConfirmUpload verifies that a presigned upload landed.
	ConfirmUpload(ctx context.Context, fileKey string) (*Object, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	URL(key string) string
}
