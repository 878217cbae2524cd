// Package blobstore provides durable artifact storage for finished
// recordings. The store is an opaque contract: callers hand it a key and a
// byte stream and get back signed download URLs.
package blobstore

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound indicates the requested key does not exist in the store.
var ErrNotFound = errors.New("blob not found")

// ObjectInfo describes a stored artifact.
type ObjectInfo struct {
	Key         string            `json:"key"`
	Size        int64             `json:"size"`
	ContentType string            `json:"content_type"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	UploadedAt  time.Time         `json:"uploaded_at"`
}

// Store is the blob store contract. Implementations must be safe for
// concurrent use.
type Store interface {
	// Upload stores the contents of r under key, overwriting any existing
	// object. Returns info about the stored object including its size.
	Upload(ctx context.Context, key string, r io.Reader, contentType string, metadata map[string]string) (*ObjectInfo, error)

	// SignedURL returns a download URL for key that expires after ttl.
	SignedURL(key string, ttl time.Duration) (string, time.Time, error)

	// Open returns a reader over the stored object.
	Open(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error)

	// Delete removes the object under key. Deleting a missing key is not
	// an error.
	Delete(ctx context.Context, key string) error
}
