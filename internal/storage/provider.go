// Package storage defines the blob storage abstraction shared by evidence
// persistence and its remote mirrors (local filesystem, Google Cloud Storage, S3).
package storage

import (
	"context"
	"io"
)

// BlobStore writes an object under path and returns a URI describing where it landed.
type BlobStore interface {
	PutObject(ctx context.Context, path, contentType string, r io.Reader) (string, error)
}

// Named pairs a BlobStore with a label used in logs.
type Named struct {
	Name  string
	Store BlobStore
}
