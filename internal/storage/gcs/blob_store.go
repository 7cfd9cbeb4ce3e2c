// Package gcs mirrors evidence screenshots to a Google Cloud Storage bucket so
// operators can browse a plant's captures away from the monitoring host.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

// Config names the mirror bucket.
type Config struct {
	Bucket string
	// Prefix nests the mirrored evidence tree, e.g. "prints" gives
	// prints/<vendor>/<plant> - <kind>.png.
	Prefix string
}

// BlobStore uploads evidence artifacts under the same vendor-relative key the
// local store uses.
type BlobStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// New returns a mirror writing to cfg.Bucket through client.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, errors.New("gcs mirror: storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("gcs mirror: bucket is required")
	}
	return &BlobStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// ObjectName maps an evidence path such as "solis/A - gráfico.png" to its
// object key.
func (s *BlobStore) ObjectName(p string) string {
	if s.prefix == "" {
		return p
	}
	return path.Join(s.prefix, p)
}

// PutObject uploads an evidence artifact and returns its gs:// URI.
func (s *BlobStore) PutObject(ctx context.Context, p string, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", errors.New("gcs mirror: evidence path is required")
	}
	name := s.ObjectName(p)
	writer := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	writer.Metadata = evidenceMetadata(p)
	if _, err := io.Copy(writer, r); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("upload %s: %w (close writer: %v)", name, err, closeErr)
		}
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalize %s: %w", name, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, name), nil
}

// evidenceMetadata tags an object with the vendor and plant its path names.
func evidenceMetadata(p string) map[string]string {
	vendor, rest, ok := strings.Cut(p, "/")
	if !ok {
		return nil
	}
	meta := map[string]string{"vendor": vendor}
	file := path.Base(rest)
	if plant, _, ok := strings.Cut(file, " - "); ok && !strings.HasPrefix(rest, "Falhas/") {
		meta["plant"] = plant
	}
	return meta
}
