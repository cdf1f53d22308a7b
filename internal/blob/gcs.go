// Package blob stores evidence bytes (avatars, banners, screenshots,
// raw metadata JSON) under deterministic keys.
package blob

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCS stores blobs in a Google Cloud Storage bucket and returns
// gs:// URIs. Writes are idempotent overwrites keyed by object name.
type GCS struct {
	client *storage.Client
	bucket string
}

// NewGCS creates the storage client for bucket.
func NewGCS(ctx context.Context, bucket string) (*GCS, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs bucket name is required")
	}
	client, err := storage.NewClient(ctx, option.WithScopes(storage.ScopeReadWrite))
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	slog.Info("gcs blob store ready", slog.String("bucket", bucket))
	return &GCS{client: client, bucket: bucket}, nil
}

// Put writes data under key and returns the gs:// URI.
func (g *GCS) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write gcs object %q: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close gcs writer for %q: %w", key, err)
	}
	return fmt.Sprintf("gs://%s/%s", g.bucket, key), nil
}

// Close releases the underlying client.
func (g *GCS) Close() error {
	return g.client.Close()
}
