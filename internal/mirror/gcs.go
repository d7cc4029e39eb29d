package mirror

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSBackend writes the state snapshot to a Google Cloud Storage object.
// It relies on Application Default Credentials.
type GCSBackend struct {
	client *storage.Client
	bucket string
	object string
}

// NewGCSBackend creates the storage client once for the process lifetime.
func NewGCSBackend(ctx context.Context, bucket, object string) (*GCSBackend, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCSBackend{client: client, bucket: bucket, object: object}, nil
}

func (g *GCSBackend) Name() string { return "gcs" }

func (g *GCSBackend) Upload(ctx context.Context, data []byte) error {
	w := g.client.Bucket(g.bucket).Object(g.object).NewWriter(ctx)
	w.ContentType = "application/json"

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return fmt.Errorf("copy state to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload gs://%s/%s: %w", g.bucket, g.object, err)
	}
	return nil
}

func (g *GCSBackend) Close() error {
	return g.client.Close()
}
