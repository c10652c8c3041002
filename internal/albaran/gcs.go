package albaran

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// GCSStorage implements the Storage interface on a Google Cloud Storage bucket
type GCSStorage struct {
	client *storage.Client
	bucket *storage.BucketHandle
	prefix string
}

// NewGCSStorage creates a GCSStorage. Objects are written under prefix.
func NewGCSStorage(ctx context.Context, bucket, prefix string) (*GCSStorage, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating gcs client: %w", err)
	}
	return &GCSStorage{
		client: client,
		bucket: client.Bucket(bucket),
		prefix: prefix,
	}, nil
}

func (g *GCSStorage) object(name string) string {
	return path.Join(g.prefix, path.Base(name))
}

// Save writes the object only if it does not exist yet. Names carry the document id,
// so an existing object is the same upload retried.
func (g *GCSStorage) Save(ctx context.Context, filename string, data []byte) (string, error) {
	name := path.Base(filename)
	w := g.bucket.Object(g.object(name)).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("writing gcs object: %w", err)
	}
	if err := w.Close(); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
			slog.Warn("gcs object already exists", "object", g.object(name))
			return name, nil
		}
		return "", fmt.Errorf("finalizing gcs object: %w", err)
	}
	return name, nil
}

// Get reads an object
func (g *GCSStorage) Get(ctx context.Context, name string) ([]byte, error) {
	r, err := g.bucket.Object(g.object(name)).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening gcs object: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading gcs object: %w", err)
	}
	return data, nil
}

// Delete removes an object
func (g *GCSStorage) Delete(ctx context.Context, name string) error {
	if err := g.bucket.Object(g.object(name)).Delete(ctx); err != nil {
		return fmt.Errorf("deleting gcs object: %w", err)
	}
	return nil
}

// Close closes the client
func (g *GCSStorage) Close() error {
	return g.client.Close()
}
