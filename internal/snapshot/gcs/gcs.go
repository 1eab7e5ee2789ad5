// Package gcs persists snapshots as a JSON object in Google Cloud Storage.
package gcs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// Config captures the object the snapshots live in.
type Config struct {
	Bucket string
	Object string
}

// ParseLocation splits a gs://bucket/object location.
func ParseLocation(location string) (Config, error) {
	rest, ok := strings.CutPrefix(location, "gs://")
	if !ok {
		return Config{}, fmt.Errorf("not a gs:// location: %q", location)
	}
	bucket, object, _ := strings.Cut(rest, "/")
	if bucket == "" || object == "" {
		return Config{}, fmt.Errorf("gs location needs a bucket and an object: %q", location)
	}
	return Config{Bucket: bucket, Object: object}, nil
}

// Backend reads and writes a single GCS object.
type Backend struct {
	client *storage.Client
	bucket string
	object string
}

// New creates a GCS-backed snapshot backend.
func New(client *storage.Client, cfg Config) (*Backend, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if strings.TrimSpace(cfg.Object) == "" {
		return nil, fmt.Errorf("object name is required")
	}
	return &Backend{client: client, bucket: cfg.Bucket, object: cfg.Object}, nil
}

// Load downloads the snapshot object. A missing object is an empty store.
func (b *Backend) Load(ctx context.Context) (map[string]string, error) {
	reader, err := b.client.Bucket(b.bucket).Object(b.object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open gs://%s/%s: %w", b.bucket, b.object, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read gs://%s/%s: %w", b.bucket, b.object, err)
	}
	entries := map[string]string{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode gs://%s/%s: %w", b.bucket, b.object, err)
	}
	return entries, nil
}

// Save uploads entries, replacing the object. The new object only becomes
// visible once the upload completes.
func (b *Backend) Save(ctx context.Context, entries map[string]string) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode snapshots: %w", err)
	}
	writer := b.client.Bucket(b.bucket).Object(b.object).NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}
