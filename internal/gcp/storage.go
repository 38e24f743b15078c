package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// DefaultPublicBaseURL is the host public object URLs are built on.
const DefaultPublicBaseURL = "https://storage.googleapis.com"

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

// SaveToGCSAtomically writes content to a GCS object only if it doesn't already exist.
func SaveToGCSAtomically(ctx context.Context, bucket *storage.BucketHandle, objectName string, content []byte, contentType string) error {
	writer := bucket.Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := io.Copy(writer, bytes.NewReader(content)); err != nil {
		_ = writer.Close()
		if isPreconditionFailed(err) {
			slog.Info("Object already exists, skipping.", "gcsObject", objectName)
			return nil
		}
		return fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := writer.Close(); err != nil {
		if isPreconditionFailed(err) {
			slog.Info("Object already exists, skipping.", "gcsObject", objectName)
			return nil
		}
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

// BucketStore uploads objects into one bucket and hands back their public URLs.
type BucketStore struct {
	client     *storage.Client
	bucket     string
	publicBase string
	maxRetries int
	backoff    time.Duration
}

// NewBucketStore wraps an existing storage client.
func NewBucketStore(client *storage.Client, bucket, publicBase string) (*BucketStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket name must be provided")
	}
	if publicBase == "" {
		publicBase = DefaultPublicBaseURL
	}
	return &BucketStore{
		client:     client,
		bucket:     bucket,
		publicBase: strings.TrimRight(publicBase, "/"),
		maxRetries: 4,
		backoff:    time.Second,
	}, nil
}

// Put uploads data under key, retrying with exponential backoff, and returns
// the object's public URL.
func (s *BucketStore) Put(ctx context.Context, data []byte, key, contentType string) (string, error) {
	backoff := s.backoff
	var lastErr error

	for i := 0; i < s.maxRetries; i++ {
		err := func() error {
			writeCtx, cancel := context.WithTimeout(ctx, 50*time.Second)
			defer cancel()

			w := s.client.Bucket(s.bucket).Object(key).NewWriter(writeCtx)
			w.ContentType = contentType
			if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
				_ = w.Close()
				return fmt.Errorf("io.Copy to GCS failed: %w", err)
			}
			if err := w.Close(); err != nil {
				return fmt.Errorf("failed to close GCS writer (finalize upload): %w", err)
			}
			return nil
		}()
		if err == nil {
			return PublicURL(s.publicBase, s.bucket, key), nil
		}

		lastErr = err
		slog.Warn("Upload failed, will retry.",
			"gcsObject", key,
			"attempt", i+1,
			"maxRetries", s.maxRetries,
			"backoff", backoff.String(),
			"error", err,
		)
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("upload for %s failed after all retries: %w", key, lastErr)
}

// Get reads a whole object.
func (s *BucketStore) Get(ctx context.Context, bucket, object string) ([]byte, error) {
	r, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", bucket, object, err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", bucket, object, err)
	}
	return data, nil
}

// SaveOnce writes an object into the store's bucket unless it already exists.
func (s *BucketStore) SaveOnce(ctx context.Context, object string, data []byte, contentType string) (string, error) {
	if err := SaveToGCSAtomically(ctx, s.client.Bucket(s.bucket), object, data, contentType); err != nil {
		return "", err
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, object), nil
}

// PublicURL builds the anonymous-read URL of an object.
func PublicURL(base, bucket, key string) string {
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(base, "/"), bucket, key)
}

// GCSURIFromPublicURL maps https://storage.googleapis.com/<bucket>/<key> back to
// gs://<bucket>/<key>. Other URLs are returned unchanged.
func GCSURIFromPublicURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host != "storage.googleapis.com" {
		return raw
	}
	path := strings.TrimPrefix(u.Path, "/")
	if !strings.Contains(path, "/") {
		return raw
	}
	return "gs://" + path
}
