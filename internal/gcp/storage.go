package gcp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// ObjectStore wraps a GCS client with the three operations the pipeline
// needs: fetch a source object, write an output object exactly once, and
// mint a short-lived download URL.
type ObjectStore struct {
	client *storage.Client

	// KMSKeyName, when set, requests CMEK server-side encryption on every
	// write. GCS encrypts at rest regardless; this pins the key.
	KMSKeyName string
}

// NewObjectStore creates an ObjectStore using ambient credentials.
func NewObjectStore(ctx context.Context) (*ObjectStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &ObjectStore{client: client}, nil
}

// Get reads the full content of an object.
func (s *ObjectStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	reader, err := s.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open gs://%s/%s: %w", bucket, key, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", bucket, key, err)
	}
	return data, nil
}

// Put writes content to an object only if it doesn't already exist, so a
// re-delivered event can never clobber an earlier write. A precondition
// failure (412) is treated as success, matching idempotent workflow
// semantics.
func (s *ObjectStore) Put(ctx context.Context, bucket, key string, data []byte, contentType string, metadata map[string]string) error {
	writer := s.client.Bucket(bucket).Object(key).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = contentType
	writer.Metadata = metadata
	writer.KMSKeyName = s.KMSKeyName

	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		_ = writer.Close()
		if gerr, ok := err.(*googleapi.Error); ok && gerr.Code == http.StatusPreconditionFailed {
			return nil
		}
		return fmt.Errorf("failed to write to gs://%s/%s: %w", bucket, key, err)
	}
	if err := writer.Close(); err != nil {
		if gerr, ok := err.(*googleapi.Error); ok && gerr.Code == http.StatusPreconditionFailed {
			return nil
		}
		return fmt.Errorf("failed to finalize gs://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// SignedURL mints a V4 signed download URL for an output object. The
// downloadFilename controls the browser's save-as name via a
// content-disposition response override.
func (s *ObjectStore) SignedURL(bucket, key string, ttl time.Duration, downloadFilename string) (string, error) {
	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(ttl),
	}
	if downloadFilename != "" {
		opts.QueryParameters = url.Values{
			"response-content-disposition": {fmt.Sprintf("attachment; filename=%q", downloadFilename)},
		}
	}
	signed, err := s.client.Bucket(bucket).SignedURL(key, opts)
	if err != nil {
		return "", fmt.Errorf("failed to sign URL for gs://%s/%s: %w", bucket, key, err)
	}
	return signed, nil
}

// ObjectInfo describes one listed object.
type ObjectInfo struct {
	Key     string
	Size    int64
	ETag    string
	Created time.Time
}

// List returns the objects under a prefix, for backfill runs over
// previously uploaded files.
func (s *ObjectStore) List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	it := s.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})

	var objects []ObjectInfo
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list gs://%s/%s*: %w", bucket, prefix, err)
		}
		objects = append(objects, ObjectInfo{
			Key:     attrs.Name,
			Size:    attrs.Size,
			ETag:    attrs.Etag,
			Created: attrs.Created,
		})
	}
	return objects, nil
}

func (s *ObjectStore) Close() error {
	return s.client.Close()
}
