// Package gcs reads source documents from Google Cloud Storage for offline
// extraction runs. Nothing is ever written back.
package gcs

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

// Fetcher provides read access to stored objects.
// This interface enables mocking and testing of storage functionality.
type Fetcher interface {
	// FetchFromGCS downloads file bytes from the given storage URI.
	FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error)
}

// Reader is the Cloud Storage implementation of Fetcher.
type Reader struct {
	client   *storage.Client
	maxBytes int64
}

// NewReader creates a storage client using Application Default Credentials.
// Objects larger than maxBytes are rejected; zero means no limit.
func NewReader(ctx context.Context, maxBytes int64) (*Reader, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewReader: creating storage client: %w", err)
	}
	return &Reader{client: client, maxBytes: maxBytes}, nil
}

// Close closes the storage client.
func (r *Reader) Close() error {
	return r.client.Close()
}

// FetchFromGCS downloads the file bytes from the given GCS URI.
func (r *Reader) FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error) {
	bucketName, objectPath, err := ParseURI(gcsURI)
	if err != nil {
		return nil, err
	}

	rc, err := r.client.Bucket(bucketName).Object(objectPath).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("FetchFromGCS: reading object %s/%s: %w", bucketName, objectPath, err)
	}
	defer rc.Close()

	if r.maxBytes > 0 && rc.Attrs.Size > r.maxBytes {
		return nil, fmt.Errorf("FetchFromGCS: object %s is %d bytes, limit is %d", gcsURI, rc.Attrs.Size, r.maxBytes)
	}

	var src io.Reader = rc
	if r.maxBytes > 0 {
		src = io.LimitReader(rc, r.maxBytes+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("FetchFromGCS: reading bytes: %w", err)
	}
	if r.maxBytes > 0 && int64(len(data)) > r.maxBytes {
		return nil, fmt.Errorf("FetchFromGCS: object %s exceeds %d bytes", gcsURI, r.maxBytes)
	}

	return data, nil
}

// ParseURI splits gs://bucket/path/to/object into bucket and object path.
func ParseURI(gcsURI string) (bucket, object string, err error) {
	if !strings.HasPrefix(gcsURI, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", gcsURI)
	}

	trimmed := strings.TrimPrefix(gcsURI, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", gcsURI)
	}
	return parts[0], parts[1], nil
}

// FilenameFromURI extracts the filename from a GCS URI.
// e.g., "gs://bucket/folder/file.pdf" → "file.pdf"
func FilenameFromURI(uri string) string {
	_, object, err := ParseURI(uri)
	if err != nil {
		return path.Base(strings.TrimPrefix(uri, "gs://"))
	}
	return path.Base(object)
}
