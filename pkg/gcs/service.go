// Package gcs wraps Google Cloud Storage for transcript exports. The client
// is optional: the service runs without a bucket and simply skips uploads.
package gcs

import (
	"context"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
)

// GCSClient uploads objects into one configured bucket.
type GCSClient struct {
	client     *storage.Client
	bucketName string
}

// NewGCSClient creates a client bound to the given bucket, using ambient
// application credentials.
func NewGCSClient(ctx context.Context, bucketName string) (*GCSClient, error) {
	if bucketName == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcs client: %w", err)
	}
	return &GCSClient{client: client, bucketName: bucketName}, nil
}

// Upload writes content to the object path with the given content type.
func (g *GCSClient) Upload(ctx context.Context, objectPath string, content io.Reader, contentType string) error {
	writer := g.client.Bucket(g.bucketName).Object(objectPath).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := io.Copy(writer, content); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write object %s: %w", objectPath, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize object %s: %w", objectPath, err)
	}
	return nil
}

// SignedDownloadURL returns a time-limited download link for an object.
func (g *GCSClient) SignedDownloadURL(objectPath string, ttl time.Duration) (string, error) {
	url, err := g.client.Bucket(g.bucketName).SignedURL(objectPath, &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign url for %s: %w", objectPath, err)
	}
	return url, nil
}

// Close releases the underlying client.
func (g *GCSClient) Close() error {
	return g.client.Close()
}
