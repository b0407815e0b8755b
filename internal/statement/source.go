package statement

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

const gcsScheme = "gs://"

// Fetcher returns the bytes behind a statement location.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// SourceFetcher reads local paths and gs://bucket/object URIs.
type SourceFetcher struct{}

// Fetch implements Fetcher.
func (SourceFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	if IsGCSURI(uri) {
		return FetchFromGCS(ctx, uri)
	}
	data, err := os.ReadFile(uri)
	if err != nil {
		return nil, fmt.Errorf("Fetch: reading %q: %w", uri, err)
	}
	return data, nil
}

// IsGCSURI reports whether uri points at Cloud Storage.
func IsGCSURI(uri string) bool {
	return strings.HasPrefix(uri, gcsScheme)
}

// ParseGCSURI splits gs://bucket/path/to/object into bucket and object.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	if !IsGCSURI(uri) {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}

	parts := strings.SplitN(strings.TrimPrefix(uri, gcsScheme), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// BaseName returns the file name of a local path or GCS URI.
func BaseName(uri string) string {
	if _, object, err := ParseGCSURI(uri); err == nil {
		return path.Base(object)
	}
	return path.Base(uri)
}

// FetchFromGCS downloads the object bytes from the given GCS URI.
// It uses Application Default Credentials.
func FetchFromGCS(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := ParseGCSURI(uri)
	if err != nil {
		return nil, err
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("FetchFromGCS: creating storage client: %w", err)
	}
	defer client.Close()

	rc, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("FetchFromGCS: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("FetchFromGCS: reading bytes: %w", err)
	}

	return data, nil
}
