package manifest

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"mdl-rewrite/internal/config"
)

// maxManifestSize bounds how much of a remote object is read.
const maxManifestSize = 32 << 20

// Fetcher reads manifests from local files or object storage. Supported
// locations are plain paths, file://, s3://bucket/key, gs://bucket/key and
// az://container/blob.
type Fetcher struct {
	storage config.StorageConfig
}

// NewFetcher returns a Fetcher using the object storage credentials in cfg.
func NewFetcher(cfg config.StorageConfig) *Fetcher {
	return &Fetcher{storage: cfg}
}

// Fetch returns the raw manifest at location.
func (f *Fetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	scheme, rest, ok := strings.Cut(location, "://")
	if !ok {
		return readFile(location)
	}
	switch strings.ToLower(scheme) {
	case "file":
		return readFile(rest)
	case "s3":
		return f.fetchS3(ctx, location)
	case "gs":
		return f.fetchGCS(ctx, location)
	case "az":
		return f.fetchAzure(ctx, location)
	}
	return nil, fmt.Errorf("unsupported manifest location scheme %q in %q", scheme, location)
}

// LoadFrom fetches the manifest at location and builds a catalog from it.
func (f *Fetcher) LoadFrom(ctx context.Context, location string) (*Catalog, error) {
	data, err := f.Fetch(ctx, location)
	if err != nil {
		return nil, err
	}
	return build(data, location)
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path) //nolint:gosec // intentional: reading user-specified manifest
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func readAllLimited(r io.Reader, location string) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxManifestSize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", location, err)
	}
	if len(data) > maxManifestSize {
		return nil, fmt.Errorf("manifest %s is larger than %d bytes", location, maxManifestSize)
	}
	return data, nil
}

// splitObjectPath extracts the bucket (or container) and key from a
// scheme://bucket/path/to/object URI.
func splitObjectPath(location, scheme string) (bucket, key string, err error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", fmt.Errorf("parse %s path %q: %w", scheme, location, err)
	}
	if !strings.EqualFold(u.Scheme, scheme) {
		return "", "", fmt.Errorf("expected %s:// scheme, got %q in %q", scheme, u.Scheme, location)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("empty bucket in %q", location)
	}
	if key == "" {
		return "", "", fmt.Errorf("empty key in %q", location)
	}
	return bucket, key, nil
}
