package manifest

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdl-rewrite/internal/config"
)

func TestSplitObjectPath(t *testing.T) {
	tests := []struct {
		name       string
		location   string
		scheme     string
		wantBucket string
		wantKey    string
		wantErr    string
	}{
		{name: "s3", location: "s3://bucket/dir/mdl.yaml", scheme: "s3", wantBucket: "bucket", wantKey: "dir/mdl.yaml"},
		{name: "gcs", location: "gs://bkt/mdl.json", scheme: "gs", wantBucket: "bkt", wantKey: "mdl.json"},
		{name: "azure", location: "az://container/a/b.yaml", scheme: "az", wantBucket: "container", wantKey: "a/b.yaml"},
		{name: "scheme_mismatch", location: "gs://bkt/x", scheme: "s3", wantErr: "expected s3:// scheme"},
		{name: "missing_key", location: "s3://bucket/", scheme: "s3", wantErr: "empty key"},
		{name: "missing_bucket", location: "s3:///key", scheme: "s3", wantErr: "empty bucket"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, key, err := splitObjectPath(tt.location, tt.scheme)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBucket, bucket)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}

func TestFetcher_LocalFile(t *testing.T) {
	f := NewFetcher(config.StorageConfig{})
	path := filepath.Join("testdata", "tpch.yaml")

	plain, err := f.Fetch(context.Background(), path)
	require.NoError(t, err)

	abs, err := filepath.Abs(path)
	require.NoError(t, err)
	viaURI, err := f.Fetch(context.Background(), "file://"+abs)
	require.NoError(t, err)
	assert.Equal(t, plain, viaURI)
}

func TestFetcher_UnsupportedScheme(t *testing.T) {
	_, err := NewFetcher(config.StorageConfig{}).Fetch(context.Background(), "ftp://host/mdl.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported manifest location scheme "ftp"`)
}

func TestFetcher_AzureNeedsCredentials(t *testing.T) {
	_, err := NewFetcher(config.StorageConfig{}).Fetch(context.Background(), "az://container/mdl.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AZURE_STORAGE_ACCOUNT")
}

func TestFetcher_LoadFrom(t *testing.T) {
	cat, err := NewFetcher(config.StorageConfig{}).LoadFrom(context.Background(), filepath.Join("testdata", "tpch.yaml"))
	require.NoError(t, err)
	assert.Len(t, cat.ListModels(), 3)
}

func TestHolder_Reload(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	path := filepath.Join(t.TempDir(), "mdl.yaml")
	src, err := os.ReadFile(filepath.Join("testdata", "tpch.yaml"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, src, 0o600))

	h, err := NewHolder(context.Background(), NewFetcher(config.StorageConfig{}), path, logger)
	require.NoError(t, err)
	first := h.Current()
	require.NotNil(t, first)
	assert.Equal(t, path, h.Location())

	// A broken manifest keeps the previous catalog in effect.
	require.NoError(t, os.WriteFile(path, []byte("models: [\n"), 0o600))
	_, err = h.Reload(context.Background())
	require.Error(t, err)
	assert.Same(t, first, h.Current())

	require.NoError(t, os.WriteFile(path, src, 0o600))
	next, err := h.Reload(context.Background())
	require.NoError(t, err)
	assert.Same(t, next, h.Current())
	assert.NotSame(t, first, next)
}

func TestNewHolder_MissingFile(t *testing.T) {
	_, err := NewHolder(context.Background(), NewFetcher(config.StorageConfig{}), "/nonexistent/mdl.yaml", slog.Default())
	require.Error(t, err)
}

func TestStaticHolder_CannotReload(t *testing.T) {
	cat, err := Load(filepath.Join("testdata", "tpch.yaml"))
	require.NoError(t, err)
	h := NewStaticHolder(cat)
	assert.Same(t, cat, h.Current())
	_, err = h.Reload(context.Background())
	require.Error(t, err)
}
