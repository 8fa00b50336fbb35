package manifest

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

func (f *Fetcher) fetchGCS(ctx context.Context, location string) ([]byte, error) {
	bucket, key, err := splitObjectPath(location, "gs")
	if err != nil {
		return nil, err
	}

	var opts []option.ClientOption
	if f.storage.GCSKeyFile != "" {
		opts = append(opts, option.WithAuthCredentialsFile(option.ServiceAccount, f.storage.GCSKeyFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	defer client.Close() //nolint:errcheck

	r, err := client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", location, err)
	}
	defer r.Close() //nolint:errcheck
	return readAllLimited(r, location)
}
