package manifest

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"mdl-rewrite/internal/config"
)

// newS3Client builds a client from static credentials, or an anonymous one
// for public buckets when none are configured.
func newS3Client(cfg config.StorageConfig) *s3.Client {
	opts := s3.Options{Region: "us-east-1", Credentials: aws.AnonymousCredentials{}}
	if cfg.S3Region != nil {
		opts.Region = *cfg.S3Region
	}
	if cfg.HasS3Config() {
		opts.Credentials = credentials.NewStaticCredentialsProvider(*cfg.S3KeyID, *cfg.S3Secret, "")
	}
	if cfg.S3Endpoint != nil {
		endpoint := *cfg.S3Endpoint
		if !strings.Contains(endpoint, "://") {
			endpoint = "https://" + endpoint
		}
		opts.BaseEndpoint = aws.String(endpoint)
		// S3 compatible stores generally need path-style URLs.
		opts.UsePathStyle = true
	}
	return s3.New(opts)
}

func (f *Fetcher) fetchS3(ctx context.Context, location string) ([]byte, error) {
	bucket, key, err := splitObjectPath(location, "s3")
	if err != nil {
		return nil, err
	}
	out, err := newS3Client(f.storage).GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", location, err)
	}
	defer out.Body.Close() //nolint:errcheck
	return readAllLimited(out.Body, location)
}
