// Package s3blob stores event archives in S3 or an S3-compatible bucket
// (Supabase Storage, MinIO, R2) using AWS SDK v2.
package s3blob

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// minPartSize is the S3 multipart minimum (5 MiB).
const minPartSize int64 = 5 * 1024 * 1024

// BucketConfig locates the archive bucket.
type BucketConfig struct {
	// Endpoint targets an S3-compatible provider. A host without a scheme
	// gets https when UseSSL is set and http otherwise.
	Endpoint       string
	Region         string
	Bucket         string
	AccessKey      string
	SecretKey      string
	UseSSL         bool
	ForcePathStyle bool
}

func (c BucketConfig) validate() error {
	var errs []error
	if c.Bucket == "" {
		errs = append(errs, errors.New("bucket name is required"))
	}
	if c.Region == "" {
		errs = append(errs, errors.New("region is required"))
	}
	if (c.AccessKey == "") != (c.SecretKey == "") {
		errs = append(errs, errors.New("access key and secret key must be set together"))
	}
	return errors.Join(errs...)
}

// endpointURL returns Endpoint with a scheme, or "" when unset.
func (c BucketConfig) endpointURL() string {
	ep := strings.TrimRight(strings.TrimSpace(c.Endpoint), "/")
	if ep == "" || strings.Contains(ep, "://") {
		return ep
	}
	if c.UseSSL {
		return "https://" + ep
	}
	return "http://" + ep
}

// Bucket is one archive bucket. It implements domain.BlobReader and
// domain.BlobWriter.
type Bucket struct {
	api  *s3.Client
	name string
}

// Open builds an SDK client for cfg. Without static keys the default AWS
// credential chain applies.
func Open(ctx context.Context, cfg BucketConfig) (*Bucket, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("s3blob: %w", err)
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}

	endpoint := cfg.endpointURL()
	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return &Bucket{api: api, name: cfg.Bucket}, nil
}

// Name returns the bucket name.
func (b *Bucket) Name() string { return b.name }

// Ping issues HeadBucket.
func (b *Bucket) Ping(ctx context.Context) error {
	if _, err := b.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.name)}); err != nil {
		return fmt.Errorf("s3blob: head bucket %s: %w", b.name, err)
	}
	return nil
}

func (b *Bucket) uploader(partSize int64) *manager.Uploader {
	return manager.NewUploader(b.api, func(u *manager.Uploader) {
		u.PartSize = max(partSize, minPartSize)
	})
}
