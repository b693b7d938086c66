// Package s3blob implements the domain artifact store and cycle archiver on
// AWS SDK v2. Any S3-compatible endpoint works; local runs use MinIO. The
// agent uploads proposed transaction bundles here and the archiver moves aged
// cycle history into the same bucket.
package s3blob

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientConfig holds the connection parameters for an S3-compatible object
// store.
type ClientConfig struct {
	// Endpoint overrides the AWS endpoint for compatible providers. Leave
	// empty for AWS S3 proper.
	Endpoint string

	// Region is the AWS region, or whatever the provider expects there.
	Region string

	// Bucket receives every object this process writes.
	Bucket string

	// Prefix is prepended to every object key, so several deployments can
	// share one bucket. May be empty.
	Prefix string

	AccessKey string
	SecretKey string

	// UseSSL picks the scheme when Endpoint is given without one.
	UseSSL bool

	// ForcePathStyle puts the bucket in the URL path instead of the
	// subdomain. MinIO and most compatible providers need it.
	ForcePathStyle bool
}

// Client wraps the SDK client together with the bucket and key prefix every
// operation in this package uses.
type Client struct {
	s3     *s3.Client
	bucket string
	prefix string
}

// New creates a Client from the given configuration.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3blob: bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3blob: region is required")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}

	sdk := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(withScheme(cfg.Endpoint, cfg.UseSSL))
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &Client{
		s3:     sdk,
		bucket: cfg.Bucket,
		prefix: normalisePrefix(cfg.Prefix),
	}, nil
}

// Health verifies connectivity and permissions with a HeadBucket call.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err != nil {
		return fmt.Errorf("s3blob: health check failed for bucket %s: %w", c.bucket, err)
	}
	return nil
}

// Close is a no-op kept for teardown symmetry with the other stores.
func (c *Client) Close() error {
	return nil
}

// S3 returns the underlying SDK client for the writer and archiver.
func (c *Client) S3() *s3.Client {
	return c.s3
}

// Bucket returns the configured bucket name.
func (c *Client) Bucket() string {
	return c.bucket
}

// Key prepends the configured prefix to an object path.
func (c *Client) Key(path string) string {
	return c.prefix + path
}

// normalisePrefix strips surrounding slashes and ensures a non-empty prefix
// ends in exactly one "/", so keys never gain double slashes.
func normalisePrefix(prefix string) string {
	p := strings.Trim(prefix, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}

// withScheme defaults the endpoint scheme from useSSL when the configured
// value carries none. A bare host:port would otherwise parse as
// scheme:opaque, so the check is for the "://" separator, not url.Parse.
func withScheme(endpoint string, useSSL bool) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}
