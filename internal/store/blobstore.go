package store

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// BlobStore is the optional bulk-payload store: for payloads exceeding a
// configurable threshold, the queue engine keeps metadata in the primary
// Redis store and the payload bytes here instead. This is best-effort:
// metadata in Redis is always authoritative, and a blob delete failure is
// logged, not retried inline.
type BlobStore struct {
	client *s3.Client
	bucket string
}

// BlobStoreConfig configures the optional S3-backed bulk payload store.
type BlobStoreConfig struct {
	Bucket    string
	Region    string
	Endpoint  string
	PathStyle bool
}

// NewBlobStore builds an S3-backed BlobStore. Returns (nil, nil) when cfg
// has no bucket configured; callers treat a nil BlobStore as "bulk
// storage disabled" rather than an error.
func NewBlobStore(ctx context.Context, cfg BlobStoreConfig) (*BlobStore, error) {
	if cfg.Bucket == "" {
		return nil, nil
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{
					URL:               cfg.Endpoint,
					HostnameImmutable: cfg.PathStyle,
					SigningRegion:     cfg.Region,
					Source:            aws.EndpointSourceCustom,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		opts = append(opts, awsconfig.WithEndpointResolverWithOptions(resolver))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("store: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	return &BlobStore{client: client, bucket: cfg.Bucket}, nil
}

// Put uploads payload under key, returning the s3:// URI it was stored at.
func (b *BlobStore) Put(ctx context.Context, key string, payload []byte) (string, error) {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(payload),
	})
	if err != nil {
		return "", fmt.Errorf("store: put blob %s: %w", key, err)
	}
	return fmt.Sprintf("s3://%s/%s", b.bucket, key), nil
}

// Get downloads the payload previously stored under key.
func (b *BlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("store: get blob %s: %w", key, err)
	}
	defer out.Body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(out.Body); err != nil {
		return nil, fmt.Errorf("store: read blob %s: %w", key, err)
	}
	return buf.Bytes(), nil
}

// Delete removes the blob at key. Callers treat failures as
// fire-and-forget per the best-effort consistency policy: a dangling S3
// object never blocks a queue operation.
func (b *BlobStore) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("store: delete blob %s: %w", key, err)
	}
	return nil
}
