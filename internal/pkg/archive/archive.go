// Package archive copies journaled webhook payloads to S3 compatible object
// storage so the database row can be trimmed later without losing evidence.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/MoodTunes/app/models"
	"github.com/ManuelReschke/MoodTunes/internal/pkg/config"
)

// ObjectAPI is the part of *s3.Client the archiver uses.
type ObjectAPI interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Client writes webhook payloads to one bucket.
type Client struct {
	api    ObjectAPI
	bucket string
	prefix string
}

// NewClient builds an S3 client from cfg and checks that the bucket is
// reachable.
func NewClient(ctx context.Context, cfg config.ArchiveConfig) (*Client, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("webhook archive is disabled")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			// S3 compatible services (MinIO, B2) want path style URLs.
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
		}
	})

	c := New(api, cfg.Bucket, cfg.Prefix)
	if _, err := api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, fmt.Errorf("bucket %s not accessible: %w", cfg.Bucket, err)
	}

	log.Infof("[Archive] Initialized S3 archive for bucket: %s", cfg.Bucket)
	return c, nil
}

// New wraps an existing object API.
func New(api ObjectAPI, bucket, prefix string) *Client {
	return &Client{api: api, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// ObjectKey returns <prefix>/<provider>/YYYY/MM/DD/<id>.json for an event.
func (c *Client) ObjectKey(ev *models.BillingWebhookEvent) string {
	key := fmt.Sprintf("%s/%s/%d.json", ev.Provider, ev.CreatedAt.UTC().Format("2006/01/02"), ev.ID)
	if c.prefix == "" {
		return key
	}
	return c.prefix + "/" + key
}

// PutWebhookEvent uploads the stored payload and returns the object key.
func (c *Client) PutWebhookEvent(ctx context.Context, ev *models.BillingWebhookEvent) (string, error) {
	if ev == nil || ev.ID == 0 {
		return "", fmt.Errorf("webhook event is required")
	}
	key := c.ObjectKey(ev)
	body := []byte(ev.Payload)

	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(body))),
		Metadata: map[string]string{
			"provider":          ev.Provider,
			"provider-event-id": ev.ProviderEventID,
			"event-type":        ev.EventType,
			"order-id":          ev.OrderID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload webhook event %d: %w", ev.ID, err)
	}

	log.Infof("[Archive] Uploaded webhook event %d to s3://%s/%s", ev.ID, c.bucket, key)
	return key, nil
}
