package objectstore

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// Archiver stores a copy of raw evidence bytes and returns its location.
type Archiver interface {
	Put(ctx context.Context, key string, body []byte) (string, error)
}

// S3Client archives evidence to an S3 bucket.
type S3Client struct {
	uploader *manager.Uploader
	bucket   string
	log      *zap.Logger
}

func NewS3Client(ctx context.Context, region, accessKey, secretKey, bucket string, logger *zap.Logger) (*S3Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("objectstore: load aws config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3Client{
		uploader: manager.NewUploader(s3.NewFromConfig(cfg)),
		bucket:   bucket,
		log:      logger,
	}, nil
}

func (c *S3Client) Put(ctx context.Context, key string, body []byte) (string, error) {
	out, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return "", fmt.Errorf("objectstore: upload %s: %w", key, err)
	}
	c.log.Debug("archived evidence", zap.String("key", key))
	return out.Location, nil
}
