// internal/common/aws/s3.go
package aws

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Options selects the bucket that holds documents, receipts and cover letters.
type S3Options struct {
	Region       string
	Bucket       string
	Endpoint     string
	UsePathStyle bool
}

// S3Client uploads objects and issues time-limited signed GET URLs.
type S3Client struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

func NewS3Client(ctx context.Context, opts S3Options) (*S3Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(opts.Region))
	if err != nil {
		return nil, err
	}
	return NewS3ClientFromConfig(cfg, opts), nil
}

func NewS3ClientFromConfig(cfg aws.Config, opts S3Options) *S3Client {
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})
	return &S3Client{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  opts.Bucket,
	}
}

func (s *S3Client) Bucket() string {
	return s.bucket
}

// Upload stores body at key, replacing any existing object.
func (s *S3Client) Upload(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", key, err)
	}
	return nil
}

// SignedURL presigns a GET for key that expires after ttl.
func (s *S3Client) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("s3 presign %s: %w", key, err)
	}
	return req.URL, nil
}
