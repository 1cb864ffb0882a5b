package services

import (
	"bytes"
	"context"
	"fmt"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PlanStorage persists rendered plans and signs download URLs on demand.
// Put returns a permanent object key, never a signed URL: re-delivery must
// not depend on a URL outliving its own expiry.
type PlanStorage interface {
	Put(ctx context.Context, key string, data []byte) (string, error)
	SignURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type S3PlanStorage struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
	prefix    string
}

func NewS3PlanStorage(cfg sdkaws.Config, bucket, prefix string) *S3PlanStorage {
	client := s3.NewFromConfig(cfg)
	return &S3PlanStorage{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    bucket,
		prefix:    prefix,
	}
}

func (s *S3PlanStorage) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

func (s *S3PlanStorage) Put(ctx context.Context, key string, data []byte) (string, error) {
	objectKey := s.objectKey(key)
	contentType := "application/pdf"

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &objectKey,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return "", NewRetryable(StageStore, fmt.Errorf("put object %s: %w", objectKey, err))
	}
	return objectKey, nil
}

func (s *S3PlanStorage) SignURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	presigned, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	}, func(o *s3.PresignOptions) {
		o.Expires = ttl
	})
	if err != nil {
		return "", fmt.Errorf("presign get object %s: %w", key, err)
	}
	return presigned.URL, nil
}
