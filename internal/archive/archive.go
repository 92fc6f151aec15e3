// Package archive keeps the original uploaded documents in MinIO/S3 under
// their content hash, so the bytes behind every token can be retrieved later.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dharsanguruparan/rwavault/internal/config"
)

// Store wraps MinIO/S3 interactions for archived documents.
type Store struct {
	client *minio.Client
	bucket string
	region string
}

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Store, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Store{
		client: client,
		bucket: cfg.ArchiveBucket,
		region: cfg.S3Region,
	}, nil
}

// ObjectKey returns the object name for a content hash.
func ObjectKey(contentHash string) string {
	return "assets/" + contentHash
}

// EnsureBucket makes sure the archive bucket exists before use.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// Put stores the document. The key is content addressed, so uploading the
// same bytes twice rewrites an identical object.
func (s *Store) Put(ctx context.Context, contentHash string, data []byte, contentType string) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	_, err := s.client.PutObject(ctx, s.bucket, ObjectKey(contentHash), bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return fmt.Errorf("archive object: %w", err)
	}
	return nil
}

// PresignURL returns a signed GET URL for an archived document.
func (s *Store) PresignURL(ctx context.Context, contentHash string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, ObjectKey(contentHash), ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return u.String(), nil
}
