package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/your-org/mpr/internal/config"
)

// MinIOStore reads and writes the dataset, report and evidence buckets.
type MinIOStore struct {
	client        *minio.Client
	buckets       config.BucketsConfig
	publicBaseURL string
	presignExpiry time.Duration
}

func NewMinIOStore(cfg config.MinIOConfig) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinIOStore{
		client:        client,
		buckets:       cfg.Buckets,
		publicBaseURL: cfg.PublicBaseURL,
		presignExpiry: cfg.PresignExpiry,
	}, nil
}

// EnsureBuckets creates any configured bucket that doesn't exist.
func (s *MinIOStore) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range s.buckets.All() {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
	}
	return nil
}

// List returns every object name in bucket, in the order MinIO returns them.
// Folder placeholder objects are left out.
func (s *MinIOStore) List(ctx context.Context, bucket string) ([]string, error) {
	var names []string
	for obj := range s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects %s: %w", bucket, obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		names = append(names, obj.Key)
	}
	return names, nil
}

// Fetch reads a whole object.
func (s *MinIOStore) Fetch(ctx context.Context, bucket, name string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s/%s: %w", bucket, name, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object %s/%s: %w", bucket, name, err)
	}
	return data, nil
}

// Upload stores data under name, detecting the content type from its bytes.
func (s *MinIOStore) Upload(ctx context.Context, bucket, name string, data []byte) error {
	_, err := s.client.PutObject(ctx, bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: mimetype.Detect(data).String(),
	})
	if err != nil {
		return fmt.Errorf("put object %s/%s: %w", bucket, name, err)
	}
	return nil
}

// PublicURL returns a URL a browser can load the object from. With a public
// base URL configured it is a plain join, otherwise a presigned GET.
func (s *MinIOStore) PublicURL(ctx context.Context, bucket, name string) (string, error) {
	if s.publicBaseURL != "" {
		return joinPublicURL(s.publicBaseURL, bucket, name)
	}
	u, err := s.client.PresignedGetObject(ctx, bucket, name, s.presignExpiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s/%s: %w", bucket, name, err)
	}
	return u.String(), nil
}

func joinPublicURL(base, bucket, name string) (string, error) {
	u, err := url.JoinPath(base, append([]string{bucket}, strings.Split(name, "/")...)...)
	if err != nil {
		return "", fmt.Errorf("join public url: %w", err)
	}
	return u, nil
}

// Ping checks MinIO connectivity.
func (s *MinIOStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.buckets.Dataset)
	return err
}
