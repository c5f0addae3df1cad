// Package blob stores uploaded media in an S3 compatible object store.
package blob

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

type Config struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	UseSSL        bool
	PublicBaseURL string
}

// MinIO implements upload, public URL resolution and deletion on top of
// minio-go.
type MinIO struct {
	client        *minio.Client
	publicBaseURL string
	logger        *zap.Logger
}

func NewMinIO(cfg Config, logger *zap.Logger) (*MinIO, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	base := strings.TrimRight(cfg.PublicBaseURL, "/")
	if base == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		base = scheme + "://" + cfg.Endpoint
	}
	return &MinIO{client: client, publicBaseURL: base, logger: logger}, nil
}

// EnsureBucket creates the bucket when missing and makes its objects
// anonymously readable, since every stored asset is rendered on the public site.
func (m *MinIO) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := m.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := m.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", bucket, err)
		}
		m.logger.Info("bucket created", zap.String("bucket", bucket))
	}
	if err := m.client.SetBucketPolicy(ctx, bucket, PublicReadPolicy(bucket)); err != nil {
		return fmt.Errorf("set bucket policy %s: %w", bucket, err)
	}
	return nil
}

func (m *MinIO) Upload(ctx context.Context, bucket, objectPath string, r io.Reader, size int64, contentType string) (string, error) {
	info, err := m.client.PutObject(ctx, bucket, objectPath, r, size, minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "public, max-age=31536000, immutable",
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", objectPath, err)
	}
	m.logger.Debug("object stored", zap.String("bucket", bucket), zap.String("path", objectPath), zap.Int64("size", info.Size))
	return m.PublicURL(bucket, objectPath), nil
}

func (m *MinIO) PublicURL(bucket, objectPath string) string {
	return PublicURL(m.publicBaseURL, bucket, objectPath)
}

// Delete removes an object. A missing object counts as deleted.
func (m *MinIO) Delete(ctx context.Context, bucket, objectPath string) error {
	err := m.client.RemoveObject(ctx, bucket, objectPath, minio.RemoveObjectOptions{})
	if err == nil {
		return nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return nil
	}
	return fmt.Errorf("remove object %s: %w", objectPath, err)
}

func (m *MinIO) Ping(ctx context.Context, bucket string) error {
	if _, err := m.client.BucketExists(ctx, bucket); err != nil {
		return fmt.Errorf("ping object store: %w", err)
	}
	return nil
}

// PublicURL joins base, bucket and an object path, escaping each segment.
func PublicURL(base, bucket, objectPath string) string {
	segments := strings.Split(strings.Trim(objectPath, "/"), "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(bucket) + "/" + strings.Join(segments, "/")
}

func PublicReadPolicy(bucket string) string {
	return fmt.Sprintf(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/*"]}]}`, bucket)
}
