package storage

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"soundsketch/errs"

	"github.com/minio/minio-go/v7"
)

// 预签名 URL 有效期。下载 URL 的客户端缓存刷新点为 55 分钟，短于这里的 1 小时。
const (
	DefaultUploadTTL   = 5 * time.Minute
	DefaultDownloadTTL = time.Hour
)

// PresignService issues short-lived signed upload/download URLs against one
// bucket. It signs whatever key it is told to sign; authorization (e.g. the
// track-level downloads flag for original assets) is enforced by the caller.
type PresignService struct {
	client *minio.Client
	bucket string
}

// NewPresignService 创建预签名服务。客户端或存储桶缺失属配置错误。
func NewPresignService(client *minio.Client, bucket string) (*PresignService, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: MinIO client not initialized", errs.ErrConfiguration)
	}
	if bucket == "" {
		return nil, fmt.Errorf("%w: bucket not configured", errs.ErrConfiguration)
	}
	return &PresignService{client: client, bucket: bucket}, nil
}

// Bucket returns the bucket this service signs against.
func (s *PresignService) Bucket() string {
	return s.bucket
}

// IssueUpload returns a presigned PUT URL for key. ttl <= 0 uses the default 300s.
func (s *PresignService) IssueUpload(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultUploadTTL
	}
	u, err := s.client.PresignedPutObject(ctx, s.bucket, key, ttl)
	if err != nil {
		return "", fmt.Errorf("failed to presign upload for %s: %w", key, err)
	}
	return u.String(), nil
}

// IssueDownload returns a presigned GET URL for key. ttl <= 0 uses the default 1h.
func (s *PresignService) IssueDownload(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultDownloadTTL
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign download for %s: %w", key, err)
	}
	return u.String(), nil
}
