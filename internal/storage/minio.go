package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/docuchat/backend-go/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOStore 原始PDF字节的对象存储
type MinIOStore struct {
	client *minio.Client
	bucket string
}

// NewMinIOStore 创建MinIO存储实例
func NewMinIOStore(cfg config.StorageConfig) (*MinIOStore, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint not configured")
	}

	// minio.New 不需要协议前缀
	endpoint := strings.TrimPrefix(cfg.Endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "pdf-documents"
	}

	return &MinIOStore{client: client, bucket: bucket}, nil
}

// EnsureBucket 确保bucket存在
func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// ObjectPath 文档的对象存储路径
func ObjectPath(documentID uint, filename string) string {
	return fmt.Sprintf("pdfs/%d/%s", documentID, filename)
}

// Put 持久化文档字节，返回对象路径
func (s *MinIOStore) Put(ctx context.Context, documentID uint, filename string, data []byte) (string, error) {
	path := ObjectPath(documentID, filename)
	_, err := s.client.PutObject(ctx, s.bucket, path, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/pdf",
	})
	if err != nil {
		return "", fmt.Errorf("failed to store document bytes: %w", err)
	}
	return path, nil
}

// Get 读取文档字节
func (s *MinIOStore) Get(ctx context.Context, path string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document bytes: %w", err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read document bytes: %w", err)
	}
	return data, nil
}

// Remove 删除文档字节，对象不存在时不报错
func (s *MinIOStore) Remove(ctx context.Context, path string) error {
	return s.client.RemoveObject(ctx, s.bucket, path, minio.RemoveObjectOptions{})
}

// Ready 检查存储可用性
func (s *MinIOStore) Ready(ctx context.Context) bool {
	if s.client == nil {
		return false
	}
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err == nil
}
