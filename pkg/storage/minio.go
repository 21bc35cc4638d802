// Package storage 提供了与对象存储服务（如 MinIO）以及远程 URL 交互的功能。
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"chatpdf-go/internal/config"
	"chatpdf-go/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOStore 封装了一个 MinIO 客户端和默认存储桶。
type MinIOStore struct {
	client *minio.Client
	bucket string
}

// NewMinIOStore 初始化 MinIO 客户端并确保指定的存储桶存在。
func NewMinIOStore(ctx context.Context, cfg config.MinIOConfig) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 客户端失败: %w", err)
	}
	log.Info("MinIO 客户端初始化成功")

	// 检查存储桶是否存在，如果不存在则创建
	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("检查 MinIO 存储桶失败: %w", err)
	}
	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("创建 MinIO 存储桶失败: %w", err)
		}
		log.Infof("存储桶 '%s' 创建成功", cfg.BucketName)
	}

	return &MinIOStore{client: client, bucket: cfg.BucketName}, nil
}

// Put 将对象写入默认存储桶。
func (s *MinIOStore) Put(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, objectName, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("上传对象 %s 失败: %w", objectName, err)
	}
	return nil
}

// Fetch 读取默认存储桶中对象的全部字节。
func (s *MinIOStore) Fetch(ctx context.Context, uri string) ([]byte, error) {
	object, err := s.client.GetObject(ctx, s.bucket, objectKey(uri), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("从 MinIO 下载文件失败: %w", err)
	}
	defer object.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(object); err != nil {
		return nil, fmt.Errorf("读取 MinIO 对象流失败: %w", err)
	}
	return buf.Bytes(), nil
}

// PresignedURL generates a presigned URL for a given object.
func (s *MinIOStore) PresignedURL(ctx context.Context, uri string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectKey(uri), expiry, nil)
	if err != nil {
		return "", fmt.Errorf("生成预签名链接失败: %w", err)
	}
	return u.String(), nil
}

func objectKey(uri string) string {
	return strings.TrimPrefix(uri, "/")
}

// ObjectName 返回上传文件在存储桶中的路径。
func ObjectName(userID, fileID, fileName string) string {
	return userPrefix(userID) + fmt.Sprintf("files/%s/%s", fileID, fileName)
}

func userPrefix(userID string) string {
	return fmt.Sprintf("users/%s/", userID)
}

// OwnedBy 报告对象 key 是否位于该用户自己的目录下。
// 只接受规范化的相对路径，带 scheme、".." 或多余斜杠的 key 一律拒绝。
func OwnedBy(objectName, userID string) bool {
	if userID == "" || strings.Contains(userID, "/") || strings.Contains(objectName, "://") {
		return false
	}
	if path.Clean(objectName) != objectName {
		return false
	}
	prefix := userPrefix(userID)
	return strings.HasPrefix(objectName, prefix) && len(objectName) > len(prefix)
}
