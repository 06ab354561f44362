package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"cv-match-go/internal/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
)

// ObjectStorage 对象存储接口
type ObjectStorage interface {
	// UploadResumeFile 上传原始简历文件，返回对象键
	UploadResumeFile(ctx context.Context, submissionUUID, fileExt string, reader io.Reader, fileSize int64) (string, error)

	// UploadResumeFileStreaming 流式上传并同时计算MD5，返回对象键和MD5
	UploadResumeFileStreaming(ctx context.Context, submissionUUID, fileExt string, reader io.Reader, fileSize int64) (string, string, error)

	// UploadParsedText 上传解析后的纯文本
	UploadParsedText(ctx context.Context, submissionUUID string, text string) (string, error)

	// GetResumeFile 下载原始简历文件
	GetResumeFile(ctx context.Context, objectKey string) ([]byte, error)

	// GetParsedText 下载解析后的纯文本
	GetParsedText(ctx context.Context, objectKey string) (string, error)

	// GetPresignedURL 获取原始简历的预签名下载URL
	GetPresignedURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)

	// DeleteResumeFile 删除原始简历文件
	DeleteResumeFile(ctx context.Context, objectKey string) error
}

// 确保MinIO实现了ObjectStorage接口
var _ ObjectStorage = (*MinIO)(nil)

// MinIO 提供对象存储功能
type MinIO struct {
	client         *minio.Client
	cfg            *config.MinIOConfig
	originalBucket string
	parsedBucket   string
	logger         *log.Logger
}

// NewMinIO 创建MinIO客户端并确保存储桶与生命周期规则就绪
func NewMinIO(cfg *config.MinIOConfig, logger *log.Logger) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	logger.Printf("[MinIO] Initializing client: endpoint=%s, originalsBucket=%s, parsedTextBucket=%s",
		cfg.Endpoint, cfg.OriginalsBucket, cfg.ParsedTextBucket)

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	originalBucket := cfg.OriginalsBucket
	if originalBucket == "" {
		originalBucket = "resume-originals"
	}
	parsedBucket := cfg.ParsedTextBucket
	if parsedBucket == "" {
		parsedBucket = "resume-parsed-text"
	}

	m := &MinIO{
		client:         client,
		cfg:            cfg,
		originalBucket: originalBucket,
		parsedBucket:   parsedBucket,
		logger:         logger,
	}

	if err := m.ensureBucketExists(originalBucket, cfg.Location); err != nil {
		return nil, fmt.Errorf("确保原始简历存储桶 %s 存在失败: %w", originalBucket, err)
	}
	if err := m.ensureBucketExists(parsedBucket, cfg.Location); err != nil {
		return nil, fmt.Errorf("确保解析文本存储桶 %s 存在失败: %w", parsedBucket, err)
	}

	if cfg.OriginalFileExpireDays > 0 || cfg.ParsedTextExpireDays > 0 {
		if err := m.setupLifecycleRules(context.Background()); err != nil {
			// 生命周期规则失败不阻塞启动，部分对象存储实现不支持
			logger.Printf("[MinIO] Warning: failed to set up lifecycle rules: %v", err)
		}
	}

	logger.Printf("[MinIO] Client initialized successfully for endpoint: %s", cfg.Endpoint)
	return m, nil
}

// ensureBucketExists 确保存储桶存在
func (m *MinIO) ensureBucketExists(bucketName, location string) error {
	exists, err := m.client.BucketExists(context.Background(), bucketName)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", bucketName, err)
	}
	if !exists {
		m.logger.Printf("[MinIO] Bucket %s does not exist, creating...", bucketName)
		if err := m.client.MakeBucket(context.Background(), bucketName, minio.MakeBucketOptions{Region: location}); err != nil {
			return fmt.Errorf("创建存储桶 %s 失败: %w", bucketName, err)
		}
	}
	return nil
}

// setupLifecycleRules 设置对象生命周期规则
func (m *MinIO) setupLifecycleRules(ctx context.Context) error {
	if m.cfg.OriginalFileExpireDays > 0 {
		if err := m.setupBucketLifecycle(ctx, m.originalBucket, "expire-originals", m.cfg.OriginalFileExpireDays); err != nil {
			return fmt.Errorf("为原始文件存储桶 %s 设置生命周期失败: %w", m.originalBucket, err)
		}
	}
	if m.cfg.ParsedTextExpireDays > 0 {
		if err := m.setupBucketLifecycle(ctx, m.parsedBucket, "expire-parsed-text", m.cfg.ParsedTextExpireDays); err != nil {
			return fmt.Errorf("为解析文本存储桶 %s 设置生命周期失败: %w", m.parsedBucket, err)
		}
	}
	return nil
}

// setupBucketLifecycle 为指定存储桶设置按天过期规则
func (m *MinIO) setupBucketLifecycle(ctx context.Context, bucketName, ruleID string, expiryDays int) error {
	lc := lifecycle.NewConfiguration()
	lc.Rules = []lifecycle.Rule{
		{
			ID:     ruleID,
			Status: "Enabled",
			Expiration: lifecycle.Expiration{
				Days: lifecycle.ExpirationDays(expiryDays),
			},
		},
	}
	return m.client.SetBucketLifecycle(ctx, bucketName, lc)
}

// resumeObjectKey 原始简历的对象键，例如: resume/{uuid}/original.pdf
func resumeObjectKey(submissionUUID, fileExt string) string {
	return fmt.Sprintf("resume/%s/original%s", submissionUUID, fileExt)
}

// parsedTextObjectKey 解析文本的对象键，例如: resume/{uuid}/parsed_text.txt
func parsedTextObjectKey(submissionUUID string) string {
	return fmt.Sprintf("resume/%s/parsed_text.txt", submissionUUID)
}

// UploadResumeFile 上传原始简历文件到originalsBucket
// 返回MinIO中的对象键 (不含bucket前缀)
func (m *MinIO) UploadResumeFile(ctx context.Context, submissionUUID, fileExt string, reader io.Reader, fileSize int64) (string, error) {
	objectName := resumeObjectKey(submissionUUID, fileExt)
	contentType := getContentType(fileExt)

	_, err := m.client.PutObject(ctx, m.originalBucket, objectName, reader, fileSize,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("上传对象 %s/%s 失败: %w", m.originalBucket, objectName, err)
	}
	return objectName, nil
}

// UploadResumeFileStreaming 流式上传简历文件并同时计算MD5
// 返回: objectKey, md5Hex, error
func (m *MinIO) UploadResumeFileStreaming(ctx context.Context, submissionUUID, fileExt string, reader io.Reader, fileSize int64) (string, string, error) {
	objectName := resumeObjectKey(submissionUUID, fileExt)
	contentType := getContentType(fileExt)

	// TeeReader让上传流同时流过MD5计算器
	md5Hash := md5.New()
	teeReader := io.TeeReader(reader, md5Hash)

	info, err := m.client.PutObject(ctx, m.originalBucket, objectName, teeReader,
		fileSize, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", "", fmt.Errorf("流式上传文件到MinIO失败: %w", err)
	}

	md5Hex := hex.EncodeToString(md5Hash.Sum(nil))
	m.logger.Printf("[MinIO] Uploaded %s, ETag: %s, Size: %d, MD5: %s", objectName, info.ETag, info.Size, md5Hex)

	return objectName, md5Hex, nil
}

// UploadParsedText 上传解析后的文本到parsedTextBucket
func (m *MinIO) UploadParsedText(ctx context.Context, submissionUUID string, text string) (string, error) {
	objectName := parsedTextObjectKey(submissionUUID)

	_, err := m.client.PutObject(ctx, m.parsedBucket, objectName, strings.NewReader(text), int64(len(text)),
		minio.PutObjectOptions{ContentType: "text/plain"})
	if err != nil {
		return "", fmt.Errorf("上传解析文本 %s 到存储桶 %s 失败: %w", objectName, m.parsedBucket, err)
	}
	return objectName, nil
}

// GetResumeFile 从originalsBucket获取简历文件
func (m *MinIO) GetResumeFile(ctx context.Context, objectKey string) ([]byte, error) {
	return m.downloadObject(ctx, m.originalBucket, objectKey)
}

// GetParsedText 从parsedTextBucket获取解析后的文本
func (m *MinIO) GetParsedText(ctx context.Context, objectKey string) (string, error) {
	data, err := m.downloadObject(ctx, m.parsedBucket, objectKey)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// downloadObject 下载并完整读取一个对象
func (m *MinIO) downloadObject(ctx context.Context, bucketName, objectKey string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, bucketName, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("获取对象 %s/%s 失败: %w", bucketName, objectKey, err)
	}
	defer obj.Close()

	// Stat用于区分对象不存在与读取错误
	if _, err := obj.Stat(); err != nil {
		return nil, fmt.Errorf("获取对象 %s/%s 状态失败: %w", bucketName, objectKey, err)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("读取对象 %s/%s 数据失败: %w", bucketName, objectKey, err)
	}
	return data, nil
}

// GetPresignedURL 获取原始简历的预签名下载URL
func (m *MinIO) GetPresignedURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	presignedURL, err := m.client.PresignedGetObject(ctx, m.originalBucket, objectKey, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("生成MinIO预签名URL失败: %w", err)
	}
	return presignedURL.String(), nil
}

// DeleteResumeFile 删除原始简历文件
func (m *MinIO) DeleteResumeFile(ctx context.Context, objectKey string) error {
	if err := m.client.RemoveObject(ctx, m.originalBucket, objectKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("删除对象 %s 失败: %w", objectKey, err)
	}
	return nil
}

// UploadBytes 从内存字节上传对象到原始存储桶，测试与修复工具使用
func (m *MinIO) UploadBytes(ctx context.Context, objectKey string, data []byte, contentType string) (string, error) {
	_, err := m.client.PutObject(ctx, m.originalBucket, objectKey, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("上传对象 %s/%s 失败: %w", m.originalBucket, objectKey, err)
	}
	return objectKey, nil
}

// 获取内容类型
func getContentType(ext string) string {
	ext = strings.ToLower(ext)
	switch ext {
	case ".pdf":
		return "application/pdf"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".txt":
		return "text/plain"
	case ".html", ".htm":
		return "text/html"
	default:
		return "application/octet-stream"
	}
}
