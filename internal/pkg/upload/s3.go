package upload

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/ayushllcode/ngohub/internal/config"
)

// S3Store 将附件保存到 S3 兼容的对象存储（AWS S3 / MinIO）。
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	maxSize int64
	logger  *slog.Logger
}

func NewS3Store(ctx context.Context, cfg *config.UploadConfig, logger *slog.Logger) (*S3Store, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3AccessKey,
			cfg.S3SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.S3Bucket,
		maxSize: cfg.MaxSizeByte,
		logger:  logger,
	}, nil
}

// storageKey 生成按日期分层的对象键，如 "uploads/2026/8/29/<uuid>.png"。
func storageKey(name string) string {
	d := time.Now()
	return fmt.Sprintf("uploads/%d/%d/%d/%v-%s", d.Year(), d.Month(), d.Day(), uuid.New(), name)
}

func (s *S3Store) Save(ctx context.Context, field, filename string, data []byte) (*SavedFile, error) {
	if err := ValidateExt(filename); err != nil {
		return nil, err
	}
	if s.maxSize > 0 && int64(len(data)) > s.maxSize {
		return nil, fmt.Errorf("file too large: %d bytes (limit %d)", len(data), s.maxSize)
	}

	key := storageKey(randomName(field, filename))
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return nil, fmt.Errorf("put object: %w", err)
	}

	url, err := s.PresignGetURL(ctx, key)
	if err != nil {
		return nil, err
	}

	s.logger.Info("file uploaded to s3",
		slog.String("field", field),
		slog.String("key", key),
		slog.Int("size", len(data)))

	return &SavedFile{
		Key:  key,
		URL:  url,
		Size: int64(len(data)),
	}, nil
}

// PresignPutURL 生成客户端直传用的预签名 PUT 地址。
func (s *S3Store) PresignPutURL(ctx context.Context) (string, string, error) {
	key := storageKey(uuid.NewString())
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		return "", "", fmt.Errorf("presign put: %w", err)
	}
	return key, req.URL, nil
}

// PresignGetURL 生成访问已上传对象的预签名 GET 地址。
func (s *S3Store) PresignGetURL(ctx context.Context, key string) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return req.URL, nil
}
