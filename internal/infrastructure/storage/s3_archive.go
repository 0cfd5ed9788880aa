// Package storage archives raw ERP extract pages in S3 compatible object storage.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/erp/kksync/internal/domain/integration"
	infraconfig "github.com/erp/kksync/internal/infrastructure/config"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var _ integration.ExtractArchive = (*S3ExtractArchive)(nil)

// S3ExtractArchive writes every ingested page as one JSON object.
// It works with any S3 compatible store (AWS S3, MinIO, RustFS).
type S3ExtractArchive struct {
	client *s3.Client
	bucket string
	prefix string
	now    func() time.Time
	logger *zap.Logger
}

// S3ArchiveOption is a functional option for S3ExtractArchive
type S3ArchiveOption func(*S3ExtractArchive)

// WithLogger sets a custom logger
func WithLogger(logger *zap.Logger) S3ArchiveOption {
	return func(s *S3ExtractArchive) {
		s.logger = logger
	}
}

// WithClock overrides the time source used in object keys
func WithClock(now func() time.Time) S3ArchiveOption {
	return func(s *S3ExtractArchive) {
		s.now = now
	}
}

// NewS3ExtractArchive creates an archive from configuration
func NewS3ExtractArchive(cfg *infraconfig.StorageConfig, opts ...S3ArchiveOption) (*S3ExtractArchive, error) {
	if cfg == nil {
		return nil, errors.New("storage configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	if cfg.AccessKey == "" {
		return nil, errors.New("storage access key is required")
	}
	if cfg.SecretKey == "" {
		return nil, errors.New("storage secret key is required")
	}

	endpoint := cfg.Endpoint
	if endpoint != "" && !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	if endpoint != "" {
		if _, err := url.Parse(endpoint); err != nil {
			return nil, fmt.Errorf("invalid storage endpoint: %w", err)
		}
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	archive := &S3ExtractArchive{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(archive)
	}
	if archive.prefix == "" {
		archive.prefix = "extracts"
	}
	return archive, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *S3ExtractArchive) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	s.logger.Info("Creating archive bucket", zap.String("bucket", s.bucket))
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		var alreadyOwned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &alreadyOwned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// ArchivePage stores rows under
// <prefix>/<task>/<yyyy>/<mm>/<dd>/<run id>/page-<n>.json
func (s *S3ExtractArchive) ArchivePage(ctx context.Context, task string, runID uuid.UUID, page int, rows []map[string]any) error {
	if task == "" {
		return errors.New("archive task is required")
	}
	if rows == nil {
		rows = []map[string]any{}
	}

	body, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("failed to encode extract page: %w", err)
	}

	key := s.ObjectKey(task, runID, page)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to archive extract page: %w", err)
	}

	s.logger.Debug("Archived extract page",
		zap.String("task", task),
		zap.String("key", key),
		zap.Int("rows", len(rows)),
	)
	return nil
}

// ObjectKey returns the object key of one archived page
func (s *S3ExtractArchive) ObjectKey(task string, runID uuid.UUID, page int) string {
	day := s.now().UTC().Format("2006/01/02")
	return path.Join(s.prefix, task, day, runID.String(), fmt.Sprintf("page-%04d.json", page))
}

// GetBucket returns the bucket name
func (s *S3ExtractArchive) GetBucket() string {
	return s.bucket
}
