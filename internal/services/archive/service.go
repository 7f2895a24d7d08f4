// Package archive stores dump artifacts in an S3 bucket.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/ewiniecke/nb27-backup/internal/models"
	"github.com/rs/zerolog"
)

// ErrObjectNotFound is returned by Download when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// Service defines the interface for archive operations.
type Service interface {
	PutEncrypted(ctx context.Context, localPath, key string) error
	List(ctx context.Context, prefix, suffix string) ([]models.ArchiveObject, error)
	ListLatest(ctx context.Context, prefix, suffix string) (*models.ArchiveObject, error)
	Download(ctx context.Context, key, localPath string) (int64, error)
}

// S3API is the subset of the S3 client used here. It allows mocking in tests.
type S3API interface {
	manager.UploadAPIClient
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Impl implements the archive Service interface.
type Impl struct {
	client   S3API
	uploader *manager.Uploader
	bucket   string
	logger   zerolog.Logger
	progress io.Writer // nil disables transfer progress bars
}

// New creates an archive service for the configured bucket. Credentials and
// region resolve through the default AWS chain, narrowed by the configured
// profile and region, unless static keys are configured.
func New(ctx context.Context, cfg models.ArchiveConfig, logger zerolog.Logger) (*Impl, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return NewWithClient(logger, client, cfg.Bucket), nil
}

// NewWithClient creates an archive service with a custom S3 client (for testing).
func NewWithClient(logger zerolog.Logger, client S3API, bucket string) *Impl {
	return &Impl{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		logger:   logger.With().Str("bucket", bucket).Logger(),
	}
}

// WithProgress renders transfer progress bars to w.
func (s *Impl) WithProgress(w io.Writer) *Impl {
	s.progress = w
	return s
}

// PutEncrypted uploads a local file under key with server-side encryption.
// Large files are sent as a multipart upload.
func (s *Impl) PutEncrypted(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath) //nolint:gosec // path is controlled by caller
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", localPath, err)
	}

	s.logger.Info().
		Str("file", localPath).
		Str("key", key).
		Int64("size_bytes", info.Size()).
		Msg("uploading to archive")

	var body io.Reader = f
	if s.progress != nil {
		bar := newBar(info.Size(), "upload "+filepath.Base(localPath), s.progress)
		defer func() { _ = bar.Finish() }()
		reader := progressReader(f, bar)
		body = &reader
	}

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(key),
		Body:                 body,
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}

	s.logger.Info().Str("key", key).Msg("upload completed")
	return nil
}

// List returns every object under prefix whose key ends with suffix, newest first.
func (s *Impl) List(ctx context.Context, prefix, suffix string) ([]models.ArchiveObject, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	var objects []models.ArchiveObject
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list s3://%s/%s: %w", s.bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, suffix) {
				continue
			}
			objects = append(objects, models.ArchiveObject{
				Key:          key,
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}

	// Ties on LastModified fall back to the key, whose timestamp sorts chronologically.
	sort.SliceStable(objects, func(i, j int) bool {
		if objects[i].LastModified.Equal(objects[j].LastModified) {
			return objects[i].Key > objects[j].Key
		}
		return objects[i].LastModified.After(objects[j].LastModified)
	})

	s.logger.Debug().Str("prefix", prefix).Int("objects", len(objects)).Msg("listed archive")
	return objects, nil
}

// ListLatest returns the most recently modified object under prefix whose key
// ends with suffix. It returns models.ErrNoDumpFound when nothing matches.
func (s *Impl) ListLatest(ctx context.Context, prefix, suffix string) (*models.ArchiveObject, error) {
	objects, err := s.List(ctx, prefix, suffix)
	if err != nil {
		return nil, err
	}
	if len(objects) == 0 {
		return nil, fmt.Errorf("%w in s3://%s/%s", models.ErrNoDumpFound, s.bucket, prefix)
	}
	return &objects[0], nil
}

// Download fetches key into localPath. The file appears under its final name
// only after the transfer completed.
func (s *Impl) Download(ctx context.Context, key, localPath string) (int64, error) {
	s.logger.Info().Str("key", key).Str("file", localPath).Msg("downloading from archive")

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, fmt.Errorf("%w: s3://%s/%s", ErrObjectNotFound, s.bucket, key)
		}
		return 0, fmt.Errorf("failed to get %s: %w", key, err)
	}
	defer func() { _ = out.Body.Close() }()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o750); err != nil {
		return 0, fmt.Errorf("failed to create download directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(localPath), ".tmp_download_*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	var body io.Reader = out.Body
	if s.progress != nil {
		bar := newBar(aws.ToInt64(out.ContentLength), "download "+filepath.Base(localPath), s.progress)
		defer func() { _ = bar.Finish() }()
		reader := progressReader(out.Body, bar)
		body = &reader
	}

	n, err := io.Copy(tmp, body)
	if err != nil {
		_ = tmp.Close()
		return 0, fmt.Errorf("failed to download %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, localPath); err != nil {
		return 0, fmt.Errorf("failed to move download into place: %w", err)
	}

	s.logger.Info().Str("file", localPath).Int64("size_bytes", n).Msg("download completed")
	return n, nil
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
