// Package s3 provides an S3-backed backend, compatible with AWS S3, MinIO
// and Localstack.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/marmos91/storagebox/pkg/backend"
	"github.com/marmos91/storagebox/pkg/bufpool"
)

// Config holds configuration for the S3 backend.
type Config struct {
	// Bucket is the S3 bucket name.
	Bucket string

	// Region is the AWS region (optional, uses SDK default if empty).
	Region string

	// Endpoint is the S3 endpoint URL (optional, for S3-compatible services).
	Endpoint string

	// KeyPrefix is prepended to all object keys (e.g., "objects/").
	// Should end with "/" if non-empty.
	KeyPrefix string

	// AccessKeyID and SecretAccessKey select static credentials. When empty
	// the SDK default chain is used.
	AccessKeyID     string
	SecretAccessKey string

	// ForcePathStyle forces path-style addressing (required for Localstack/MinIO).
	ForcePathStyle bool

	// DownloadURLs enables presigned download URLs.
	DownloadURLs bool

	// PresignTTL is the lifetime of presigned URLs. Default: 120s.
	PresignTTL time.Duration

	// SpoolDir holds temporary copies of incoming uploads. Default: os.TempDir().
	SpoolDir string
}

// Store is an S3-backed implementation of backend.Backend.
type Store struct {
	client       *s3.Client
	presign      *s3.PresignClient
	bucket       string
	keyPrefix    string
	downloadURLs bool
	presignTTL   time.Duration
	spoolDir     string
	closed       bool
	mu           sync.RWMutex
}

// New creates an S3 backend with an existing client.
func New(client *s3.Client, config Config) *Store {
	ttl := config.PresignTTL
	if ttl <= 0 {
		ttl = backend.DefaultPresignTTL
	}
	return &Store{
		client:       client,
		presign:      s3.NewPresignClient(client),
		bucket:       config.Bucket,
		keyPrefix:    config.KeyPrefix,
		downloadURLs: config.DownloadURLs,
		presignTTL:   ttl,
		spoolDir:     config.SpoolDir,
	}
}

// NewFromConfig creates an S3 backend by building a client from config.
func NewFromConfig(ctx context.Context, config Config) (*Store, error) {
	if config.Bucket == "" {
		return nil, errors.New("s3 backend requires bucket")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if config.Region != "" {
		opts = append(opts, awsconfig.WithRegion(config.Region))
	}
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if config.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
		})
	}
	if config.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return New(s3.NewFromConfig(awsCfg, s3Opts...), config), nil
}

func (s *Store) fullKey(uri string) string {
	return s.keyPrefix + uri
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return backend.ErrBackendClosed
	}
	return nil
}

func (s *Store) ObtainObjectURI(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return uuid.NewString(), nil
}

// UploadStream spools the stream to a temporary file so the size can be
// verified before anything reaches the bucket, then uploads it with a known
// length.
func (s *Store) UploadStream(ctx context.Context, uri string, r io.Reader, size int64) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	spool, err := os.CreateTemp(s.spoolDir, "storagebox-s3-*")
	if err != nil {
		return fmt.Errorf("s3 spool: %w", err)
	}
	defer func() {
		_ = spool.Close()
		_ = os.Remove(spool.Name())
	}()

	limited, check := backend.LimitStream(r, size)
	if _, err := bufpool.Copy(spool, limited, size); err != nil {
		return fmt.Errorf("s3 spool: %w", err)
	}
	if err := check(uri); err != nil {
		return err
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("s3 spool: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.fullKey(uri)),
		Body:          spool,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}
	return nil
}

func (s *Store) DownloadStream(ctx context.Context, uri string) (io.ReadCloser, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(uri)),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, backend.ErrObjectNotFound
		}
		return nil, fmt.Errorf("s3 get object: %w", err)
	}
	return resp.Body, nil
}

func (s *Store) DeleteFile(ctx context.Context, uri string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(uri)),
	})
	if err != nil && !isNotFoundError(err) {
		return fmt.Errorf("s3 delete object: %w", err)
	}
	return nil
}

// DownloadURLsEnabled reports whether presigned URLs are switched on.
func (s *Store) DownloadURLsEnabled() bool {
	return s.downloadURLs
}

// GetDownloadURL presigns a GET for the object that overrides the response
// headers so the browser sees the entry's name and mimetype.
func (s *Store) GetDownloadURL(ctx context.Context, uri, name string, disposition backend.Disposition, mimetype string) (string, error) {
	if err := s.checkOpen(); err != nil {
		return "", err
	}

	input := &s3.GetObjectInput{
		Bucket:                     aws.String(s.bucket),
		Key:                        aws.String(s.fullKey(uri)),
		ResponseContentDisposition: aws.String(backend.ContentDisposition(disposition, name)),
	}
	if mimetype != "" {
		input.ResponseContentType = aws.String(mimetype)
	}

	req, err := s.presign.PresignGetObject(ctx, input, s3.WithPresignExpires(s.presignTTL))
	if err != nil {
		return "", fmt.Errorf("s3 presign get object: %w", err)
	}
	return req.URL, nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// HealthCheck verifies the bucket is accessible.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("S3 health check failed: %w", err)
	}
	return nil
}

func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}

	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "NoSuchKey") ||
		strings.Contains(errStr, "StatusCode: 404")
}

var (
	_ backend.Backend     = (*Store)(nil)
	_ backend.URLProvider = (*Store)(nil)
)
