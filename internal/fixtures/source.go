package fixtures

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// DirSource serves <Dir>/<table>.csv.
type DirSource struct {
	Dir string
}

// Open implements seed.Source.
func (s DirSource) Open(_ context.Context, table string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.Dir, table+".csv"))
	if err != nil {
		return nil, fmt.Errorf("failed to open fixture: %w", err)
	}
	return f, nil
}

// BucketConfig locates fixtures in an S3-compatible bucket.
type BucketConfig struct {
	Endpoint  string `koanf:"endpoint"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	Bucket    string `koanf:"bucket"`
	Prefix    string `koanf:"prefix"`
	UseSSL    bool   `koanf:"use_ssl"`
}

// BucketSource serves and stores fixture files as <prefix>/<table>.csv objects.
type BucketSource struct {
	mc     *minio.Client
	bucket string
	prefix string
	logger *slog.Logger
}

// NewBucketSource creates a client for cfg. It does not contact the server.
func NewBucketSource(cfg BucketConfig, logger *slog.Logger) (*BucketSource, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, errors.New("bucket source needs an endpoint and a bucket")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &BucketSource{mc: mc, bucket: cfg.Bucket, prefix: cfg.Prefix, logger: logger}, nil
}

// ObjectName returns the object key for a table.
func (s *BucketSource) ObjectName(table string) string {
	return path.Join(s.prefix, table+".csv")
}

// Open implements seed.Source. Missing objects fail here rather than on
// first read.
func (s *BucketSource) Open(ctx context.Context, table string) (io.ReadCloser, error) {
	name := s.ObjectName(table)
	if _, err := s.mc.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{}); err != nil {
		return nil, fmt.Errorf("stat %s/%s: %w", s.bucket, name, err)
	}
	obj, err := s.mc.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("download %s/%s: %w", s.bucket, name, err)
	}
	return obj, nil
}

// EnsureBucket creates the bucket if it does not exist.
func (s *BucketSource) EnsureBucket(ctx context.Context) error {
	exists, err := s.mc.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.mc.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		s.logger.Info("created bucket", "bucket", s.bucket)
	}
	return nil
}

// Upload stores the local file for table under its object name.
func (s *BucketSource) Upload(ctx context.Context, table, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", file, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", file, err)
	}

	name := s.ObjectName(table)
	_, err = s.mc.PutObject(ctx, s.bucket, name, f, info.Size(), minio.PutObjectOptions{ContentType: "text/csv"})
	if err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	s.logger.Info("uploaded fixture", "bucket", s.bucket, "object", name, "bytes", info.Size())
	return nil
}
