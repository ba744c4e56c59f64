// Package objectstore abstracts S3-compatible object storage used by the
// optional publish operation.
package objectstore

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/hardenlab/hardenctl/internal/platform/env"
)

// Store abstracts S3-compatible object storage.
type Store interface {
	Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error
	Stat(ctx context.Context, bucket, key string) (ObjectInfo, error)
	Delete(ctx context.Context, bucket, key string) error
}

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string
}

// ConfigFromEnv resolves the object store settings. Publishing is optional:
// an empty endpoint means the feature is disabled, which Enabled reports.
func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("HARDEN_MINIO_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:  env.String("HARDEN_MINIO_ENDPOINT", ""),
		AccessKey: env.String("HARDEN_MINIO_ACCESS_KEY", ""),
		SecretKey: env.String("HARDEN_MINIO_SECRET_KEY", ""),
		Region:    env.String("HARDEN_MINIO_REGION", "us-east-1"),
		UseSSL:    useSSL,
		Bucket:    env.String("HARDEN_MINIO_BUCKET", "tapeouts"),
	}
	if !cfg.Enabled() {
		return cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return errors.New("endpoint must not include scheme")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("bucket is required")
	}
	return nil
}
