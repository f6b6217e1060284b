// Package objectstore wraps the S3 and MinIO SDKs behind the operations the
// API and the worker need: presigned uploads, existence checks and
// file transfer.
package objectstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Store is an object store bucket
type Store interface {
	Bucket() string
	PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Download(ctx context.Context, key, path string) error
	Upload(ctx context.Context, key, path, contentType string) error
	PublicURL(key string) string
}

// Config holds object store settings
type Config struct {
	Provider        string // s3 or minio
	Bucket          string
	Region          string
	Endpoint        string // override for LocalStack or MinIO
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
}

// New builds the Store for config.Provider
func New(ctx context.Context, config *Config, logger *slog.Logger) (Store, error) {
	if config.Bucket == "" {
		return nil, fmt.Errorf("object store bucket is required")
	}

	switch config.Provider {
	case "s3", "":
		return NewS3Store(ctx, config, logger)
	case "minio":
		return NewMinIOStore(config, logger)
	default:
		return nil, fmt.Errorf("unsupported object store provider: %q", config.Provider)
	}
}

// publicURL renders the browser-facing URL of key. With an endpoint override
// the URL is path-style under the endpoint.
func publicURL(endpoint, bucket, region, key string) string {
	if endpoint != "" {
		return strings.TrimRight(endpoint, "/") + "/" + bucket + "/" + key
	}
	if region == "" || region == "us-east-1" {
		return "https://" + bucket + ".s3.amazonaws.com/" + key
	}
	return "https://" + bucket + ".s3." + region + ".amazonaws.com/" + key
}
