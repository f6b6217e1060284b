package objectstore

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"
)

// MinIOStore is a Store on a MinIO server
type MinIOStore struct {
	client *minio.Client
	config *Config
	logger *slog.Logger
}

// NewMinIOStore creates a MinIOStore. Endpoint may carry a scheme, which then
// decides TLS instead of UseSSL.
func NewMinIOStore(config *Config, logger *slog.Logger) (*MinIOStore, error) {
	host, secure, err := splitEndpoint(config.Endpoint, config.UseSSL)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(host, &minio.Options{
		Creds:  miniocreds.NewStaticV4(config.AccessKeyID, config.SecretAccessKey, ""),
		Secure: secure,
		Region: config.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	logger.Info("MinIO object store initialized",
		slog.String("endpoint", host),
		slog.String("bucket", config.Bucket),
		slog.Bool("secure", secure),
	)

	return &MinIOStore{client: client, config: config, logger: logger}, nil
}

func splitEndpoint(endpoint string, useSSL bool) (string, bool, error) {
	if endpoint == "" {
		return "", false, fmt.Errorf("minio endpoint is required")
	}
	if !strings.Contains(endpoint, "://") {
		return endpoint, useSSL, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("invalid minio endpoint %q: %w", endpoint, err)
	}
	return u.Host, u.Scheme == "https", nil
}

func (m *MinIOStore) Bucket() string {
	return m.config.Bucket
}

// PresignPut signs Content-Type into the URL so the upload must use it
func (m *MinIOStore) PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	headers := http.Header{}
	headers.Set("Content-Type", contentType)

	u, err := m.client.PresignHeader(ctx, http.MethodPut, m.config.Bucket, key, ttl, url.Values{}, headers)
	if err != nil {
		return "", fmt.Errorf("presign put object: %w", err)
	}
	return u.String(), nil
}

func (m *MinIOStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := m.client.StatObject(ctx, m.config.Bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return false, nil
	}
	return false, fmt.Errorf("stat object: %w", err)
}

func (m *MinIOStore) Download(ctx context.Context, key, path string) error {
	if err := m.client.FGetObject(ctx, m.config.Bucket, key, path, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("get object %s: %w", key, err)
	}
	return nil
}

func (m *MinIOStore) Upload(ctx context.Context, key, path, contentType string) error {
	_, err := m.client.FPutObject(ctx, m.config.Bucket, key, path, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

func (m *MinIOStore) PublicURL(key string) string {
	endpoint := m.config.Endpoint
	if !strings.Contains(endpoint, "://") {
		scheme := "http://"
		if m.config.UseSSL {
			scheme = "https://"
		}
		endpoint = scheme + endpoint
	}
	return publicURL(endpoint, m.config.Bucket, m.config.Region, key)
}
