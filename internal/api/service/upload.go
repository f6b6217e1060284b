package service

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/cuongbtq/video-pipeline/internal/api/domain"
	"github.com/cuongbtq/video-pipeline/internal/metrics"
	"github.com/google/uuid"
)

const maxFileNameLength = 200

// UploadConfig controls the presigned URLs handed to browsers
type UploadConfig struct {
	KeyPrefix   string
	URLExpiry   time.Duration
	ContentType string
}

// UploadSession is what the browser needs to PUT a file directly to storage
type UploadSession struct {
	UploadURL string
	ObjectKey string
	ExpiresAt time.Time
}

// UploadIssuer hands out presigned upload URLs. It never touches the job store.
type UploadIssuer struct {
	presigner Presigner
	config    UploadConfig
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewUploadIssuer fails with ErrConfiguration when the store has no bucket
func NewUploadIssuer(presigner Presigner, config UploadConfig, logger *slog.Logger, m *metrics.Metrics) (*UploadIssuer, error) {
	if presigner == nil || strings.TrimSpace(presigner.Bucket()) == "" {
		return nil, fmt.Errorf("%w: storage bucket is not configured", domain.ErrConfiguration)
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "videos/"
	}
	if config.URLExpiry <= 0 {
		config.URLExpiry = 15 * time.Minute
	}
	if config.ContentType == "" {
		config.ContentType = "application/octet-stream"
	}

	return &UploadIssuer{
		presigner: presigner,
		config:    config,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}, nil
}

// KeyPrefix is the prefix every issued key starts with
func (u *UploadIssuer) KeyPrefix() string {
	return u.config.KeyPrefix
}

// Init reserves a unique object key for fileName and presigns a PUT to it
func (u *UploadIssuer) Init(ctx context.Context, fileName string) (*UploadSession, error) {
	if strings.TrimSpace(fileName) == "" {
		return nil, domain.InvalidInput("fileName is required")
	}

	safe := SanitizeFileName(fileName)
	if safe == "" {
		return nil, domain.InvalidInput("fileName has no usable characters")
	}

	key := u.config.KeyPrefix + strings.ReplaceAll(uuid.NewString(), "-", "") + "_" + safe
	issuedAt := u.now()

	url, err := u.presigner.PresignPut(ctx, key, u.config.ContentType, u.config.URLExpiry)
	if err != nil {
		return nil, fmt.Errorf("failed to presign upload: %w", err)
	}

	u.metrics.UploadIssued()
	u.logger.Info("Upload session issued",
		slog.String("object_key", key),
		slog.Duration("expires_in", u.config.URLExpiry),
	)

	return &UploadSession{
		UploadURL: url,
		ObjectKey: key,
		ExpiresAt: issuedAt.Add(u.config.URLExpiry).UTC(),
	}, nil
}

// SanitizeFileName keeps the base name, maps anything outside
// [A-Za-z0-9._-] to '_' and caps the result at 200 characters. A result made
// only of dots and underscores is treated as empty.
func SanitizeFileName(name string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if base == "." || base == "/" || base == ".." {
		return ""
	}

	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
		if b.Len() >= maxFileNameLength {
			break
		}
	}

	out := b.String()
	if strings.Trim(out, "._") == "" {
		return ""
	}
	return out
}
