package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/cuongbtq/video-pipeline/shared/awsutil"
)

// S3Store is a Store on Amazon S3 or an S3-compatible endpoint
type S3Store struct {
	client    *s3.Client
	presigner *s3.PresignClient
	signer    *v4.Signer
	config    *Config
	logger    *slog.Logger
}

// NewS3Store creates an S3Store from the default AWS credential chain
func NewS3Store(ctx context.Context, config *Config, logger *slog.Logger) (*S3Store, error) {
	awsCfg, err := awsutil.Load(ctx, awsutil.Options{
		Region:          config.Region,
		AccessKeyID:     config.AccessKeyID,
		SecretAccessKey: config.SecretAccessKey,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("S3 object store initialized",
		slog.String("bucket", config.Bucket),
		slog.String("region", awsCfg.Region),
		slog.String("endpoint", config.Endpoint),
	)

	return NewS3StoreFromConfig(awsCfg, config, logger), nil
}

// NewS3StoreFromConfig creates an S3Store from a resolved aws.Config
func NewS3StoreFromConfig(awsCfg aws.Config, config *Config, logger *slog.Logger) *S3Store {
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if config.Endpoint != "" {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = true
		}
	})

	signer := v4.NewSigner(func(o *v4.SignerOptions) {
		o.DisableURIPathEscaping = true
	})

	return &S3Store{
		client:    client,
		presigner: s3.NewPresignClient(client),
		signer:    signer,
		config:    config,
		logger:    logger,
	}
}

func (s *S3Store) Bucket() string {
	return s.config.Bucket
}

// contentTypeSigner puts Content-Type back on the request before signing.
// The presign stack strips it, which would leave the upload's type unbound.
type contentTypeSigner struct {
	signer      *v4.Signer
	contentType string
}

func (c *contentTypeSigner) PresignHTTP(
	ctx context.Context, credentials aws.Credentials, r *http.Request,
	payloadHash, service, region string, signingTime time.Time,
	optFns ...func(*v4.SignerOptions),
) (string, http.Header, error) {
	r.Header.Set("Content-Type", c.contentType)
	return c.signer.PresignHTTP(ctx, credentials, r, payloadHash, service, region, signingTime, optFns...)
}

// PresignPut returns a URL allowing a single PUT of key with contentType.
// The uploader must send the same Content-Type header.
func (s *S3Store) PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.config.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(ttl), func(o *s3.PresignOptions) {
		o.Presigner = &contentTypeSigner{signer: s.signer, contentType: contentType}
	})
	if err != nil {
		return "", fmt.Errorf("presign put object: %w", err)
	}
	return req.URL, nil
}

func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}

	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, fmt.Errorf("head object: %w", err)
}

func (s *S3Store) Download(ctx context.Context, key, path string) error {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("get object %s: %w", key, err)
	}
	defer out.Body.Close()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	if _, err := io.Copy(f, out.Body); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func (s *S3Store) Upload(ctx context.Context, key, path, contentType string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.config.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) PublicURL(key string) string {
	return publicURL(s.config.Endpoint, s.config.Bucket, s.config.Region, key)
}
