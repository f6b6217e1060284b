package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/video-pipeline/internal/api/domain"
	"github.com/cuongbtq/video-pipeline/internal/api/model"
	"github.com/cuongbtq/video-pipeline/internal/api/storage"
	"github.com/cuongbtq/video-pipeline/internal/metrics"
)

// IntakeConfig bounds the two halves of Complete separately
type IntakeConfig struct {
	Bucket         string
	KeyPrefix      string
	PersistTimeout time.Duration
	PublishTimeout time.Duration
	VerifyObject   bool
}

// Intake records finished uploads and schedules their processing
type Intake struct {
	repo      storage.Repository
	publisher Publisher
	objects   ObjectChecker
	config    IntakeConfig
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// NewIntake creates an Intake. objects may be nil unless VerifyObject is set.
func NewIntake(repo storage.Repository, publisher Publisher, objects ObjectChecker, config IntakeConfig, logger *slog.Logger, m *metrics.Metrics) (*Intake, error) {
	if strings.TrimSpace(config.Bucket) == "" {
		return nil, fmt.Errorf("%w: storage bucket is not configured", domain.ErrConfiguration)
	}
	if config.VerifyObject && objects == nil {
		return nil, fmt.Errorf("%w: object verification needs an object store", domain.ErrConfiguration)
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "videos/"
	}
	if config.PersistTimeout <= 0 {
		config.PersistTimeout = 5 * time.Second
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = 5 * time.Second
	}

	return &Intake{
		repo:      repo,
		publisher: publisher,
		objects:   objects,
		config:    config,
		logger:    logger,
		metrics:   m,
	}, nil
}

// Complete persists a Processing job for an uploaded object, then publishes
// its processing request. The job is never published before it is stored.
// A *domain.PublishError means the job exists but is not yet enqueued.
func (i *Intake) Complete(ctx context.Context, fileName, objectKey string) (*domain.Job, error) {
	fileName = strings.TrimSpace(fileName)
	objectKey = strings.TrimSpace(objectKey)

	if err := i.validate(fileName, objectKey); err != nil {
		i.metrics.Intake("invalid")
		return nil, err
	}

	if i.config.VerifyObject {
		exists, err := i.objects.Exists(ctx, objectKey)
		if err != nil {
			i.metrics.Intake("invalid")
			return nil, fmt.Errorf("failed to verify uploaded object: %w", err)
		}
		if !exists {
			i.metrics.Intake("invalid")
			return nil, domain.InvalidInput("uploaded object not found")
		}
	}

	video := &model.Video{
		FileName:       fileName,
		Status:         string(domain.StatusProcessing),
		StorageLocator: domain.StorageLocator(i.config.Bucket, objectKey),
	}

	persistCtx, cancel := context.WithTimeout(ctx, i.config.PersistTimeout)
	err := i.repo.CreateVideo(persistCtx, video)
	cancel()
	if err != nil {
		i.metrics.Intake("persist_failed")
		i.logger.Error("Failed to persist job",
			slog.String("object_key", objectKey),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistFailed, err)
	}

	if err := i.publish(ctx, video.ID, objectKey); err != nil {
		i.metrics.Intake("publish_failed")
		i.logger.Error("Failed to publish processing request",
			slog.Int64("job_id", video.ID),
			slog.String("error", err.Error()),
		)
		return video.ToDomain(), &domain.PublishError{JobID: video.ID, Err: err}
	}

	i.markEnqueued(ctx, video.ID)
	i.metrics.Intake("ok")
	i.logger.Info("Job accepted",
		slog.Int64("job_id", video.ID),
		slog.String("object_key", objectKey),
	)

	return video.ToDomain(), nil
}

func (i *Intake) validate(fileName, objectKey string) error {
	if fileName == "" {
		return domain.InvalidInput("fileName is required")
	}
	if objectKey == "" {
		return domain.InvalidInput("objectKey is required")
	}
	if !strings.HasPrefix(objectKey, i.config.KeyPrefix) || len(objectKey) == len(i.config.KeyPrefix) {
		return domain.InvalidInput("objectKey was not issued by this service")
	}
	if strings.Contains(objectKey, "..") {
		return domain.InvalidInput("objectKey must not contain '..'")
	}
	return nil
}

// publish runs under its own deadline, independent of the persist step
func (i *Intake) publish(ctx context.Context, jobID int64, objectKey string) error {
	body, err := json.Marshal(domain.ProcessingRequest{JobID: jobID, ObjectKey: objectKey})
	if err != nil {
		return fmt.Errorf("failed to marshal processing request: %w", err)
	}

	publishCtx, cancel := context.WithTimeout(ctx, i.config.PublishTimeout)
	defer cancel()

	start := time.Now()
	err = i.publisher.PublishWithRetry(publishCtx, body, messageContentType)
	i.metrics.ObservePublish(time.Since(start))
	if err != nil {
		if errors.Is(publishCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("publish timed out after %s: %w", i.config.PublishTimeout, err)
		}
		return err
	}
	return nil
}

// markEnqueued failures are only logged: the redrive may publish the job a
// second time, which the worker tolerates.
func (i *Intake) markEnqueued(ctx context.Context, jobID int64) {
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), i.config.PersistTimeout)
	defer cancel()

	if err := i.repo.MarkEnqueued(markCtx, jobID); err != nil {
		i.logger.Warn("Failed to mark job enqueued",
			slog.Int64("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}
