package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/video-pipeline/internal/api/storage"
	"github.com/cuongbtq/video-pipeline/internal/metrics"
)

// RedriveConfig controls the outbox sweep
type RedriveConfig struct {
	Interval time.Duration
	After    time.Duration
	Batch    int
}

// Redriver re-publishes Processing jobs whose processing request never made
// it onto the queue, for instance because intake answered PublishFailed.
type Redriver struct {
	repo    storage.Repository
	intake  *Intake
	config  RedriveConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewRedriver(repo storage.Repository, intake *Intake, config RedriveConfig, logger *slog.Logger, m *metrics.Metrics) *Redriver {
	if config.Interval <= 0 {
		config.Interval = 30 * time.Second
	}
	if config.After <= 0 {
		config.After = time.Minute
	}
	if config.Batch <= 0 {
		config.Batch = 50
	}

	return &Redriver{
		repo:    repo,
		intake:  intake,
		config:  config,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// Run sweeps every Interval until ctx is cancelled
func (r *Redriver) Run(ctx context.Context) {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	r.logger.Info("Redriver started",
		slog.Duration("interval", r.config.Interval),
		slog.Duration("after", r.config.After),
	)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Redriver stopped")
			return
		case <-ticker.C:
			if _, err := r.RedriveOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("Redrive sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// RedriveOnce publishes one batch and returns how many jobs were enqueued
func (r *Redriver) RedriveOnce(ctx context.Context) (int, error) {
	videos, err := r.repo.ListUnenqueued(ctx, r.now().Add(-r.config.After), r.config.Batch)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, v := range videos {
		objectKey, ok := objectKeyFromLocator(v.StorageLocator, r.intake.config.Bucket)
		if !ok {
			r.logger.Warn("Skipping job with foreign storage locator",
				slog.Int64("job_id", v.ID),
				slog.String("storage_locator", v.StorageLocator),
			)
			continue
		}

		if err := r.intake.publish(ctx, v.ID, objectKey); err != nil {
			r.logger.Warn("Redrive publish failed",
				slog.Int64("job_id", v.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		r.intake.markEnqueued(ctx, v.ID)
		r.metrics.Redriven()
		published++
		r.logger.Info("Job redriven", slog.Int64("job_id", v.ID))
	}

	return published, nil
}

func objectKeyFromLocator(locator, bucket string) (string, bool) {
	prefix := "s3://" + bucket + "/"
	if len(locator) <= len(prefix) || locator[:len(prefix)] != prefix {
		return "", false
	}
	return locator[len(prefix):], true
}
