package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cuongbtq/video-pipeline/internal/api/dto"
	"github.com/cuongbtq/video-pipeline/internal/metrics"
	"github.com/cuongbtq/video-pipeline/internal/worker/domain"
	"github.com/cuongbtq/video-pipeline/shared/backoff"
)

// ObjectStore is the part of the object store the processor needs
type ObjectStore interface {
	Download(ctx context.Context, key, path string) error
	Upload(ctx context.Context, key, path, contentType string) error
	PublicURL(key string) string
}

// Processor turns one processing request into a thumbnail and reports each
// step back to the API
type Processor struct {
	reporter    Reporter
	store       ObjectStore
	thumbnailer Thumbnailer
	tempDir     string
	jobTimeout  time.Duration
	transfer    backoff.Policy
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// ProcessorConfig holds per-job limits
type ProcessorConfig struct {
	TempDir    string
	JobTimeout time.Duration
}

func NewProcessor(reporter Reporter, store ObjectStore, thumbnailer Thumbnailer, config ProcessorConfig, logger *slog.Logger, m *metrics.Metrics) *Processor {
	if config.JobTimeout <= 0 {
		config.JobTimeout = 5 * time.Minute
	}
	return &Processor{
		reporter:    reporter,
		store:       store,
		thumbnailer: thumbnailer,
		tempDir:     config.TempDir,
		jobTimeout:  config.JobTimeout,
		transfer:    backoff.Policy{Retries: 2, BaseDelay: 500 * time.Millisecond}.WithDefaults(),
		logger:      logger,
		metrics:     m,
	}
}

// Process runs one job. A nil error means the delivery can be acked: the job
// finished, or it was already terminal. A RetryableError means the API could
// not be told about the outcome and the delivery should be retried.
func (p *Processor) Process(ctx context.Context, msg *domain.JobMessage) error {
	start := time.Now()
	log := p.logger.With(slog.Int64("job_id", msg.JobID), slog.String("object_key", msg.ObjectKey))

	err := p.report(ctx, msg.JobID, domain.StatusProcessing, 0, nil, nil)
	switch {
	case errors.Is(err, domain.ErrJobTerminal):
		log.Info("Job already terminal, skipping duplicate delivery")
		p.metrics.WorkerJob("duplicate", time.Since(start))
		return nil
	case errors.Is(err, domain.ErrJobNotFound):
		p.metrics.WorkerJob("not_found", time.Since(start))
		return err
	case err != nil:
		p.metrics.WorkerJob("report_error", time.Since(start))
		return domain.NewRetryableError(fmt.Errorf("failed to report start: %w", err))
	}

	jobCtx, cancel := context.WithTimeout(ctx, p.jobTimeout)
	defer cancel()

	thumbKey, err := p.generate(jobCtx, log, msg)
	if err != nil {
		log.Error("Job execution failed", slog.String("error", err.Error()))
		return p.fail(ctx, msg, err, start)
	}

	thumbURL := p.store.PublicURL(thumbKey)
	err = p.report(context.WithoutCancel(ctx), msg.JobID, domain.StatusCompleted, 100, []string{domain.ThumbnailTag}, &thumbURL)
	switch {
	case err == nil, errors.Is(err, domain.ErrJobTerminal):
	case errors.Is(err, domain.ErrJobNotFound):
		p.metrics.WorkerJob("not_found", time.Since(start))
		return err
	default:
		p.metrics.WorkerJob("report_error", time.Since(start))
		return domain.NewRetryableError(fmt.Errorf("failed to report completion: %w", err))
	}

	p.metrics.WorkerJob("completed", time.Since(start))
	log.Info("Job completed successfully",
		slog.String("thumbnail_key", thumbKey),
		slog.Duration("took", time.Since(start)),
	)
	return nil
}

// generate downloads the video, extracts a frame and uploads it
func (p *Processor) generate(ctx context.Context, log *slog.Logger, msg *domain.JobMessage) (string, error) {
	dir, err := os.MkdirTemp(p.tempDir, fmt.Sprintf("job-%d-", msg.JobID))
	if err != nil {
		return "", fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "source"+filepath.Ext(msg.ObjectKey))
	if err := p.withRetry(ctx, func() error { return p.store.Download(ctx, msg.ObjectKey, input) }); err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	log.Debug("Video downloaded", slog.String("path", input))

	output := filepath.Join(dir, "thumbnail.jpg")
	if err := p.thumbnailer.Extract(ctx, input, output); err != nil {
		return "", fmt.Errorf("extract: %w", err)
	}

	if err := p.report(ctx, msg.JobID, domain.StatusProcessing, 50, nil, nil); err != nil {
		log.Warn("Failed to report progress", slog.String("error", err.Error()))
	}

	key := ThumbnailKey(msg.ObjectKey)
	if err := p.withRetry(ctx, func() error { return p.store.Upload(ctx, key, output, "image/jpeg") }); err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	return key, nil
}

// fail records the failure. Once the API knows, redelivery would only hit a
// terminal job, so the delivery is dropped rather than requeued.
func (p *Processor) fail(ctx context.Context, msg *domain.JobMessage, cause error, start time.Time) error {
	err := p.report(context.WithoutCancel(ctx), msg.JobID, domain.StatusFailed, 0, nil, nil)
	switch {
	case err == nil, errors.Is(err, domain.ErrJobTerminal), errors.Is(err, domain.ErrJobNotFound):
		p.metrics.WorkerJob("failed", time.Since(start))
		return fmt.Errorf("%w: %v", domain.ErrJobFailed, cause)
	default:
		p.metrics.WorkerJob("report_error", time.Since(start))
		return domain.NewRetryableError(fmt.Errorf("failed to report failure (%v): %w", cause, err))
	}
}

func (p *Processor) report(ctx context.Context, jobID int64, status string, percent int, tags []string, thumbnailURL *string) error {
	return p.reporter.Report(ctx, dto.ProgressRequest{
		JobID:        jobID,
		Status:       status,
		Percent:      &percent,
		Tags:         tags,
		ThumbnailURL: thumbnailURL,
	})
}

func (p *Processor) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= p.transfer.Retries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt < p.transfer.Retries {
			if sleepErr := backoff.Sleep(ctx, p.transfer.Delay(attempt)); sleepErr != nil {
				return err
			}
		}
	}
	return err
}
