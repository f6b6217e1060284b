package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/video-pipeline/internal/worker/domain"
	"github.com/google/uuid"
)

// JobProcessor handles one job message
type JobProcessor interface {
	Process(ctx context.Context, msg *domain.JobMessage) error
}

// Config holds worker configuration
type Config struct {
	Logger          *slog.Logger
	Source          Source
	Processor       JobProcessor
	Concurrency     int
	ShutdownTimeout time.Duration
}

// Worker pulls processing requests from a Source and runs them on a pool
type Worker struct {
	logger          *slog.Logger
	source          Source
	processor       JobProcessor
	concurrency     int
	shutdownTimeout time.Duration
	workerID        string
	jobsChan        chan *domain.JobMessage
	wg              sync.WaitGroup
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	shutdown := cfg.ShutdownTimeout
	if shutdown <= 0 {
		shutdown = 30 * time.Second
	}

	return &Worker{
		logger:          cfg.Logger,
		source:          cfg.Source,
		processor:       cfg.Processor,
		concurrency:     concurrency,
		shutdownTimeout: shutdown,
		workerID:        "worker-" + uuid.NewString()[:8],
		jobsChan:        make(chan *domain.JobMessage),
	}
}

// Start runs until ctx is cancelled, then lets in-flight jobs finish for up
// to the shutdown timeout before cancelling them
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
	)

	// in-flight jobs outlive ctx until the grace period ends
	jobCtx, cancelJobs := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelJobs()

	w.spawnWorkerPool(jobCtx)

	sourceErr := w.source.Run(ctx, w.jobsChan)
	close(w.jobsChan)
	if sourceErr != nil && ctx.Err() == nil {
		w.logger.Error("Message source stopped", slog.String("error", sourceErr.Error()))
	}

	if err := w.stop(cancelJobs); err != nil {
		return err
	}
	if sourceErr != nil && ctx.Err() == nil {
		return fmt.Errorf("message source: %w", sourceErr)
	}
	return nil
}

func (w *Worker) stop(cancelJobs context.CancelFunc) error {
	w.logger.Info("Stopping worker...", slog.Duration("grace_period", w.shutdownTimeout))

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("Worker stopped")
		return nil
	case <-time.After(w.shutdownTimeout):
		cancelJobs()
		<-done
		return errors.New("worker shutdown timed out; in-flight jobs were cancelled")
	}
}
