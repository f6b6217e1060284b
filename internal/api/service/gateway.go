package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cuongbtq/video-pipeline/internal/api/domain"
	"github.com/cuongbtq/video-pipeline/internal/api/model"
	"github.com/cuongbtq/video-pipeline/internal/api/storage"
	"github.com/cuongbtq/video-pipeline/internal/metrics"
)

// ProgressUpdate is one status report from a worker
type ProgressUpdate struct {
	JobID        int64
	Status       string
	Percent      *int
	Tags         []string
	ThumbnailURL *string
}

// ProgressResult is the job after the update and what happened to it
type ProgressResult struct {
	Job     *domain.Job
	Outcome domain.Decision
}

// ProgressGateway applies worker reports to the job store and broadcasts
// every applied change. Callers authenticate before reaching it.
type ProgressGateway struct {
	repo        storage.Repository
	broadcaster Broadcaster
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

func NewProgressGateway(repo storage.Repository, broadcaster Broadcaster, logger *slog.Logger, m *metrics.Metrics) *ProgressGateway {
	return &ProgressGateway{
		repo:        repo,
		broadcaster: broadcaster,
		logger:      logger,
		metrics:     m,
	}
}

// Report validates the update and runs it through the transition table.
// Duplicates succeed without persisting or broadcasting anything.
func (g *ProgressGateway) Report(ctx context.Context, u ProgressUpdate) (*ProgressResult, error) {
	to, err := g.validate(u)
	if err != nil {
		g.metrics.ProgressUpdate("invalid")
		return nil, err
	}

	t := model.Transition{JobID: u.JobID, To: to}
	if u.Tags != nil {
		t.Tags = cleanTags(u.Tags)
	}
	if to == domain.StatusCompleted && u.ThumbnailURL != nil && strings.TrimSpace(*u.ThumbnailURL) != "" {
		thumb := strings.TrimSpace(*u.ThumbnailURL)
		t.ThumbnailURL = &thumb
	}

	video, decision, err := g.repo.ApplyTransition(ctx, t)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrJobNotFound):
			g.metrics.ProgressUpdate("not_found")
			g.logger.Warn("Progress for unknown job", slog.Int64("job_id", u.JobID), slog.String("status", string(to)))
		case errors.Is(err, domain.ErrTransitionRejected):
			g.metrics.ProgressUpdate("rejected")
		default:
			g.metrics.ProgressUpdate("error")
		}
		return nil, err
	}

	job := video.ToDomain()
	g.metrics.ProgressUpdate(decision.String())

	if decision != domain.Apply {
		g.logger.Info("Duplicate progress ignored",
			slog.Int64("job_id", u.JobID),
			slog.String("status", string(to)),
		)
		return &ProgressResult{Job: job, Outcome: decision}, nil
	}

	g.logger.Info("Job status updated",
		slog.Int64("job_id", job.ID),
		slog.String("status", string(job.Status)),
	)

	ev := domain.ProgressEvent{
		JobID:        job.ID,
		Status:       job.Status,
		Percent:      u.Percent,
		Tags:         job.Tags,
		ThumbnailURL: job.ThumbnailURL,
	}
	// the change is already durable; a failed broadcast only costs observers a refresh
	if err := g.broadcaster.Broadcast(ctx, ev); err != nil {
		g.logger.Warn("Failed to broadcast progress",
			slog.Int64("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}

	return &ProgressResult{Job: job, Outcome: decision}, nil
}

func (g *ProgressGateway) validate(u ProgressUpdate) (domain.Status, error) {
	if u.JobID <= 0 {
		return "", domain.InvalidInput("jobId must be a positive integer")
	}
	to, err := domain.ParseStatus(u.Status)
	if err != nil {
		return "", err
	}
	if u.Percent != nil && (*u.Percent < 0 || *u.Percent > 100) {
		return "", domain.InvalidInput(fmt.Sprintf("percent must be between 0 and 100, got %d", *u.Percent))
	}
	return to, nil
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}
