package service

import (
	"context"

	"github.com/cuongbtq/video-pipeline/internal/api/domain"
	"github.com/cuongbtq/video-pipeline/internal/api/storage"
)

// VideoQuery reads jobs for the listing page
type VideoQuery struct {
	repo storage.Repository
}

func NewVideoQuery(repo storage.Repository) *VideoQuery {
	return &VideoQuery{repo: repo}
}

// List returns every job, newest first
func (q *VideoQuery) List(ctx context.Context) ([]*domain.Job, error) {
	videos, err := q.repo.ListVideos(ctx)
	if err != nil {
		return nil, err
	}

	jobs := make([]*domain.Job, len(videos))
	for i := range videos {
		jobs[i] = videos[i].ToDomain()
	}
	return jobs, nil
}

func (q *VideoQuery) Get(ctx context.Context, id int64) (*domain.Job, error) {
	if id <= 0 {
		return nil, domain.InvalidInput("id must be a positive integer")
	}

	video, err := q.repo.GetVideo(ctx, id)
	if err != nil {
		return nil, err
	}
	return video.ToDomain(), nil
}
