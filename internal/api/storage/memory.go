package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/video-pipeline/internal/api/domain"
	"github.com/cuongbtq/video-pipeline/internal/api/model"
	"github.com/lib/pq"
)

// MemoryStorage keeps videos in memory and is safe for concurrent use.
// It backs local runs with database.driver=memory and service tests.
type MemoryStorage struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*model.Video
	now    func() time.Time
}

// NewMemoryStorage constructs an empty MemoryStorage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		byID: make(map[int64]*model.Video),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStorage) CreateVideo(ctx context.Context, video *model.Video) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	now := m.now()
	video.ID = m.nextID
	video.CreatedAt = now
	video.UpdatedAt = now

	stored := *video
	m.byID[stored.ID] = &stored
	return nil
}

func (m *MemoryStorage) GetVideo(ctx context.Context, id int64) (*model.Video, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return clone(v), nil
}

func (m *MemoryStorage) ListVideos(ctx context.Context) ([]model.Video, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	videos := make([]model.Video, 0, len(m.byID))
	for _, v := range m.byID {
		videos = append(videos, *clone(v))
	}
	sort.Slice(videos, func(i, j int) bool {
		if !videos[i].CreatedAt.Equal(videos[j].CreatedAt) {
			return videos[i].CreatedAt.After(videos[j].CreatedAt)
		}
		return videos[i].ID > videos[j].ID
	})
	return videos, nil
}

func (m *MemoryStorage) ApplyTransition(ctx context.Context, t model.Transition) (*model.Video, domain.Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.Reject, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.byID[t.JobID]
	if !ok {
		return nil, domain.Reject, domain.ErrJobNotFound
	}

	from := domain.Status(v.Status)
	decision := domain.Decide(from, t.To)
	switch decision {
	case domain.Apply:
		v.Status = string(t.To)
		if t.ThumbnailURL != nil {
			v.ThumbnailURL = sql.NullString{String: *t.ThumbnailURL, Valid: true}
		}
		if t.Tags != nil {
			v.Tags = pq.StringArray(append([]string(nil), t.Tags...))
		}
		v.UpdatedAt = m.now()
		return clone(v), decision, nil
	case domain.Duplicate:
		return clone(v), decision, nil
	default:
		return clone(v), decision, fmt.Errorf("%w: %s -> %s", domain.ErrTransitionRejected, from, t.To)
	}
}

func (m *MemoryStorage) MarkEnqueued(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.byID[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	if !v.EnqueuedAt.Valid {
		v.EnqueuedAt = sql.NullTime{Time: m.now(), Valid: true}
	}
	return nil
}

func (m *MemoryStorage) ListUnenqueued(ctx context.Context, createdBefore time.Time, limit int) ([]model.Video, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var videos []model.Video
	for _, v := range m.byID {
		if v.Status == string(domain.StatusProcessing) && !v.EnqueuedAt.Valid && v.CreatedAt.Before(createdBefore) {
			videos = append(videos, *clone(v))
		}
	}
	sort.Slice(videos, func(i, j int) bool {
		if !videos[i].CreatedAt.Equal(videos[j].CreatedAt) {
			return videos[i].CreatedAt.Before(videos[j].CreatedAt)
		}
		return videos[i].ID < videos[j].ID
	})
	if limit > 0 && len(videos) > limit {
		videos = videos[:limit]
	}
	return videos, nil
}

func clone(v *model.Video) *model.Video {
	c := *v
	if v.Tags != nil {
		c.Tags = append(pq.StringArray(nil), v.Tags...)
	}
	return &c
}
