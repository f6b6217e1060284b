package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/video-pipeline/internal/api/domain"
	"github.com/cuongbtq/video-pipeline/internal/api/model"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Repository is the job record store
type Repository interface {
	CreateVideo(ctx context.Context, video *model.Video) error
	GetVideo(ctx context.Context, id int64) (*model.Video, error)
	ListVideos(ctx context.Context) ([]model.Video, error)
	// ApplyTransition updates the row only if the transition table allows it.
	// The returned video is the row after the call, whatever the decision.
	ApplyTransition(ctx context.Context, t model.Transition) (*model.Video, domain.Decision, error)
	MarkEnqueued(ctx context.Context, id int64) error
	ListUnenqueued(ctx context.Context, createdBefore time.Time, limit int) ([]model.Video, error)
}

const videoColumns = `id, file_name, status, storage_locator, thumbnail_url, tags, enqueued_at, created_at, updated_at`

// Storage is the PostgreSQL Repository
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

func (s *Storage) CreateVideo(ctx context.Context, video *model.Video) error {
	query := `
		INSERT INTO videos (file_name, status, storage_locator)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`

	err := s.db.QueryRowxContext(ctx, query, video.FileName, video.Status, video.StorageLocator).
		Scan(&video.ID, &video.CreatedAt, &video.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create video: %w", err)
	}

	return nil
}

func (s *Storage) GetVideo(ctx context.Context, id int64) (*model.Video, error) {
	var video model.Video
	query := `SELECT ` + videoColumns + ` FROM videos WHERE id = $1`

	err := s.db.GetContext(ctx, &video, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get video: %w", err)
	}

	return &video, nil
}

func (s *Storage) ListVideos(ctx context.Context) ([]model.Video, error) {
	videos := []model.Video{}
	query := `SELECT ` + videoColumns + ` FROM videos ORDER BY created_at DESC, id DESC`

	if err := s.db.SelectContext(ctx, &videos, query); err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}

	return videos, nil
}

// ApplyTransition performs the guarded update in one statement, so updates
// of the same row serialize on the row lock and different rows never wait on
// each other. When the guard does not match, the row is re-read to tell a
// duplicate delivery from a rejected one.
func (s *Storage) ApplyTransition(ctx context.Context, t model.Transition) (*model.Video, domain.Decision, error) {
	query := `
		UPDATE videos
		SET status = $2,
		    thumbnail_url = COALESCE($3, thumbnail_url),
		    tags = COALESCE($4, tags),
		    updated_at = NOW()
		WHERE id = $1
		  AND status = ANY($5)
		RETURNING ` + videoColumns

	var thumbnail sql.NullString
	if t.ThumbnailURL != nil {
		thumbnail = sql.NullString{String: *t.ThumbnailURL, Valid: true}
	}
	var tags any
	if t.Tags != nil {
		tags = pq.StringArray(t.Tags)
	}
	sources := make([]string, 0, 3)
	for _, st := range domain.SourcesFor(t.To) {
		sources = append(sources, string(st))
	}

	var video model.Video
	err := s.db.QueryRowxContext(ctx, query, t.JobID, string(t.To), thumbnail, tags, pq.StringArray(sources)).StructScan(&video)
	if err == nil {
		return &video, domain.Apply, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, domain.Reject, fmt.Errorf("failed to update video status: %w", err)
	}

	current, err := s.GetVideo(ctx, t.JobID)
	if err != nil {
		return nil, domain.Reject, err
	}

	from := domain.Status(current.Status)
	switch domain.Decide(from, t.To) {
	case domain.Duplicate:
		return current, domain.Duplicate, nil
	case domain.Apply:
		// the guard matched nothing yet the table allows it: the row moved
		// between the update and the read
		return current, domain.Reject, fmt.Errorf("%w: job %d changed concurrently", domain.ErrTransitionRejected, t.JobID)
	default:
		s.logger.Warn("Status transition rejected",
			slog.Int64("job_id", t.JobID),
			slog.String("from", string(from)),
			slog.String("to", string(t.To)),
		)
		return current, domain.Reject, fmt.Errorf("%w: %s -> %s", domain.ErrTransitionRejected, from, t.To)
	}
}

func (s *Storage) MarkEnqueued(ctx context.Context, id int64) error {
	query := `UPDATE videos SET enqueued_at = NOW() WHERE id = $1 AND enqueued_at IS NULL`

	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to mark video enqueued: %w", err)
	}

	return nil
}

// ListUnenqueued returns Processing jobs whose processing request was never
// published, oldest first
func (s *Storage) ListUnenqueued(ctx context.Context, createdBefore time.Time, limit int) ([]model.Video, error) {
	videos := []model.Video{}
	query := `
		SELECT ` + videoColumns + `
		FROM videos
		WHERE status = $1
		  AND enqueued_at IS NULL
		  AND created_at < $2
		ORDER BY created_at ASC, id ASC
		LIMIT $3
	`

	if err := s.db.SelectContext(ctx, &videos, query, string(domain.StatusProcessing), createdBefore, limit); err != nil {
		return nil, fmt.Errorf("failed to list unenqueued videos: %w", err)
	}

	return videos, nil
}
