package model

import (
	"database/sql"
	"time"

	"github.com/cuongbtq/video-pipeline/internal/api/domain"
	"github.com/lib/pq"
)

// Video is a row of the videos table
type Video struct {
	ID             int64          `db:"id"`
	FileName       string         `db:"file_name"`
	Status         string         `db:"status"`
	StorageLocator string         `db:"storage_locator"`
	ThumbnailURL   sql.NullString `db:"thumbnail_url"`
	Tags           pq.StringArray `db:"tags"`
	EnqueuedAt     sql.NullTime   `db:"enqueued_at"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

// ToDomain converts the row to the API representation
func (v *Video) ToDomain() *domain.Job {
	job := &domain.Job{
		ID:             v.ID,
		FileName:       v.FileName,
		Status:         domain.Status(v.Status),
		StorageLocator: v.StorageLocator,
		CreatedAt:      v.CreatedAt,
	}
	if v.ThumbnailURL.Valid {
		u := v.ThumbnailURL.String
		job.ThumbnailURL = &u
	}
	if len(v.Tags) > 0 {
		job.Tags = append([]string(nil), v.Tags...)
	}
	return job
}

// Transition describes a status update to apply to one row
type Transition struct {
	JobID        int64
	To           domain.Status
	Tags         []string // nil keeps the stored tags
	ThumbnailURL *string  // nil keeps the stored thumbnail
}
