package dto

import "time"

type InitUploadRequest struct {
	FileName string `json:"fileName" binding:"required"`
}

type InitUploadResponse struct {
	UploadURL string    `json:"uploadUrl"`
	ObjectKey string    `json:"objectKey"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type CompleteUploadRequest struct {
	FileName  string `json:"fileName" binding:"required"`
	ObjectKey string `json:"objectKey" binding:"required"`
}

type CompleteUploadResponse struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

// ProgressRequest is posted by the worker to /internal/progress
type ProgressRequest struct {
	JobID        int64    `json:"jobId" binding:"required"`
	Status       string   `json:"status" binding:"required"`
	Percent      *int     `json:"percent,omitempty" binding:"omitempty,min=0,max=100"`
	Tags         []string `json:"tags,omitempty"`
	ThumbnailURL *string  `json:"thumbnailUrl,omitempty"`
}

type ProgressResponse struct {
	JobID   int64  `json:"jobId"`
	Status  string `json:"status"`
	Outcome string `json:"outcome"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	ID    int64  `json:"id,omitempty"`
}
