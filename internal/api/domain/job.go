package domain

import "time"

// Job is one uploaded video's lifecycle record
type Job struct {
	ID             int64     `json:"id"`
	FileName       string    `json:"fileName"`
	Status         Status    `json:"status"`
	StorageLocator string    `json:"storageLocator"`
	ThumbnailURL   *string   `json:"thumbnailUrl"`
	Tags           []string  `json:"tags"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ProcessingRequest is the queue message published by intake
type ProcessingRequest struct {
	JobID     int64  `json:"jobId"`
	ObjectKey string `json:"objectKey"`
}

// ProgressEvent is pushed to live observers after an applied transition
type ProgressEvent struct {
	JobID        int64    `json:"jobId"`
	Status       Status   `json:"status"`
	Percent      *int     `json:"percent"`
	Tags         []string `json:"tags"`
	ThumbnailURL *string  `json:"thumbnailUrl"`
}

// StorageLocator builds the s3:// URI recorded on the job
func StorageLocator(bucket, key string) string {
	return "s3://" + bucket + "/" + key
}
