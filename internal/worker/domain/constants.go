package domain

// Statuses the worker reports to the API
const (
	StatusProcessing = "Processing"
	StatusCompleted  = "Completed"
	StatusFailed     = "Failed"
)

// ThumbnailTag is attached to every job whose thumbnail was generated
const ThumbnailTag = "thumbnail"
