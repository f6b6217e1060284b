// Package service holds the API's use cases: issuing upload sessions, job
// intake, queries and the status update gateway.
package service

import (
	"context"
	"time"

	"github.com/cuongbtq/video-pipeline/internal/api/domain"
)

// Presigner issues presigned PUT URLs for a bucket
type Presigner interface {
	Bucket() string
	PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
}

// ObjectChecker reports whether an uploaded object exists
type ObjectChecker interface {
	Exists(ctx context.Context, key string) (bool, error)
}

// Publisher sends processing requests to the queue. Implementations retry
// internally and give up when ctx is done.
type Publisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// Broadcaster delivers progress events to live observers
type Broadcaster interface {
	Broadcast(ctx context.Context, ev domain.ProgressEvent) error
}

const messageContentType = "application/json"
