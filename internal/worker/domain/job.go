package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// JobMessage is one processing request taken off the queue. Ack and Nack
// settle the underlying delivery, whichever broker it came from.
type JobMessage struct {
	JobID     int64  `json:"jobId"`
	ObjectKey string `json:"objectKey"`

	Ack  func(ctx context.Context) error               `json:"-"`
	Nack func(ctx context.Context, requeue bool) error `json:"-"`
}

// ParseJobMessage decodes and validates a queue message body
func ParseJobMessage(body []byte) (*JobMessage, error) {
	var msg JobMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if msg.JobID <= 0 {
		return nil, fmt.Errorf("%w: jobId must be positive", ErrInvalidPayload)
	}
	if strings.TrimSpace(msg.ObjectKey) == "" || strings.Contains(msg.ObjectKey, "..") {
		return nil, fmt.Errorf("%w: bad objectKey %q", ErrInvalidPayload, msg.ObjectKey)
	}
	return &msg, nil
}
