package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cuongbtq/video-pipeline/internal/api/domain"
	"github.com/cuongbtq/video-pipeline/internal/api/model"
	"github.com/cuongbtq/video-pipeline/internal/api/storage"
)

type fakePresigner struct {
	bucket string
	err    error

	mu    sync.Mutex
	calls []presignCall
}

type presignCall struct {
	key, contentType string
	ttl              time.Duration
}

func (f *fakePresigner) Bucket() string { return f.bucket }

func (f *fakePresigner) PresignPut(_ context.Context, key, contentType string, ttl time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, presignCall{key, contentType, ttl})
	if f.err != nil {
		return "", f.err
	}
	return "https://" + f.bucket + ".s3.amazonaws.com/" + key + "?X-Amz-Signature=abc", nil
}

type fakePublisher struct {
	mu       sync.Mutex
	bodies   [][]byte
	failures int // fail this many calls before succeeding
	block    bool
}

func (f *fakePublisher) PublishWithRetry(ctx context.Context, body []byte, contentType string) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("broker unreachable")
	}
	f.bodies = append(f.bodies, append([]byte(nil), body...))
	return nil
}

func (f *fakePublisher) published() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.bodies...)
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []domain.ProgressEvent
	err    error
}

func (f *fakeBroadcaster) Broadcast(_ context.Context, ev domain.ProgressEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.err
}

func (f *fakeBroadcaster) received() []domain.ProgressEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ProgressEvent(nil), f.events...)
}

type fakeChecker struct {
	exists bool
	err    error
}

func (f fakeChecker) Exists(context.Context, string) (bool, error) {
	return f.exists, f.err
}

// failingRepo fails CreateVideo, everything else goes to the memory store
type failingRepo struct {
	*storage.MemoryStorage
}

func (failingRepo) CreateVideo(context.Context, *model.Video) error {
	return errors.New("connection refused")
}
