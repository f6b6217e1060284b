package worker

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/video-pipeline/internal/api/dto"
	"github.com/cuongbtq/video-pipeline/internal/worker/domain"
	"github.com/cuongbtq/video-pipeline/shared/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReporter struct {
	mu      sync.Mutex
	reports []dto.ProgressRequest
	// errFor returns the error for a report; nil means accepted
	errFor func(req dto.ProgressRequest) error
}

func (f *fakeReporter) Report(_ context.Context, req dto.ProgressRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, req)
	if f.errFor != nil {
		return f.errFor(req)
	}
	return nil
}

func (f *fakeReporter) statuses() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.reports))
	for i, r := range f.reports {
		out[i] = r.Status
	}
	return out
}

type fakeStore struct {
	mu          sync.Mutex
	downloadErr error
	uploadErr   error
	downloads   int
	uploads     map[string]string // key -> content type
}

func (f *fakeStore) Download(_ context.Context, _, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads++
	if f.downloadErr != nil {
		return f.downloadErr
	}
	return os.WriteFile(path, []byte("video"), 0o600)
}

func (f *fakeStore) Upload(_ context.Context, key, path, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return f.uploadErr
	}
	if _, err := os.Stat(path); err != nil {
		return err
	}
	if f.uploads == nil {
		f.uploads = make(map[string]string)
	}
	f.uploads[key] = contentType
	return nil
}

func (f *fakeStore) PublicURL(key string) string {
	return "http://localhost:4566/video-uploads/" + key
}

type fakeThumbnailer struct {
	err error
}

func (f fakeThumbnailer) Extract(_ context.Context, input, output string) error {
	if f.err != nil {
		return f.err
	}
	if _, err := os.Stat(input); err != nil {
		return err
	}
	return os.WriteFile(output, []byte("jpeg"), 0o600)
}

func newTestProcessor(t *testing.T, r Reporter, s ObjectStore, th Thumbnailer) *Processor {
	t.Helper()
	p := NewProcessor(r, s, th, ProcessorConfig{TempDir: t.TempDir(), JobTimeout: time.Second}, logger.NewDiscard(), nil)
	p.transfer.BaseDelay = time.Millisecond
	return p
}

func jobMessage() *domain.JobMessage {
	return &domain.JobMessage{JobID: 1, ObjectKey: "videos/abc_a.mp4"}
}

func TestProcessor_Success(t *testing.T) {
	reporter := &fakeReporter{}
	store := &fakeStore{}
	p := newTestProcessor(t, reporter, store, fakeThumbnailer{})

	require.NoError(t, p.Process(context.Background(), jobMessage()))

	assert.Equal(t, []string{"Processing", "Processing", "Completed"}, reporter.statuses())
	assert.Equal(t, map[string]string{"videos/abc_a.jpg": "image/jpeg"}, store.uploads)

	final := reporter.reports[2]
	assert.Equal(t, int64(1), final.JobID)
	assert.Equal(t, 100, *final.Percent)
	assert.Equal(t, []string{"thumbnail"}, final.Tags)
	require.NotNil(t, final.ThumbnailURL)
	assert.Equal(t, "http://localhost:4566/video-uploads/videos/abc_a.jpg", *final.ThumbnailURL)
	assert.Equal(t, 0, *reporter.reports[0].Percent)
}

func TestProcessor_DuplicateDeliveryOfTerminalJob(t *testing.T) {
	reporter := &fakeReporter{errFor: func(dto.ProgressRequest) error { return domain.ErrJobTerminal }}
	store := &fakeStore{}
	p := newTestProcessor(t, reporter, store, fakeThumbnailer{})

	require.NoError(t, p.Process(context.Background(), jobMessage()))

	assert.Equal(t, []string{"Processing"}, reporter.statuses())
	assert.Zero(t, store.downloads, "terminal jobs are not reprocessed")
}

func TestProcessor_Errors(t *testing.T) {
	unreachable := errors.New("dial tcp: connection refused")

	tests := []struct {
		name         string
		errFor       func(req dto.ProgressRequest) error
		store        *fakeStore
		thumbnailer  fakeThumbnailer
		wantStatuses []string
		wantRequeue  bool
		wantIs       error
	}{
		{
			name:         "unknown job",
			errFor:       func(dto.ProgressRequest) error { return domain.ErrJobNotFound },
			store:        &fakeStore{},
			wantStatuses: []string{"Processing"},
			wantIs:       domain.ErrJobNotFound,
		},
		{
			name:         "api unreachable at start",
			errFor:       func(dto.ProgressRequest) error { return unreachable },
			store:        &fakeStore{},
			wantStatuses: []string{"Processing"},
			wantRequeue:  true,
		},
		{
			name:         "download failure is reported",
			store:        &fakeStore{downloadErr: errors.New("NoSuchKey")},
			wantStatuses: []string{"Processing", "Failed"},
			wantIs:       domain.ErrJobFailed,
		},
		{
			name:         "extraction failure is reported",
			store:        &fakeStore{},
			thumbnailer:  fakeThumbnailer{err: errors.New("moov atom not found")},
			wantStatuses: []string{"Processing", "Failed"},
			wantIs:       domain.ErrJobFailed,
		},
		{
			name:         "upload failure is reported",
			store:        &fakeStore{uploadErr: errors.New("AccessDenied")},
			wantStatuses: []string{"Processing", "Processing", "Failed"},
			wantIs:       domain.ErrJobFailed,
		},
		{
			name: "failure that cannot be reported is requeued",
			errFor: func(req dto.ProgressRequest) error {
				if req.Status == "Failed" {
					return unreachable
				}
				return nil
			},
			store:        &fakeStore{downloadErr: errors.New("NoSuchKey")},
			wantStatuses: []string{"Processing", "Failed"},
			wantRequeue:  true,
		},
		{
			name: "completion that cannot be reported is requeued",
			errFor: func(req dto.ProgressRequest) error {
				if req.Status == "Completed" {
					return unreachable
				}
				return nil
			},
			store:        &fakeStore{},
			wantStatuses: []string{"Processing", "Processing", "Completed"},
			wantRequeue:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reporter := &fakeReporter{errFor: tt.errFor}
			p := newTestProcessor(t, reporter, tt.store, tt.thumbnailer)

			err := p.Process(context.Background(), jobMessage())

			require.Error(t, err)
			assert.Equal(t, tt.wantStatuses, reporter.statuses())
			assert.Equal(t, tt.wantRequeue, shouldRequeue(err))
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}
		})
	}
}

func TestProcessor_RetriesTransfers(t *testing.T) {
	store := &flakyStore{fakeStore: &fakeStore{}, failures: 2}
	reporter := &fakeReporter{}
	p := newTestProcessor(t, reporter, store, fakeThumbnailer{})

	require.NoError(t, p.Process(context.Background(), jobMessage()))
	assert.Equal(t, 3, store.calls)
}

// flakyStore fails the first downloads
type flakyStore struct {
	*fakeStore
	failures int
	calls    int
}

func (f *flakyStore) Download(ctx context.Context, key, path string) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("connection reset by peer")
	}
	return f.fakeStore.Download(ctx, key, path)
}
