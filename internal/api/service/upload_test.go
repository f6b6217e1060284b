package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/cuongbtq/video-pipeline/internal/api/domain"
	"github.com/cuongbtq/video-pipeline/shared/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var keyPattern = regexp.MustCompile(`^videos/[0-9a-f]{32}_[A-Za-z0-9._-]+$`)

func newIssuer(t *testing.T, p *fakePresigner) *UploadIssuer {
	t.Helper()
	issuer, err := NewUploadIssuer(p, UploadConfig{}, logger.NewDiscard(), nil)
	require.NoError(t, err)
	return issuer
}

func TestNewUploadIssuer_RequiresBucket(t *testing.T) {
	_, err := NewUploadIssuer(&fakePresigner{bucket: " "}, UploadConfig{}, logger.NewDiscard(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = NewUploadIssuer(nil, UploadConfig{}, logger.NewDiscard(), nil)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestUploadIssuer_Init(t *testing.T) {
	p := &fakePresigner{bucket: "video-uploads"}
	issuer := newIssuer(t, p)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	issuer.now = func() time.Time { return now }

	session, err := issuer.Init(context.Background(), "holiday clip.mp4")
	require.NoError(t, err)

	assert.Regexp(t, keyPattern, session.ObjectKey)
	assert.True(t, strings.HasSuffix(session.ObjectKey, "_holiday_clip.mp4"))
	assert.Contains(t, session.UploadURL, session.ObjectKey)
	assert.Equal(t, now.Add(15*time.Minute), session.ExpiresAt)

	require.Len(t, p.calls, 1)
	assert.Equal(t, session.ObjectKey, p.calls[0].key)
	assert.Equal(t, "application/octet-stream", p.calls[0].contentType)
	assert.Equal(t, 15*time.Minute, p.calls[0].ttl)
}

func TestUploadIssuer_InitKeysAreUnique(t *testing.T) {
	issuer := newIssuer(t, &fakePresigner{bucket: "b"})

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		session, err := issuer.Init(context.Background(), "a.mp4")
		require.NoError(t, err)
		assert.False(t, seen[session.ObjectKey], "duplicate key %s", session.ObjectKey)
		seen[session.ObjectKey] = true
	}
}

func TestUploadIssuer_InitErrors(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		presign  error
		wantIs   error
	}{
		{name: "empty", fileName: "", wantIs: domain.ErrInvalidInput},
		{name: "blank", fileName: "   ", wantIs: domain.ErrInvalidInput},
		{name: "nothing usable", fileName: "???", wantIs: domain.ErrInvalidInput},
		{name: "dot dot", fileName: "..", wantIs: domain.ErrInvalidInput},
		{name: "presign failure", fileName: "a.mp4", presign: errors.New("no credentials")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePresigner{bucket: "b", err: tt.presign}
			_, err := newIssuer(t, p).Init(context.Background(), tt.fileName)
			require.Error(t, err)
			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
				assert.Empty(t, p.calls)
			} else {
				assert.NotErrorIs(t, err, domain.ErrInvalidInput)
			}
		})
	}
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"clip.mp4", "clip.mp4"},
		{"my clip (1).mov", "my_clip__1_.mov"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\video.webm`, "video.webm"},
		{"vidéo.mp4", "vid_o.mp4"},
		{"???", ""},
		{"..", ""},
		{"/", ""},
		{strings.Repeat("a", 300) + ".mp4", strings.Repeat("a", 200)},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFileName(tt.in))
		})
	}
}
