package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cuongbtq/video-pipeline/internal/api/domain"
	"github.com/cuongbtq/video-pipeline/internal/api/dto"
	"github.com/cuongbtq/video-pipeline/internal/api/fanout"
	"github.com/cuongbtq/video-pipeline/shared/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRespondError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   dto.ErrorResponse
	}{
		{
			name:       "invalid input keeps the validation message",
			err:        domain.InvalidInput("fileName is required"),
			wantStatus: http.StatusBadRequest,
			wantBody:   dto.ErrorResponse{Error: "invalid input: fileName is required"},
		},
		{
			name:       "unauthorized",
			err:        domain.ErrUnauthorized,
			wantStatus: http.StatusUnauthorized,
			wantBody:   dto.ErrorResponse{Error: "unauthorized"},
		},
		{
			name:       "not found",
			err:        fmt.Errorf("lookup: %w", domain.ErrJobNotFound),
			wantStatus: http.StatusNotFound,
			wantBody:   dto.ErrorResponse{Error: "job not found"},
		},
		{
			name:       "rejected",
			err:        fmt.Errorf("%w: Completed -> Processing", domain.ErrTransitionRejected),
			wantStatus: http.StatusConflict,
			wantBody:   dto.ErrorResponse{Error: "status transition rejected"},
		},
		{
			name:       "persist failed hides the cause",
			err:        fmt.Errorf("%w: dial tcp 10.0.0.1:5432", domain.ErrPersistFailed),
			wantStatus: http.StatusInternalServerError,
			wantBody:   dto.ErrorResponse{Error: "failed to record upload"},
		},
		{
			name:       "publish failed carries the id",
			err:        &domain.PublishError{JobID: 12, Err: errors.New("channel closed")},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   dto.ErrorResponse{Error: "upload recorded but processing could not be scheduled", ID: 12},
		},
		{
			name:       "unknown error",
			err:        errors.New("pq: relation does not exist"),
			wantStatus: http.StatusInternalServerError,
			wantBody:   dto.ErrorResponse{Error: "internal server error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)

			respondError(c, logger.NewDiscard(), tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body dto.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantBody, body)
		})
	}
}

type fakeHealth struct{ err error }

func (f fakeHealth) HealthCheck(context.Context) error { return f.err }

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		health     HealthChecker
		wantStatus int
		wantState  string
	}{
		{name: "no checker", wantStatus: http.StatusOK, wantState: "healthy"},
		{name: "database up", health: fakeHealth{}, wantStatus: http.StatusOK, wantState: "healthy"},
		{name: "database down", health: fakeHealth{err: errors.New("timeout")}, wantStatus: http.StatusServiceUnavailable, wantState: "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/health", NewHealthHandler(&Dependencies{Logger: logger.NewDiscard(), Health: tt.health}).Health)

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.JSONEq(t, `{"status":"`+tt.wantState+`","service":"video-api-service"}`, rec.Body.String())
		})
	}
}

func TestStream(t *testing.T) {
	hub := fanout.NewHub(4, logger.NewDiscard(), nil)
	defer hub.Close()

	r := gin.New()
	r.GET("/events", NewEventsHandler(&Dependencies{Logger: logger.NewDiscard(), Hub: hub, HeartbeatInterval: time.Hour}).Stream)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	require.Eventually(t, func() bool { return hub.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	percent := 100
	thumb := "http://localhost:4566/video-uploads/videos/x_a.jpg"
	require.NoError(t, hub.Broadcast(ctx, domain.ProgressEvent{
		JobID:        1,
		Status:       domain.StatusCompleted,
		Percent:      &percent,
		Tags:         []string{"thumbnail"},
		ThumbnailURL: &thumb,
	}))

	data := readEvent(t, bufio.NewReader(resp.Body), "progress")
	assert.JSONEq(t, `{"jobId":1,"status":"Completed","percent":100,"tags":["thumbnail"],"thumbnailUrl":"`+thumb+`"}`, data)

	cancel()
	require.Eventually(t, func() bool { return hub.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestStream_Heartbeat(t *testing.T) {
	hub := fanout.NewHub(4, logger.NewDiscard(), nil)
	defer hub.Close()

	r := gin.New()
	r.GET("/events", NewEventsHandler(&Dependencies{Logger: logger.NewDiscard(), Hub: hub, HeartbeatInterval: 20 * time.Millisecond}).Stream)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data := readEvent(t, bufio.NewReader(resp.Body), "heartbeat")
	assert.Contains(t, data, "time")
}

// closeNotifyRecorder is a recorder that supports neither deadlines nor hijacking
type closeNotifyRecorder struct {
	*httptest.ResponseRecorder
}

func (closeNotifyRecorder) CloseNotify() <-chan bool {
	return make(chan bool)
}

func TestStream_WriteDeadlineUnsupported(t *testing.T) {
	hub := fanout.NewHub(4, logger.NewDiscard(), nil)
	defer hub.Close()

	var logs bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	r := gin.New()
	r.GET("/events", NewEventsHandler(&Dependencies{Logger: log, Hub: hub, HeartbeatInterval: time.Hour}).Stream)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	rec := closeNotifyRecorder{httptest.NewRecorder()}
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "event:ready")

	var found bool
	for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry["msg"] == "Write deadline not cleared" {
			found = true
			assert.Equal(t, "DEBUG", entry["level"])
			assert.NotEmpty(t, entry["error"])
		}
	}
	assert.True(t, found, logs.String())
	assert.Equal(t, 0, hub.Count())
}

// readEvent returns the data line of the first SSE event with the given name
func readEvent(t *testing.T, r *bufio.Reader, name string) string {
	t.Helper()
	var current string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\r\n")

		switch {
		case strings.HasPrefix(line, "event:"):
			current = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:") && current == name:
			return strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		case line == "":
			current = ""
		}
	}
}
