package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cuongbtq/video-pipeline/internal/api/dto"
	"github.com/cuongbtq/video-pipeline/shared/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		allowed    []string
		method     string
		origin     string
		wantStatus int
		wantAllow  string
	}{
		{
			name:       "allowed origin",
			allowed:    []string{testOrigin},
			method:     http.MethodGet,
			origin:     testOrigin,
			wantStatus: http.StatusOK,
			wantAllow:  testOrigin,
		},
		{
			name:       "foreign origin gets no allow header",
			allowed:    []string{testOrigin},
			method:     http.MethodGet,
			origin:     "https://evil.example.com",
			wantStatus: http.StatusOK,
		},
		{
			name:       "preflight",
			allowed:    []string{testOrigin},
			method:     http.MethodOptions,
			origin:     testOrigin,
			wantStatus: http.StatusNoContent,
			wantAllow:  testOrigin,
		},
		{
			name:       "preflight from foreign origin",
			allowed:    []string{testOrigin},
			method:     http.MethodOptions,
			origin:     "https://evil.example.com",
			wantStatus: http.StatusNoContent,
		},
		{
			name:       "wildcard",
			allowed:    []string{"*"},
			method:     http.MethodGet,
			origin:     "https://anything.example.com",
			wantStatus: http.StatusOK,
			wantAllow:  "https://anything.example.com",
		},
		{
			name:       "configured with trailing slash",
			allowed:    []string{testOrigin + "/"},
			method:     http.MethodGet,
			origin:     testOrigin,
			wantStatus: http.StatusOK,
			wantAllow:  testOrigin,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(CORSMiddleware(tt.allowed))
			r.GET("/videos", func(c *gin.Context) { c.Status(http.StatusOK) })

			req := httptest.NewRequest(tt.method, "/videos", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantAllow, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Contains(t, rec.Header().Values("Vary"), "Origin")
		})
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(requestIDKey)) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	generated := rec.Header().Get(requestIDHeader)
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "trace-123")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, "trace-123", rec.Header().Get(requestIDHeader))
}

func TestAPIKeyMiddleware_EmptyKeyRejectsEverything(t *testing.T) {
	r := gin.New()
	r.Use(APIKeyMiddleware("", logger.NewDiscard()))
	r.POST("/internal/progress", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/internal/progress", nil)
	req.Header.Set(apiKeyHeader, "")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("10.0.0.1"))
	assert.True(t, rl.allow("10.0.0.1"))
	assert.False(t, rl.allow("10.0.0.1"), "burst exhausted")
	assert.True(t, rl.allow("10.0.0.2"), "buckets are per IP")

	now = now.Add(time.Second)
	assert.True(t, rl.allow("10.0.0.1"), "one token refilled")

	now = now.Add(10 * time.Minute)
	rl.allow("10.0.0.3")
	rl.mu.Lock()
	_, stale := rl.ips["10.0.0.2"]
	rl.mu.Unlock()
	assert.False(t, stale, "idle limiters are evicted")
}

func TestRateLimitMiddleware(t *testing.T) {
	env := newTestEnv(t, Options{UploadRateLimit: 1, UploadRateBurst: 1})

	rec := env.do(t, http.MethodPost, "/upload/init", dto.InitUploadRequest{FileName: "a.mp4"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/upload/init", dto.InitUploadRequest{FileName: "a.mp4"}, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	rec = env.do(t, http.MethodGet, "/videos", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code, "only upload init is limited")
}
