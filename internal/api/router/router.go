package router

import (
	"github.com/cuongbtq/video-pipeline/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// Options carries the HTTP-boundary security settings
type Options struct {
	AllowedOrigins  []string
	InternalAPIKey  string
	UploadRateLimit float64 // requests per second per IP; 0 disables
	UploadRateBurst int
}

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, opts Options) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger, deps.Metrics))
	r.Use(CORSMiddleware(opts.AllowedOrigins))

	healthHandler := handler.NewHealthHandler(deps)
	uploadHandler := handler.NewUploadHandler(deps)
	videoHandler := handler.NewVideoHandler(deps)
	progressHandler := handler.NewProgressHandler(deps)
	eventsHandler := handler.NewEventsHandler(deps)

	r.GET("/health", healthHandler.Health)
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	var limiter *RateLimiter
	if opts.UploadRateLimit > 0 {
		limiter = NewRateLimiter(opts.UploadRateLimit, opts.UploadRateBurst)
	}

	upload := r.Group("/upload")
	{
		// POST /upload/init - presign a direct upload
		upload.POST("/init", RateLimitMiddleware(limiter), uploadHandler.InitUpload)

		// POST /upload/complete - record the job and enqueue it
		upload.POST("/complete", uploadHandler.CompleteUpload)
	}

	videos := r.Group("/videos")
	{
		videos.GET("", videoHandler.ListVideos)
		videos.GET("/:id", videoHandler.GetVideo)
	}

	// Worker-facing routes
	internal := r.Group("/internal", APIKeyMiddleware(opts.InternalAPIKey, deps.Logger))
	{
		internal.POST("/progress", progressHandler.ReportProgress)
	}

	// GET /events - live progress over SSE
	r.GET("/events", eventsHandler.Stream)

	return r
}
