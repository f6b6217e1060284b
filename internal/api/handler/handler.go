package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/cuongbtq/video-pipeline/internal/api/fanout"
	"github.com/cuongbtq/video-pipeline/internal/api/service"
	"github.com/cuongbtq/video-pipeline/internal/metrics"
)

// HealthChecker is satisfied by the database client
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger      *slog.Logger
	ServiceName string

	Uploads *service.UploadIssuer
	Intake  *service.Intake
	Gateway *service.ProgressGateway
	Query   *service.VideoQuery
	Hub     *fanout.Hub
	Metrics *metrics.Metrics

	// Health is optional; nil reports healthy without a dependency check
	Health HealthChecker

	HeartbeatInterval time.Duration
}

// UploadHandler handles the presign and completion callbacks
type UploadHandler struct {
	logger  *slog.Logger
	uploads *service.UploadIssuer
	intake  *service.Intake
}

// NewUploadHandler creates a new UploadHandler instance
func NewUploadHandler(deps *Dependencies) *UploadHandler {
	return &UploadHandler{
		logger:  deps.Logger,
		uploads: deps.Uploads,
		intake:  deps.Intake,
	}
}

// VideoHandler serves the job listing
type VideoHandler struct {
	logger *slog.Logger
	query  *service.VideoQuery
}

func NewVideoHandler(deps *Dependencies) *VideoHandler {
	return &VideoHandler{
		logger: deps.Logger,
		query:  deps.Query,
	}
}

// ProgressHandler receives worker status reports
type ProgressHandler struct {
	logger  *slog.Logger
	gateway *service.ProgressGateway
}

func NewProgressHandler(deps *Dependencies) *ProgressHandler {
	return &ProgressHandler{
		logger:  deps.Logger,
		gateway: deps.Gateway,
	}
}

// EventsHandler streams progress events to browsers
type EventsHandler struct {
	logger    *slog.Logger
	hub       *fanout.Hub
	heartbeat time.Duration
}

func NewEventsHandler(deps *Dependencies) *EventsHandler {
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &EventsHandler{
		logger:    deps.Logger,
		hub:       deps.Hub,
		heartbeat: heartbeat,
	}
}

// HealthHandler reports liveness and database reachability
type HealthHandler struct {
	service string
	health  HealthChecker
	logger  *slog.Logger
}

func NewHealthHandler(deps *Dependencies) *HealthHandler {
	name := deps.ServiceName
	if name == "" {
		name = "video-api-service"
	}
	return &HealthHandler{
		service: name,
		health:  deps.Health,
		logger:  deps.Logger,
	}
}
