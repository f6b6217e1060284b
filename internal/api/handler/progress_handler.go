package handler

import (
	"log/slog"
	"net/http"

	"github.com/cuongbtq/video-pipeline/internal/api/dto"
	"github.com/cuongbtq/video-pipeline/internal/api/service"
	"github.com/gin-gonic/gin"
)

// ReportProgress handles POST /internal/progress
// Only reachable behind the API key middleware
func (h *ProgressHandler) ReportProgress(c *gin.Context) {
	var req dto.ProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidBody(c, h.logger, err)
		return
	}

	h.logger.Info("ReportProgress called",
		slog.Int64("job_id", req.JobID),
		slog.String("status", req.Status),
	)

	result, err := h.gateway.Report(c.Request.Context(), service.ProgressUpdate{
		JobID:        req.JobID,
		Status:       req.Status,
		Percent:      req.Percent,
		Tags:         req.Tags,
		ThumbnailURL: req.ThumbnailURL,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.ProgressResponse{
		JobID:   result.Job.ID,
		Status:  string(result.Job.Status),
		Outcome: result.Outcome.String(),
	})
}
