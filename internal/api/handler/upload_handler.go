package handler

import (
	"log/slog"
	"net/http"

	"github.com/cuongbtq/video-pipeline/internal/api/dto"
	"github.com/gin-gonic/gin"
)

// InitUpload handles POST /upload/init
// Returns a presigned PUT URL and the object key the browser must upload to
func (h *UploadHandler) InitUpload(c *gin.Context) {
	h.logger.Info("InitUpload called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
	)

	var req dto.InitUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidBody(c, h.logger, err)
		return
	}

	session, err := h.uploads.Init(c.Request.Context(), req.FileName)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, dto.InitUploadResponse{
		UploadURL: session.UploadURL,
		ObjectKey: session.ObjectKey,
		ExpiresAt: session.ExpiresAt,
	})
}

// CompleteUpload handles POST /upload/complete
// Records the job and schedules its processing
func (h *UploadHandler) CompleteUpload(c *gin.Context) {
	h.logger.Info("CompleteUpload called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
	)

	var req dto.CompleteUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidBody(c, h.logger, err)
		return
	}

	job, err := h.intake.Complete(c.Request.Context(), req.FileName, req.ObjectKey)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusAccepted, dto.CompleteUploadResponse{
		ID:     job.ID,
		Status: string(job.Status),
	})
}
