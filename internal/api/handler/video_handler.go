package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cuongbtq/video-pipeline/internal/api/domain"
	"github.com/gin-gonic/gin"
)

// ListVideos handles GET /videos
// Lists every job, newest first
func (h *VideoHandler) ListVideos(c *gin.Context) {
	h.logger.Info("ListVideos called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
	)

	jobs, err := h.query.List(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, jobs)
}

// GetVideo handles GET /videos/:id
func (h *VideoHandler) GetVideo(c *gin.Context) {
	idParam := c.Param("id")

	h.logger.Info("GetVideo called",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("id", idParam),
	)

	id, err := strconv.ParseInt(idParam, 10, 64)
	if err != nil {
		respondError(c, h.logger, domain.InvalidInput("id must be a positive integer"))
		return
	}

	job, err := h.query.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, job)
}
