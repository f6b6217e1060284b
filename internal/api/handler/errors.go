package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/video-pipeline/internal/api/domain"
	"github.com/cuongbtq/video-pipeline/internal/api/dto"
	"github.com/gin-gonic/gin"
)

// respondError maps domain errors to status codes. Internal error text is
// logged and never sent to the client.
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	var publishErr *domain.PublishError

	switch {
	case errors.As(err, &publishErr):
		logger.Error("Processing could not be scheduled",
			slog.Int64("job_id", publishErr.JobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{
			Error: "upload recorded but processing could not be scheduled",
			ID:    publishErr.JobID,
		})
	case errors.Is(err, domain.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "unauthorized"})
	case errors.Is(err, domain.ErrJobNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "job not found"})
	case errors.Is(err, domain.ErrTransitionRejected):
		c.JSON(http.StatusConflict, dto.ErrorResponse{Error: "status transition rejected"})
	case errors.Is(err, domain.ErrPersistFailed):
		logger.Error("Failed to record upload", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "failed to record upload"})
	default:
		logger.Error("Request failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}
}

func invalidBody(c *gin.Context, logger *slog.Logger, err error) {
	logger.Warn("Invalid request body", slog.String("error", err.Error()))
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "invalid request body"})
}
