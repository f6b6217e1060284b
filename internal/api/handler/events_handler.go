package handler

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Stream handles GET /events
// Pushes every progress event as an SSE "progress" event until the client
// goes away, with a heartbeat so idle proxies keep the connection open
func (h *EventsHandler) Stream(c *gin.Context) {
	sub := h.hub.Subscribe()
	defer sub.Close()

	h.logger.Info("Stream called", slog.String("ip", c.ClientIP()))

	// the server's WriteTimeout would otherwise cut long-lived streams
	if err := http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("Write deadline not cleared", slog.String("error", err.Error()))
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.SSEvent("ready", gin.H{"time": time.Now().UTC()})
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-sub.Done():
			return false
		case ev := <-sub.C:
			c.SSEvent("progress", ev)
			return true
		case t := <-ticker.C:
			c.SSEvent("heartbeat", gin.H{"time": t.UTC()})
			return true
		}
	})

	h.logger.Info("Stream closed", slog.String("ip", c.ClientIP()))
}
