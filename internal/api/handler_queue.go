package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// GetQueue handles GET /api/queue. With ?resolved=true the repaired order is returned.
func (h *Handler) GetQueue(c *gin.Context) {
	resolved, _ := strconv.ParseBool(c.DefaultQuery("resolved", "false"))
	c.JSON(http.StatusOK, gin.H{
		"resolved": resolved,
		"actions":  h.tracker.Pending(resolved),
	})
}

// GetQueueStats handles GET /api/queue/stats.
func (h *Handler) GetQueueStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.log.Stats())
}

// SyncQueue handles POST /api/queue/sync.
func (h *Handler) SyncQueue(c *gin.Context) {
	c.JSON(http.StatusOK, h.queue.SyncQueue(c.Request.Context()))
}

// RetryQueue handles POST /api/queue/retry.
func (h *Handler) RetryQueue(c *gin.Context) {
	n, err := h.queue.RetryFailed(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "reset": n})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reset": n})
}

// ClearQueue handles DELETE /api/queue.
func (h *Handler) ClearQueue(c *gin.Context) {
	if err := h.log.Clear(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
