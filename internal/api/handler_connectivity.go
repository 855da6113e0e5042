package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type putConnectivityRequest struct {
	Online *bool `json:"online" binding:"required"`
}

// GetConnectivity handles GET /api/connectivity.
func (h *Handler) GetConnectivity(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"online": h.connectivity.Online()})
}

// PutConnectivity handles PUT /api/connectivity, the platform's online/offline signal.
func (h *Handler) PutConnectivity(c *gin.Context) {
	var req putConnectivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.connectivity.SetOnline(*req.Online)
	c.JSON(http.StatusOK, gin.H{"online": h.connectivity.Online()})
}
