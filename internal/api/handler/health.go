package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meemoee/market-movers-hub-sub000/internal/service"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	research *service.ResearchService
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(research *service.ResearchService) *HealthHandler {
	return &HealthHandler{research: research}
}

// Health returns the health status of the service along with the
// current research queue depth. A database error degrades the status
// rather than failing the check.
func (h *HealthHandler) Health(c *gin.Context) {
	queued, processing, err := h.research.QueueDepth(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusOK, gin.H{
			"status": "degraded",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"queued":     queued,
		"processing": processing,
	})
}
