package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/meemoee/market-movers-hub-sub000/internal/api/middleware"
	"github.com/meemoee/market-movers-hub-sub000/internal/service"
)

// HistoricalHandler handles historical event and comparison endpoints.
type HistoricalHandler struct {
	historical *service.HistoricalService
}

// NewHistoricalHandler creates a new historical handler.
func NewHistoricalHandler(historical *service.HistoricalService) *HistoricalHandler {
	return &HistoricalHandler{historical: historical}
}

// ListEvents handles GET /api/v1/historical-events.
func (h *HistoricalHandler) ListEvents(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	events, err := h.historical.ListEvents(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list events: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

// GenerateComparisons handles POST /api/v1/markets/:slug/comparisons.
func (h *HistoricalHandler) GenerateComparisons(c *gin.Context) {
	comparisons, err := h.historical.GenerateComparisons(c.Request.Context(), c.Param("slug"))
	if err != nil {
		middleware.GetLogger(c).WithError(err).Error("Failed to generate comparisons")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to generate comparisons: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"comparisons": comparisons,
		"count":       len(comparisons),
	})
}

// GetComparisons handles GET /api/v1/markets/:slug/comparisons.
func (h *HistoricalHandler) GetComparisons(c *gin.Context) {
	comparisons, err := h.historical.ComparisonsForMarket(c.Request.Context(), c.Param("slug"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get comparisons: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"comparisons": comparisons,
		"count":       len(comparisons),
	})
}
