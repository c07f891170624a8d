package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/meemoee/market-movers-hub-sub000/internal/api/middleware"
	"github.com/meemoee/market-movers-hub-sub000/internal/service"
	"github.com/meemoee/market-movers-hub-sub000/internal/sse"
)

// ResearchHandler handles one-shot web research endpoints.
type ResearchHandler struct {
	research *service.ResearchService
}

// NewResearchHandler creates a new research handler.
func NewResearchHandler(research *service.ResearchService) *ResearchHandler {
	return &ResearchHandler{research: research}
}

// QuickResearch handles POST /api/v1/web-research. The analysis streams
// to the client as SSE data frames while it is generated; the finished
// record is saved and announced in the closing "done" frame.
func (h *ResearchHandler) QuickResearch(c *gin.Context) {
	var req service.QuickResearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	record, err := h.research.QuickResearch(c.Request.Context(), &req, func(delta string) error {
		writeFrame(c, "message", gin.H{"content": delta})
		return nil
	})
	if err != nil {
		middleware.GetLogger(c).WithError(err).Error("Quick research failed")
		writeFrame(c, "error", gin.H{"message": err.Error()})
		return
	}

	writeFrame(c, "done", gin.H{
		"id":                 record.ID,
		"probability":        record.Probability,
		"areas_for_research": record.AreasForResearch,
		"sources":            record.Sources,
	})
	fmt.Fprintf(c.Writer, "data: %s\n\n", sse.DoneSentinel)
	c.Writer.Flush()
}

// GetResearch handles GET /api/v1/web-research/:id.
func (h *ResearchHandler) GetResearch(c *gin.Context) {
	record, err := h.research.GetWebResearch(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Research not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, record)
}

// ListResearch handles GET /api/v1/web-research.
func (h *ResearchHandler) ListResearch(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	records, err := h.research.ListWebResearch(c.Request.Context(), c.Query("user_id"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list research: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"research": records,
		"count":    len(records),
	})
}
