package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/meemoee/market-movers-hub-sub000/internal/api/middleware"
	"github.com/meemoee/market-movers-hub-sub000/internal/domain"
	"github.com/meemoee/market-movers-hub-sub000/internal/service"
	"github.com/meemoee/market-movers-hub-sub000/internal/sse"
)

// JobHandler handles research-job endpoints, including the SSE stream
// of persisted analysis chunks.
type JobHandler struct {
	research     *service.ResearchService
	pollInterval time.Duration
}

// NewJobHandler creates a new job handler.
// Parameters:
//   - research: research service instance.
//   - pollInterval: how often the SSE stream polls for new chunks.
// Returns:
//   - *JobHandler: initialized handler.
func NewJobHandler(research *service.ResearchService, pollInterval time.Duration) *JobHandler {
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	return &JobHandler{
		research:     research,
		pollInterval: pollInterval,
	}
}

// CreateJob handles POST /api/v1/research-jobs.
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req service.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	job, err := h.research.CreateJob(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrRecentlyResearched) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		middleware.GetLogger(c).WithError(err).Error("Failed to create research job")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, job)
}

// GetJob handles GET /api/v1/research-jobs/:id.
func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.research.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, job)
}

// ListJobs handles GET /api/v1/research-jobs.
func (h *JobHandler) ListJobs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	jobs, err := h.research.ListJobs(c.Request.Context(), c.Query("market_id"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// RetryJob handles POST /api/v1/research-jobs/:id/retry. Terminal jobs
// never change state, so a retry queues a fresh job with the same
// parameters.
func (h *JobHandler) RetryJob(c *gin.Context) {
	job, err := h.research.Retry(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, job)
}

// StreamJob handles GET /api/v1/research-jobs/:id/stream. It replays
// the persisted analysis chunks as SSE frames, then keeps polling for
// new ones until the job reaches a terminal state. The stream ends with
// an "event: done" frame followed by the [DONE] sentinel.
func (h *JobHandler) StreamJob(c *gin.Context) {
	ctx := c.Request.Context()
	jobID := c.Param("id")

	job, err := h.research.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	var lastChunkID uint
	lastLog := 0
	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	for {
		chunks, err := h.research.StreamChunksForJob(ctx, jobID, lastChunkID)
		if err != nil {
			writeFrame(c, "error", gin.H{"message": err.Error()})
			return
		}
		for _, chunk := range chunks {
			writeFrame(c, "message", gin.H{
				"iteration": chunk.Iteration,
				"sequence":  chunk.Sequence,
				"chunk":     chunk.Chunk,
			})
			lastChunkID = chunk.ID
		}

		job, err = h.research.GetJob(ctx, jobID)
		if err != nil {
			writeFrame(c, "error", gin.H{"message": err.Error()})
			return
		}
		for ; lastLog < len(job.ProgressLog); lastLog++ {
			writeFrame(c, "log", gin.H{"message": job.ProgressLog[lastLog]})
		}

		if job.Status.Terminal() {
			if job.Status == domain.JobStatusFailed {
				writeFrame(c, "error", gin.H{"message": job.ErrorMessage})
			}
			writeFrame(c, "done", gin.H{
				"status":  job.Status,
				"results": job.Results,
			})
			fmt.Fprintf(c.Writer, "data: %s\n\n", sse.DoneSentinel)
			c.Writer.Flush()
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// writeFrame emits one "event: <type>" SSE frame and flushes it.
func writeFrame(c *gin.Context, event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, data)
	c.Writer.Flush()
}
