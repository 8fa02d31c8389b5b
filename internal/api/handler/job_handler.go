package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alexandre-riera/somafi-ingest/internal/api/dto"
	"github.com/alexandre-riera/somafi-ingest/internal/domain"
	"github.com/gin-gonic/gin"
)

// GetJob handles GET /api/v1/jobs/:job_id
func (h *Handler) GetJob(c *gin.Context) {
	jobID, err := strconv.ParseInt(c.Param("job_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be an integer",
		})
		return
	}

	job, err := h.jobs.GetByID(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		h.logger.Error("Failed to get job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	c.JSON(http.StatusOK, job)
}

// GlobalStats handles GET /api/v1/jobs/stats
func (h *Handler) GlobalStats(c *gin.Context) {
	stats, err := h.jobs.GlobalStats(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to get global stats", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get stats",
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// TypeStats handles GET /api/v1/jobs/stats/types/:job_type
func (h *Handler) TypeStats(c *gin.Context) {
	jobType := c.Param("job_type")

	stats, err := h.jobs.StatsByType(c.Request.Context(), jobType)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidJobType) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("unknown job type %q", jobType),
			})
			return
		}
		h.logger.Error("Failed to get job type stats",
			slog.String("job_type", jobType),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get stats",
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// AgencyStats handles GET /api/v1/jobs/stats/agencies
func (h *Handler) AgencyStats(c *gin.Context) {
	stats, err := h.jobs.StatsByAgency(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to get agency stats", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get stats",
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// RecentFailures handles GET /api/v1/jobs/failures?limit=N
func (h *Handler) RecentFailures(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "limit must be a positive integer",
			})
			return
		}
		limit = parsed
	}
	if limit > 100 {
		limit = 100
	}

	failures, err := h.jobs.RecentFailures(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list recent failures", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list failures",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"failures": failures,
	})
}

// ReEnqueueJob handles POST /api/v1/ops/jobs/:job_id/re-enqueue
//
// Operator retry: a failed job goes back to pending for the next drain pass.
func (h *Handler) ReEnqueueJob(c *gin.Context) {
	jobID, err := strconv.ParseInt(c.Param("job_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be an integer",
		})
		return
	}

	if err := h.jobs.ReEnqueue(c.Request.Context(), jobID); err != nil {
		if errors.Is(err, domain.ErrJobConflict) {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Only failed jobs can be re-enqueued",
			})
			return
		}
		h.logger.Error("Failed to re-enqueue job",
			slog.Int64("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to re-enqueue job",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "pending",
		"job_id": jobID,
	})
}

// ResetStuck handles POST /api/v1/ops/reset-stuck
func (h *Handler) ResetStuck(c *gin.Context) {
	// A bare POST means "use the defaults": gin surfaces the empty body as
	// io.EOF, which is not a malformed request.
	var req dto.ResetStuckRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	count, err := h.jobs.ResetStuck(c.Request.Context(), req.ThresholdMinutes)
	if err != nil {
		h.logger.Error("Failed to reset stuck jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to reset stuck jobs",
		})
		return
	}

	c.JSON(http.StatusOK, dto.CountResponse{Count: count})
}

// PurgeJobs handles POST /api/v1/ops/purge
func (h *Handler) PurgeJobs(c *gin.Context) {
	var req dto.PurgeRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	count, err := h.jobs.Purge(c.Request.Context(), req.Status, req.RetentionDays)
	if err != nil {
		h.logger.Error("Failed to purge jobs",
			slog.String("status", req.Status),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, dto.CountResponse{Count: count})
}
