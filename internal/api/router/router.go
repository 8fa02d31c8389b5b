package router

import (
	"net/http"

	"github.com/alexandre-riera/somafi-ingest/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		if deps.DBHealth != nil {
			if err := deps.DBHealth(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": "somafi-ingest-api",
					"error":   err.Error(),
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "somafi-ingest-api",
		})
	})

	h := handler.New(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Upstream push intake
		v1.POST("/webhooks/kizeo", h.ReceiveWebhook)

		// Bulk equipment import and archival, per agency
		v1.POST("/agencies/:agency/equipments/import", h.ImportEquipments)
		v1.POST("/agencies/:agency/equipments/:equipment_id/archive", h.ArchiveEquipment)

		jobs := v1.Group("/jobs")
		{
			jobs.GET("/stats", h.GlobalStats)
			jobs.GET("/stats/agencies", h.AgencyStats)
			jobs.GET("/stats/types/:job_type", h.TypeStats)
			jobs.GET("/failures", h.RecentFailures)
			jobs.GET("/:job_id", h.GetJob)
		}

		ops := v1.Group("/ops")
		{
			ops.POST("/jobs/:job_id/re-enqueue", h.ReEnqueueJob)
			ops.POST("/reset-stuck", h.ResetStuck)
			ops.POST("/purge", h.PurgeJobs)
		}
	}

	return r
}
