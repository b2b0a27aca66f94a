package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nickthelegend/0rca-agent-template/internal/api/handler"
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
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "agent-api-service",
		})
	})

	// Prometheus metrics endpoint
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
		deps.Metrics.Registry(),
		promhttp.HandlerOpts{},
	)))

	// Initialize job handler
	jobHandler := handler.NewJobHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			// POST /api/v1/jobs - Create a new job
			jobs.POST("", jobHandler.CreateJob)

			// GET /api/v1/jobs/:job_id - Get job status, output with token
			jobs.GET("/:job_id", jobHandler.GetJobStatus)

			// POST /api/v1/jobs/:job_id/payment - Build unsigned payment group
			jobs.POST("/:job_id/payment", jobHandler.RequestPayment)

			// POST /api/v1/jobs/:job_id/payment/submit - Verify payment, issue token
			jobs.POST("/:job_id/payment/submit", jobHandler.SubmitPayment)
		}
	}

	return r
}
