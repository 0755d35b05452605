package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/classbridge/classbridge-api/internal/service"
)

// Metrics records duration and status for every handled request,
// labelled by the route template so /subjects/:id stays one series
// regardless of how many subjects exist.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			// Unmatched requests (404s) collapse into one label.
			route = "unmatched"
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
