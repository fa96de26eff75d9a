package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/driving-school-api/internal/service"
)

const unmatchedRoute = "unmatched"

// Metrics observes every request under its route pattern. Unknown paths share one
// label so scanners cannot inflate series cardinality. Websocket upgrades are long
// lived and tracked by the realtime gauges instead.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil || c.GetHeader("Upgrade") == "websocket" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = unmatchedRoute
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
