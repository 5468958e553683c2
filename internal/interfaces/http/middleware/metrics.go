package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	prom "github.com/turtacn/RAG-HealthBot/internal/infrastructure/monitoring/prometheus"
)

// Metrics records request counts, latency and in-flight requests. Paths are
// labelled by route template so ids do not explode cardinality.
func Metrics(m *prom.AppMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		method := c.Request.Method
		m.HTTPActiveRequests.WithLabelValues(method).Inc()
		start := time.Now()

		c.Next()

		m.HTTPActiveRequests.WithLabelValues(method).Dec()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		prom.RecordHTTPRequest(m, method, path, c.Writer.Status(), time.Since(start))
	}
}
