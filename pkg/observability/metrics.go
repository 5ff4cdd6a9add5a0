package observability

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// PrometheusHandler exposes the metrics registry on a Gin route
func PrometheusHandler(handler http.Handler) gin.HandlerFunc {
	if handler == nil {
		return func(c *gin.Context) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": gin.H{
					"code":    "METRICS_UNAVAILABLE",
					"message": "metrics handler not initialized",
				},
			})
		}
	}
	return gin.WrapH(handler)
}
