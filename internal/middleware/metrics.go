package middleware

import (
	"strconv"
	"time"

	"github.com/aragroup/ara-platform/internal/telemetry"
	"github.com/gin-gonic/gin"
)

// noRouteLabel replaces the path of unmatched requests.
const noRouteLabel = "<no-route>"

// MetricsMiddleware records http_requests_total and http_request_duration_seconds.
// The path label is the route template, and the division label the subdomain
// resolved by SubdomainMiddleware ("none" on the apex). Both sets are bounded
// by configuration, never by request input.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = noRouteLabel
		}
		division := c.GetString(ContextKeySubdomain)
		if division == "" {
			division = "none"
		}
		method := c.Request.Method

		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status()), division).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
