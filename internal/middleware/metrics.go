package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/timetable-allocator/internal/service"
)

// Metrics records every routed request and counts allocation API calls by route group.
// Prometheus scrapes and health checks are not recorded.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		if path == "/metrics" || path == "/health" {
			return
		}
		status := c.Writer.Status()
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, status, time.Since(start))
		metricsSvc.ObserveAllocationRequest(routeGroup(path), status)
	}
}

// routeGroup maps a route pattern to the allocation area it serves, or "" for anything else.
func routeGroup(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, seg := range segments {
		switch seg {
		case "roster":
			return "roster"
		case "exports":
			return "finalize"
		case "allocations":
			if i+1 < len(segments) {
				switch segments[i+1] {
				case "teachers":
					return "teachers"
				case "rooms":
					return "rooms"
				}
			}
			return "finalize"
		}
	}
	return ""
}
