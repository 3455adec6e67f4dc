package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// UnmatchedRoute labels requests that hit no registered route, so unknown
// paths never become label values.
const UnmatchedRoute = "unmatched"

// HTTPRecorder receives one observation per request.
type HTTPRecorder interface {
	ObserveHTTPRequest(method, path string, status int, duration time.Duration)
}

// Metrics records method, route template, status and latency for every
// request except the scrape paths listed in skip.
func Metrics(recorder HTTPRecorder, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, path := range skip {
		skipped[path] = struct{}{}
	}
	return func(c *gin.Context) {
		if recorder == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if _, ok := skipped[route]; ok {
			return
		}
		if route == "" {
			route = UnmatchedRoute
		}
		recorder.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
