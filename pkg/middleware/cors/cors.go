package cors

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
)

// New returns CORS middleware for the local gradebook server. Listed origins
// are allowed exactly; with no list, only loopback origins are allowed.
func New(allowedOrigins []string) gin.HandlerFunc {
	originSet := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		originSet[strings.TrimRight(origin, "/")] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowed := origin != "" && isAllowed(originSet, origin)
		if allowed {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Disposition, X-Request-ID")
			c.Writer.Header().Set("Access-Control-Max-Age", "600")
		}
		c.Writer.Header().Add("Vary", "Origin")

		if c.Request.Method == http.MethodOptions && origin != "" {
			if !allowed {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func isAllowed(originSet map[string]struct{}, origin string) bool {
	origin = strings.TrimRight(origin, "/")
	if len(originSet) > 0 {
		_, ok := originSet[origin]
		return ok
	}
	return isLoopback(origin)
}

func isLoopback(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
