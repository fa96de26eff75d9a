package cors

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	allowHeaders  = "Authorization, Content-Type, X-Requested-With, X-Request-ID"
	allowMethods  = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	exposeHeaders = "Content-Disposition, X-Request-ID"
)

// New answers preflight requests and stamps CORS headers for the configured origins.
// Credentials are only allowed when the origin is echoed back, never alongside "*".
func New(allowedOrigins []string) gin.HandlerFunc {
	allowed := Allowed(allowedOrigins)
	wildcard := len(allowedOrigins) == 0

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Add("Vary", "Origin")

		switch origin := c.GetHeader("Origin"); {
		case origin != "" && allowed(origin):
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
		case origin == "" && wildcard:
			h.Set("Access-Control-Allow-Origin", "*")
		}

		h.Set("Access-Control-Expose-Headers", exposeHeaders)

		if c.Request.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Headers", allowHeaders)
			h.Set("Access-Control-Allow-Methods", allowMethods)
			h.Set("Access-Control-Max-Age", "600")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Allowed builds the origin predicate shared with the websocket upgrader.
// An empty list or a "*" entry admits every origin; requests without an Origin header always pass.
func Allowed(allowedOrigins []string) func(origin string) bool {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origin = strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/"))
		if origin == "*" {
			return func(string) bool { return true }
		}
		origins[origin] = struct{}{}
	}
	return func(origin string) bool {
		if len(origins) == 0 || origin == "" {
			return true
		}
		_, ok := origins[strings.ToLower(strings.TrimRight(origin, "/"))]
		return ok
	}
}
