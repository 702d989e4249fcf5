// Package middleware holds the sidecar's gin.HandlerFunc middleware,
// mirroring the teacher's internal/interfaces/middleware layout (auth.go).
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Cors allows the desktop shell's embedded webview (typically served from
// a custom scheme or a localhost port distinct from the sidecar's own
// dynamically-chosen one, spec.md §4.3) to call the sidecar's HTTP and SSE
// endpoints. There is no browser-facing deployment of this API, so the
// policy is permissive rather than origin-allowlisted.
func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Last-Event-ID, X-Correlation-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
