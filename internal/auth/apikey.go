// Package auth guards the operator-facing API surface. The controller
// runs on a plant network where the only clients are the operator UI
// and line-side tooling, so a single shared key is sufficient; it is
// compared in constant time so response timing leaks nothing about
// the key bytes.
package auth

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// apiKeyHeader carries the operator key on every guarded request.
const apiKeyHeader = "X-API-Key"

// APIKeyMiddleware rejects requests whose key header does not match
// the configured key. An empty configured key disables the check,
// for bench setups with no network exposure.
func APIKeyMiddleware(key string) gin.HandlerFunc {
	want := []byte(key)
	return func(c *gin.Context) {
		if len(want) == 0 {
			c.Next()
			return
		}

		got := c.GetHeader(apiKeyHeader)
		if got == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing API key",
			})
			return
		}

		if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "invalid API key",
			})
			return
		}

		c.Next()
	}
}
