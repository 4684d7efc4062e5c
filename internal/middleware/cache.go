package middleware

import (
	"github.com/gin-gonic/gin"
)

// NoStore marks every response as non-cacheable. Record payloads and grant
// listings are per-session medical data; intermediaries must not keep them.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}
