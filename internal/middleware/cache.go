package middleware

import (
	"github.com/gin-gonic/gin"
)

// NoStore forbids caching of the response. Exam content, session state and
// results must never be served from a shared cache.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Header("Pragma", "no-cache")
		c.Next()
	}
}
