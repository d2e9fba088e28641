package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

// RequireHeldSession rejects requests for sessions this server does not
// hold, for example after the janitor dropped them. A valid token alone is
// not enough: sessions live in memory and do not survive a restart.
func RequireHeldSession(sessions *service.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		if _, err := sessions.Get(claims.SessionID); err != nil {
			response.AbortFail(c, http.StatusNotFound, response.ErrSessionNotFound)
			return
		}

		c.Next()
	}
}
