package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Recovery turns a handler panic into a 500 with the same error body the
// profile handlers use, tagged with the profile id when the route has one.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	log = log.With().Str("component", "http").Logger()
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			event := log.Error().
				Str("panic", fmt.Sprint(r)).
				Str("route", c.FullPath()).
				Str("request_id", GetRequestID(c))
			if id := c.Param("id"); id != "" {
				event = event.Str("profile_id", id)
			}
			event.Msg("handler panicked, request aborted")

			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
		}()
		c.Next()
	}
}
