package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"profilephoto/internal/ids"
)

const requestIDHeader = "X-Request-Id"

// RequestID tags every request with an id, reusing the caller's when given,
// and attaches a logger carrying it to the request context.
func RequestID(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" || len(requestID) > 64 {
			requestID = ids.New()
		}

		c.Set(requestIDHeader, requestID)
		c.Writer.Header().Set(requestIDHeader, requestID)

		reqLog := log.With().Str("request_id", requestID).Logger()
		c.Request = c.Request.WithContext(reqLog.WithContext(c.Request.Context()))

		c.Next()
	}
}

func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDHeader)
}
