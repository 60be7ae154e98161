package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"cheqr/backend/internal/logging"
)

// RequestLogger attaches a trace-annotated logger to the request context and logs each request on completion.
// Register it after the tracing middleware so the server span is already in the context.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		ctx := logging.Into(c.Request.Context(), map[string]string{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		})
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		var ev *zerolog.Event
		switch {
		case len(c.Errors) > 0 || status >= 500:
			ev = log.Ctx(ctx).Error()
			if len(c.Errors) > 0 {
				ev = ev.Err(c.Errors.Last().Err)
			}
		case status >= 400:
			ev = log.Ctx(ctx).Warn()
		default:
			ev = log.Ctx(ctx).Info()
		}
		if userID, ok := GetUserID(c.Request.Context()); ok {
			ev = ev.Str("user_id", userID)
		}
		ev.Int("status", status).
			Dur("latency", time.Since(start)).
			Str("ip", c.ClientIP()).
			Msg("http: request")
	}
}
