package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const loggerKey = "logger"

// RequestLogger tags every request with an id and logs its outcome. Admin
// routes are logged at info with the acting user so status changes leave
// an audit trail.
func RequestLogger(base *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		logger := base.With("request_id", id)
		c.Set(loggerKey, logger)

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"route", c.FullPath(),
			"status", status,
			"duration", time.Since(start),
			"ip", c.ClientIP(),
		}
		p := PrincipalFrom(c)
		if p.Authenticated() {
			attrs = append(attrs, "user_id", p.UserID)
		}
		switch {
		case status >= 500:
			logger.Error("request failed", append(attrs, "errors", c.Errors.String())...)
		case p.IsAdmin() && c.Request.Method != "GET":
			logger.Info("admin action", attrs...)
		default:
			logger.Debug("request", attrs...)
		}
	}
}

// LoggerFrom returns the request-scoped logger.
func LoggerFrom(c *gin.Context) *slog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if l, ok := v.(*slog.Logger); ok {
			return l
		}
	}
	return slog.Default()
}
