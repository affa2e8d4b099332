package bot

import (
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/skitcast/shared/logger"
)

// LoggerMiddleware logs HTTP requests with slog. The bot token is masked in
// the logged path.
func LoggerMiddleware(log *slog.Logger, token string) gin.HandlerFunc {
	if log == nil {
		log = logger.Discard()
	}

	return func(c *gin.Context) {
		start := time.Now()
		path := redactToken(c.Request.URL.Path, token)

		// Process request
		c.Next()

		latency := time.Since(start)

		log.Info("HTTP Request",
			slog.Int("status", c.Writer.Status()),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("ip", c.ClientIP()),
			slog.Duration("latency", latency),
			slog.Int("body_size", c.Writer.Size()),
		)

		for _, e := range c.Errors {
			log.Error("Request error",
				slog.String("error", e.Error()),
				slog.Uint64("type", uint64(e.Type)),
			)
		}
	}
}

func redactToken(path, token string) string {
	if token == "" {
		return path
	}
	return strings.ReplaceAll(path, token, "<token>")
}
