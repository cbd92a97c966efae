package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/clipsync/backend/pkg/logger"
)

// RequestLogger emits one structured log line per request.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		details := map[string]interface{}{
			"method":      c.Method(),
			"path":        c.Path(),
			"status":      c.Response().StatusCode(),
			"duration_ms": time.Since(start).Milliseconds(),
			"ip":          c.IP(),
		}
		if err != nil {
			logger.Error("request", err, details)
		} else {
			logger.Info("request", details)
		}
		return err
	}
}
