package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"variance-backend/internal/shared/telemetry"
)

const cycleOutcomeKey = "cycleOutcome"

// SetCycleOutcome records the extraction/query outcome for the request log.
func SetCycleOutcome(c *gin.Context, outcome string) {
	c.Set(cycleOutcomeKey, outcome)
}

// Logging emits a structured log per request.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.EqualFold(c.Request.Method, "OPTIONS") {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)

		fields := map[string]any{
			"request_id":  RequestIDFromContext(c),
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"route":       c.FullPath(),
			"status":      c.Writer.Status(),
			"duration_ms": float64(latency.Microseconds()) / 1000.0,
			"session_id":  SessionIDFromContext(c),
			"has_token":   BearerTokenFromContext(c) != "",
			"client_ip":   c.ClientIP(),
			"user_agent":  c.Request.UserAgent(),
		}
		if outcome, ok := c.Get(cycleOutcomeKey); ok {
			fields["cycle_outcome"] = outcome
		}
		telemetry.Info("request.complete", fields)
	}
}
