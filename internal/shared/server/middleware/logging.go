package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"docvault-backend/internal/shared/telemetry"
)

// Context keys handlers may set to enrich the request log line.
const (
	DocumentIDKey       = "documentId"
	IngestionIDKey      = "ingestionId"
	StatusTransitionKey = "statusTransition"
)

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

		fields := correlationFields(c)
		fields["method"] = c.Request.Method
		fields["path"] = c.Request.URL.Path
		fields["status"] = c.Writer.Status()
		fields["status_transition"] = c.GetString(StatusTransitionKey)
		fields["duration_ms"] = float64(latency.Microseconds()) / 1000.0
		fields["client_ip"] = c.ClientIP()
		fields["user_agent"] = c.Request.UserAgent()
		telemetry.Info("request.complete", fields)
	}
}
