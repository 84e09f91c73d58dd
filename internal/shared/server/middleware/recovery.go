package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"docvault-backend/internal/shared/server/respond"
	"docvault-backend/internal/shared/telemetry"
)

// Recovery turns a handler panic into the standard 500 envelope. The log line
// carries the same correlation fields as request.complete so a panic can be
// joined to its trace and to the document or ingestion it touched.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			msg := fmt.Sprint(rec)
			span := trace.SpanFromContext(c.Request.Context())
			span.RecordError(fmt.Errorf("panic: %s", msg))
			span.SetStatus(codes.Error, "panic")

			fields := correlationFields(c)
			fields["error"] = msg
			fields["stack"] = string(debug.Stack())
			fields["method"] = c.Request.Method
			fields["path"] = c.Request.URL.Path
			telemetry.Error("request.panic", fields)

			if c.Writer.Written() {
				c.Abort()
				return
			}
			respond.Error(c, http.StatusInternalServerError, "internal", "Unexpected server error", nil)
			c.Abort()
		}()
		c.Next()
	}
}

// correlationFields collects the ids shared by every per-request log line.
func correlationFields(c *gin.Context) map[string]any {
	fields := map[string]any{
		"request_id":   RequestIDFromContext(c),
		"user_id":      UserIDFromContext(c),
		"role":         string(RoleFromContext(c)),
		"document_id":  c.GetString(DocumentIDKey),
		"ingestion_id": c.GetString(IngestionIDKey),
	}
	if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
		fields["trace_id"] = sc.TraceID().String()
	}
	return fields
}
