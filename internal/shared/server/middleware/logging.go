package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"financial-reporter/internal/shared/metrics"
	"financial-reporter/internal/shared/telemetry"
)

// Context keys handlers set so the request log can carry them.
const (
	ReportIDKey         = "reportId"
	StatusTransitionKey = "statusTransition"
)

// Logging emits a structured log per request and records HTTP metrics.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		metrics.ObserveHTTP(c.Request.Method, c.FullPath(), status, latency)
		if c.Request.Method == http.MethodOptions {
			return
		}

		fields := map[string]any{
			"request_id":        RequestIDFromContext(c),
			"method":            c.Request.Method,
			"path":              c.Request.URL.Path,
			"route":             c.FullPath(),
			"status":            status,
			"status_transition": c.GetString(StatusTransitionKey),
			"duration_ms":       float64(latency.Microseconds()) / 1000.0,
			"user_id":           UserIDFromContext(c),
			"report_id":         c.GetString(ReportIDKey),
			"client_ip":         c.ClientIP(),
		}
		if isGuest, ok := c.Get(isGuestKey); ok {
			fields["is_guest"] = isGuest
		}
		telemetry.Info("request.complete", fields)
	}
}
