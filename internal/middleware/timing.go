package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nis-portal/portal-api/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// RequestTiming wraps each request in a span and records its duration
func RequestTiming() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Set("request_start_time", start)

		ctx, span := otel.Tracer("http").Start(c.Request.Context(), "http.request")
		defer span.End()

		span.SetAttributes(
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.url", c.Request.URL.String()),
			attribute.String("http.user_agent", c.Request.UserAgent()),
			attribute.String("http.client_ip", c.ClientIP()),
		)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
			attribute.Int64("http.duration_ms", latency.Milliseconds()),
			attribute.String("request.id", c.GetString(RequestIDKey)),
		)
		if status >= 500 {
			span.SetStatus(codes.Error, strconv.Itoa(status))
		}
		if status >= 400 {
			span.SetAttributes(attribute.Bool("http.error", true))
		}

		observability.RequestDuration.WithLabelValues(
			route,
			c.Request.Method,
			strconv.Itoa(status),
		).Observe(latency.Seconds())
	}
}
