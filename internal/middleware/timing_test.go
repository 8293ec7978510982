package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"

	"github.com/nis-portal/portal-api/internal/observability"
)

func TestRequestTiming_SetsStartTime(t *testing.T) {
	router := gin.New()
	router.Use(RequestTiming())

	var startTime time.Time
	router.GET("/test", func(c *gin.Context) {
		val, exists := c.Get("request_start_time")
		if !exists {
			t.Error("request_start_time not set in context")
		}
		startTime, _ = val.(time.Time)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	if startTime.IsZero() {
		t.Error("request_start_time was not set")
	}
}

func TestRequestTiming_PropagatesSpanContext(t *testing.T) {
	router := gin.New()
	router.Use(RequestTiming())

	var hasSpan bool
	router.GET("/test", func(c *gin.Context) {
		hasSpan = trace.SpanFromContext(c.Request.Context()) != nil
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.True(t, hasSpan)
}

func TestRequestTiming_RecordsDuration(t *testing.T) {
	router := gin.New()
	router.Use(RequestTiming())
	router.GET("/timed/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/timed/1", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.GreaterOrEqual(t, testutil.CollectAndCount(observability.RequestDuration), 1)
}
