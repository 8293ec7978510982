package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nis-portal/portal-api/internal/observability"
	"github.com/nis-portal/portal-api/internal/utils"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

// HealthResponse reports the state of the API and its dependencies.
type HealthResponse struct {
	Status    string                            `json:"status" example:"healthy"`
	Timestamp time.Time                         `json:"timestamp"`
	Services  map[string]string                 `json:"services"`
	Details   map[string]map[string]interface{} `json:"details,omitempty"`
}

// HealthCheckFunc pings one dependency.
type HealthCheckFunc func(ctx context.Context) error

// HealthDetailFunc reports internal state, such as worker buffer usage.
type HealthDetailFunc func() map[string]interface{}

type healthCheck struct {
	name     string
	required bool
	check    HealthCheckFunc
}

var (
	healthMu     sync.RWMutex
	healthChecks  []healthCheck
	healthDetails = map[string]HealthDetailFunc{}
)

// healthTimeout bounds each dependency ping.
const healthTimeout = 2 * time.Second

// RegisterHealthCheck adds a dependency to GET /health. A failing required
// dependency makes the API unhealthy; an optional one only degrades it.
func RegisterHealthCheck(name string, required bool, check HealthCheckFunc) {
	healthMu.Lock()
	defer healthMu.Unlock()
	healthChecks = append(healthChecks, healthCheck{name: name, required: required, check: check})
}

// RegisterHealthDetail adds a named section to the details of GET /health.
func RegisterHealthDetail(name string, detail HealthDetailFunc) {
	healthMu.Lock()
	defer healthMu.Unlock()
	healthDetails[name] = detail
}

// ResetHealthChecks removes every registered dependency and detail.
func ResetHealthChecks() {
	healthMu.Lock()
	defer healthMu.Unlock()
	healthChecks = nil
	healthDetails = map[string]HealthDetailFunc{}
}

// HealthCheck godoc
// @Summary Health check
// @Description Pings PostgreSQL and the optional dependencies (Redis, MongoDB).
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse "Healthy or degraded"
// @Failure 503 {object} HealthResponse "A required dependency is down"
// @Router /health [get]
func HealthCheck(c *gin.Context) {
	ctx, span := otel.Tracer("").Start(c.Request.Context(), "HealthCheck")
	defer span.End()

	healthMu.RLock()
	checks := append([]healthCheck(nil), healthChecks...)
	details := make(map[string]HealthDetailFunc, len(healthDetails))
	for name, fn := range healthDetails {
		details[name] = fn
	}
	healthMu.RUnlock()

	health := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Services:  make(map[string]string, len(checks)),
	}

	for _, hc := range checks {
		checkCtx, serviceSpan := utils.TraceExternalService(ctx, hc.name, "ping")
		checkCtx, cancel := context.WithTimeout(checkCtx, healthTimeout)
		err := hc.check(checkCtx)
		cancel()

		if err == nil {
			utils.AddSpanAttribute(serviceSpan, "service.status", "healthy")
			health.Services[hc.name] = "healthy"
			serviceSpan.End()
			continue
		}

		utils.RecordErrorInSpan(serviceSpan, err, map[string]interface{}{
			"service.name": hc.name,
		})
		serviceSpan.End()
		observability.Logger().Warn("health check failed",
			zap.String("service", hc.name),
			zap.Bool("required", hc.required),
			zap.Error(err))

		health.Services[hc.name] = "unhealthy"
		switch {
		case hc.required:
			health.Status = "unhealthy"
		case health.Status == "healthy":
			health.Status = "degraded"
		}
	}

	if len(details) > 0 {
		health.Details = make(map[string]map[string]interface{}, len(details))
		for name, fn := range details {
			health.Details[name] = fn()
		}
	}

	if health.Status == "unhealthy" {
		c.JSON(http.StatusServiceUnavailable, health)
		return
	}
	c.JSON(http.StatusOK, health)
}
