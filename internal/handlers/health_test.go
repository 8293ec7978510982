package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name         string
		postgresErr  error
		redisErr     error
		wantCode     int
		wantStatus   string
		wantPostgres string
		wantRedis    string
	}{
		{"all healthy", nil, nil, http.StatusOK, "healthy", "healthy", "healthy"},
		{"redis down degrades", nil, errors.New("connection refused"), http.StatusOK, "degraded", "healthy", "unhealthy"},
		{"postgres down", errors.New("no connection"), nil, http.StatusServiceUnavailable, "unhealthy", "unhealthy", "healthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.repo.SetPingError(tt.postgresErr)
			RegisterHealthCheck("postgres", true, env.repo.Ping)
			RegisterHealthCheck("redis", false, func(context.Context) error { return tt.redisErr })

			w := env.do(http.MethodGet, "/health", nil, "")
			require.Equal(t, tt.wantCode, w.Code)

			var health HealthResponse
			decode(t, w, &health)
			assert.Equal(t, tt.wantStatus, health.Status)
			assert.Equal(t, tt.wantPostgres, health.Services["postgres"])
			assert.Equal(t, tt.wantRedis, health.Services["redis"])
		})
	}
}

func TestHealthCheck_NoDependencies(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthCheck_Details(t *testing.T) {
	env := newTestEnv(t)
	RegisterHealthDetail("access_log", func() map[string]interface{} {
		return map[string]interface{}{"status": "running", "buffer_usage": 3}
	})

	w := env.do(http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var health HealthResponse
	decode(t, w, &health)
	require.Contains(t, health.Details, "access_log")
	assert.Equal(t, "running", health.Details["access_log"]["status"])
	assert.Equal(t, float64(3), health.Details["access_log"]["buffer_usage"])
}

func TestHealthCheck_NoDetailsOmitted(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "details")
}
