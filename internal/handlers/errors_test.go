package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/nis-portal/portal-api/internal/models"
)

func TestRespondError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantMessage string
	}{
		{"validation", models.NewValidationError("Missing required fields", "status"), http.StatusBadRequest, "Missing required fields: status"},
		{"unauthorized", models.NewUnauthorizedError("Invalid credentials"), http.StatusUnauthorized, "Invalid credentials"},
		{"forbidden", models.NewForbiddenError("Insufficient permissions"), http.StatusForbidden, "Insufficient permissions"},
		{"not found", models.NewNotFoundError("Request not found"), http.StatusNotFound, "Request not found"},
		{"wrapped not found", fmt.Errorf("get request: %w", models.NewNotFoundError("Request not found")), http.StatusNotFound, "Request not found"},
		{"conflict", models.NewConflictError("Email already registered"), http.StatusConflict, "Email already registered"},
		{"rate limited", models.NewRateLimitedError("Too many login attempts"), http.StatusTooManyRequests, "Too many login attempts"},
		{"bare sentinel", models.ErrNotFound, http.StatusNotFound, "not found"},
		{"infrastructure", errors.New("pq: connection reset"), http.StatusInternalServerError, "Something failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/x", nil)
			_, span := noop.NewTracerProvider().Tracer("").Start(c.Request.Context(), "test")

			respondError(c, span, tt.err, "Something failed")

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantMessage, errorMessage(t, w))
		})
	}
}
