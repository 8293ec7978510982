package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/nis-portal/portal-api/internal/middleware"
	"github.com/nis-portal/portal-api/internal/models"
	"github.com/nis-portal/portal-api/internal/observability"
	"github.com/nis-portal/portal-api/internal/utils"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ErrorResponse is the body of every failed call.
type ErrorResponse struct {
	Error string `json:"error" example:"Request not found"`
}

// errorStatus maps an error kind to its HTTP status.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as JSON. Known error kinds carry their own
// message; anything else is logged and reported as fallback.
func respondError(c *gin.Context, span trace.Span, err error, fallback string) {
	status := errorStatus(err)
	message := fallback

	var portalErr *models.Error
	if status != http.StatusInternalServerError && errors.As(err, &portalErr) {
		message = portalErr.Error()
	} else if status != http.StatusInternalServerError {
		message = err.Error()
	}

	if status == http.StatusInternalServerError {
		utils.RecordErrorInSpan(span, err, map[string]interface{}{
			"http.route": c.FullPath(),
		})
		observability.Logger().Error(fallback,
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", c.GetString(middleware.RequestIDKey)),
			zap.Error(err))
		_ = c.Error(err)
	} else {
		utils.AddSpanAttribute(span, "error.kind", http.StatusText(status))
	}

	c.JSON(status, ErrorResponse{Error: message})
}

// pathID parses a positive integer path parameter.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// requireCaller returns the authenticated caller or writes a 401.
func requireCaller(c *gin.Context) (models.Caller, bool) {
	caller, ok := middleware.GetCaller(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Authentication required"})
		return models.Caller{}, false
	}
	return caller, true
}

// nonNil renders empty results as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
