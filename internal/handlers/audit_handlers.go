package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nis-portal/portal-api/internal/models"
	"github.com/nis-portal/portal-api/internal/observability"
	"github.com/nis-portal/portal-api/internal/services"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

func auditServiceReady(c *gin.Context) bool {
	if services.AuditServiceInstance == nil {
		observability.Logger().Error("audit service not initialized")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Audit service unavailable"})
		return false
	}
	return true
}

// CreateAuditLog godoc
// @Summary Record an audit entry
// @Description Appends one entry. The actor defaults to the caller.
// @Tags audit
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body models.AuditInput true "Audit entry"
// @Success 201 {object} models.AuditCreated "Entry recorded"
// @Failure 400 {object} ErrorResponse "Missing action_type"
// @Failure 500 {object} ErrorResponse "Internal error"
// @Router /audit [post]
func CreateAuditLog(c *gin.Context) {
	ctx, span := otel.Tracer("").Start(c.Request.Context(), "CreateAuditLog")
	defer span.End()

	caller, ok := requireCaller(c)
	if !ok || !auditServiceReady(c) {
		return
	}

	var input models.AuditInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}
	span.SetAttributes(attribute.String("audit.action", input.ActionType))

	created, err := services.AuditServiceInstance.Create(ctx, caller, input)
	if err != nil {
		respondError(c, span, err, "Failed to record audit log")
		return
	}
	c.JSON(http.StatusCreated, created)
}

// ListAuditLogs godoc
// @Summary List audit entries
// @Tags audit
// @Produce json
// @Security BearerAuth
// @Param entity_type query string false "Entity type, e.g. REQUEST"
// @Param entity_id query int false "Entity ID"
// @Param limit query int false "Maximum entries (default 100, max 1000)"
// @Success 200 {array} models.AuditLogEntry "Entries, newest first"
// @Failure 400 {object} ErrorResponse "Invalid filter"
// @Failure 403 {object} ErrorResponse "Missing capability"
// @Failure 500 {object} ErrorResponse "Internal error"
// @Router /audit [get]
func ListAuditLogs(c *gin.Context) {
	ctx, span := otel.Tracer("").Start(c.Request.Context(), "ListAuditLogs")
	defer span.End()

	if !auditServiceReady(c) {
		return
	}

	filter := models.AuditFilter{
		EntityType: strings.ToUpper(strings.TrimSpace(c.Query("entity_type"))),
	}
	if raw := c.Query("entity_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid entity_id parameter"})
			return
		}
		filter.EntityID = &id
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid limit parameter"})
			return
		}
		filter.Limit = limit
	}

	entries, err := services.AuditServiceInstance.List(ctx, filter)
	if err != nil {
		respondError(c, span, err, "Failed to retrieve audit logs")
		return
	}
	span.SetAttributes(attribute.Int("audit.count", len(entries)))
	c.JSON(http.StatusOK, nonNil(entries))
}
