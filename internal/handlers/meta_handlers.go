package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nis-portal/portal-api/internal/observability"
	"github.com/nis-portal/portal-api/internal/services"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

func metaServiceReady(c *gin.Context) bool {
	if services.MetaServiceInstance == nil {
		observability.Logger().Error("meta service not initialized")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Metadata unavailable"})
		return false
	}
	return true
}

// ListCountries godoc
// @Summary List member countries
// @Tags meta
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Country "Countries"
// @Router /meta/countries [get]
func ListCountries(c *gin.Context) {
	if !metaServiceReady(c) {
		return
	}
	c.JSON(http.StatusOK, services.MetaServiceInstance.Countries())
}

// ListBenefitTypes godoc
// @Summary List benefit types
// @Tags meta
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.BenefitType "Benefit types"
// @Router /meta/benefit-types [get]
func ListBenefitTypes(c *gin.Context) {
	if !metaServiceReady(c) {
		return
	}
	c.JSON(http.StatusOK, services.MetaServiceInstance.BenefitTypes())
}

// ListRoles godoc
// @Summary List user roles
// @Description Reads roles from the database once and caches them. Falls back to the built-in roles when the table is unavailable or empty.
// @Tags meta
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Role "Roles"
// @Router /meta/roles [get]
func ListRoles(c *gin.Context) {
	ctx, span := otel.Tracer("").Start(c.Request.Context(), "ListRoles")
	defer span.End()

	if !metaServiceReady(c) {
		return
	}
	roles := services.MetaServiceInstance.Roles(ctx)
	span.SetAttributes(attribute.Int("roles.count", len(roles)))
	c.JSON(http.StatusOK, roles)
}
