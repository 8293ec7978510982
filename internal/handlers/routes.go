package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/nis-portal/portal-api/internal/auth"
	"github.com/nis-portal/portal-api/internal/middleware"
	"github.com/nis-portal/portal-api/internal/models"
)

// RegisterRoutes mounts the portal API on router. Every route except login,
// registration and health requires a bearer token.
func RegisterRoutes(router gin.IRouter, tokens *auth.TokenManager) {
	router.GET("/health", HealthCheck)

	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", Login)
		authGroup.POST("/register", Register)
	}

	protected := router.Group("")
	protected.Use(middleware.AuthMiddleware(tokens))

	requests := protected.Group("/requests")
	{
		requests.POST("", CreateRequest)
		requests.GET("", ListRequests)
		requests.GET("/:id", GetRequest)
		requests.PUT("/:id", UpdateRequestStatus)
		requests.PATCH("/:id", UpdateRequestStatus)
		requests.PUT("/:id/assign", middleware.RequireCapability(models.CapAssignRequests), AssignRequest)
	}

	documents := protected.Group("/documents")
	{
		documents.POST("/upload", UploadDocuments)
		documents.GET("/request/:id", ListDocuments)
	}

	meta := protected.Group("/meta")
	{
		meta.GET("/countries", ListCountries)
		meta.GET("/benefit-types", ListBenefitTypes)
		meta.GET("/roles", ListRoles)
	}

	users := protected.Group("/users")
	users.Use(middleware.RequireCapability(models.CapManageUsers))
	{
		users.GET("", ListUsers)
		users.POST("", CreateUser)
		users.PATCH("/:id", UpdateUser)
	}

	audit := protected.Group("/audit")
	{
		audit.POST("", CreateAuditLog)
		audit.GET("", middleware.RequireCapability(models.CapViewAudit), ListAuditLogs)
	}
}
