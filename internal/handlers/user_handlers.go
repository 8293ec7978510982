package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nis-portal/portal-api/internal/middleware"
	"github.com/nis-portal/portal-api/internal/models"
	"github.com/nis-portal/portal-api/internal/observability"
	"github.com/nis-portal/portal-api/internal/services"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

func userServiceReady(c *gin.Context) bool {
	if services.UserServiceInstance == nil {
		observability.Logger().Error("user service not initialized")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "User service unavailable"})
		return false
	}
	return true
}

// ListUsers godoc
// @Summary List users
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.UserSummary "Users"
// @Failure 403 {object} ErrorResponse "Missing capability"
// @Failure 500 {object} ErrorResponse "Internal error"
// @Router /users [get]
func ListUsers(c *gin.Context) {
	ctx, span := otel.Tracer("").Start(c.Request.Context(), "ListUsers")
	defer span.End()

	if !userServiceReady(c) {
		return
	}
	users, err := services.UserServiceInstance.List(ctx)
	if err != nil {
		respondError(c, span, err, "Failed to retrieve users")
		return
	}
	c.JSON(http.StatusOK, nonNil(users))
}

// CreateUser godoc
// @Summary Create a user
// @Description Creates an account. The optional role is a role name or id and must exist.
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body models.CreateUserInput true "Account details"
// @Success 201 {object} models.UserCreated "User created"
// @Failure 400 {object} ErrorResponse "Missing fields or unknown role"
// @Failure 403 {object} ErrorResponse "Missing capability"
// @Failure 409 {object} ErrorResponse "Email already registered"
// @Failure 500 {object} ErrorResponse "Internal error"
// @Router /users [post]
func CreateUser(c *gin.Context) {
	ctx, span := otel.Tracer("").Start(c.Request.Context(), "CreateUser")
	defer span.End()

	if !userServiceReady(c) {
		return
	}
	var input models.CreateUserInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	created, err := services.UserServiceInstance.Create(ctx, input)
	if err != nil {
		respondError(c, span, err, "Failed to create user")
		return
	}

	caller, _ := middleware.GetCaller(c)
	observability.Logger().Info("user created",
		zap.Int64("user_id", created.ID),
		zap.Int64("created_by", caller.UserID),
		zap.String("role", created.Role))
	c.JSON(http.StatusCreated, created)
}

// UpdateUser godoc
// @Summary Update a user
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "User ID"
// @Param body body models.UpdateUserInput true "Fields to change"
// @Success 200 {object} models.UserSummary "Updated user"
// @Failure 400 {object} ErrorResponse "No fields or unknown role"
// @Failure 403 {object} ErrorResponse "Missing capability"
// @Failure 404 {object} ErrorResponse "User not found"
// @Failure 409 {object} ErrorResponse "Email already registered"
// @Failure 500 {object} ErrorResponse "Internal error"
// @Router /users/{id} [patch]
func UpdateUser(c *gin.Context) {
	ctx, span := otel.Tracer("").Start(c.Request.Context(), "UpdateUser")
	defer span.End()

	if !userServiceReady(c) {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid user id"})
		return
	}
	span.SetAttributes(attribute.Int64("user.id", id))

	var input models.UpdateUserInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	updated, err := services.UserServiceInstance.Update(ctx, id, input)
	if err != nil {
		respondError(c, span, err, "Failed to update user")
		return
	}
	c.JSON(http.StatusOK, updated)
}
