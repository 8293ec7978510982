package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nis-portal/portal-api/internal/models"
	"github.com/nis-portal/portal-api/internal/observability"
	"github.com/nis-portal/portal-api/internal/services"
	"github.com/nis-portal/portal-api/internal/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Login godoc
// @Summary Log in
// @Description Verifies email and password and returns a bearer token. Attempts are throttled per email and client address.
// @Tags auth
// @Accept json
// @Produce json
// @Param body body models.LoginInput true "Credentials"
// @Success 200 {object} models.LoginResponse "Token issued"
// @Failure 400 {object} ErrorResponse "Missing fields"
// @Failure 401 {object} ErrorResponse "Invalid credentials"
// @Failure 429 {object} ErrorResponse "Too many attempts"
// @Failure 500 {object} ErrorResponse "Internal error"
// @Router /auth/login [post]
func Login(c *gin.Context) {
	ctx, span := otel.Tracer("").Start(c.Request.Context(), "Login")
	defer span.End()
	span.SetAttributes(attribute.String("operation", "login"))

	if services.UserServiceInstance == nil {
		observability.Logger().Error("user service not initialized")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Authentication unavailable"})
		return
	}

	ctx, parseSpan := utils.TraceInputParsing(ctx, "login_input")
	var input models.LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		utils.RecordErrorInSpan(parseSpan, err, nil)
		parseSpan.End()
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}
	parseSpan.End()

	resp, err := services.UserServiceInstance.Login(ctx, input, c.ClientIP())
	if err != nil {
		respondError(c, span, err, "Login failed")
		return
	}

	span.SetAttributes(attribute.Int64("user.id", resp.User.ID))
	c.JSON(http.StatusOK, resp)
}

// Register godoc
// @Summary Register an account
// @Description Creates an account with the default role and office. Any role in the body is ignored.
// @Tags auth
// @Accept json
// @Produce json
// @Param body body models.CreateUserInput true "Account details"
// @Success 201 {object} models.UserCreated "Account created"
// @Failure 400 {object} ErrorResponse "Missing or invalid fields"
// @Failure 409 {object} ErrorResponse "Email already registered"
// @Failure 500 {object} ErrorResponse "Internal error"
// @Router /auth/register [post]
func Register(c *gin.Context) {
	ctx, span := otel.Tracer("").Start(c.Request.Context(), "Register")
	defer span.End()

	if services.UserServiceInstance == nil {
		observability.Logger().Error("user service not initialized")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Registration unavailable"})
		return
	}

	var input models.CreateUserInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	created, err := services.UserServiceInstance.Register(ctx, input)
	if err != nil {
		respondError(c, span, err, "Failed to register user")
		return
	}

	observability.Logger().Info("user registered",
		zap.Int64("user_id", created.ID),
		zap.String("role", created.Role))
	c.JSON(http.StatusCreated, created)
}
