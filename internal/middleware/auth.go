package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nis-portal/portal-api/internal/auth"
	"github.com/nis-portal/portal-api/internal/models"
	"github.com/nis-portal/portal-api/internal/observability"
	"go.uber.org/zap"
)

// CallerKey is the gin context key holding the authenticated models.Caller.
const CallerKey = "caller"

// AuthMiddleware verifies the bearer token and stores the caller in the context
func AuthMiddleware(tokens *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
			return
		}

		token, ok := auth.BearerToken(authHeader)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			return
		}

		claims, err := tokens.Verify(token)
		if err != nil {
			observability.Logger().Debug("rejected bearer token",
				zap.String("path", c.Request.URL.Path),
				zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(CallerKey, claims.Caller())
		c.Next()
	}
}

// RequireCapability rejects callers whose role does not grant capability
func RequireCapability(capability models.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := GetCaller(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}
		if !caller.Can(capability) {
			observability.Logger().Info("capability denied",
				zap.Int64("user_id", caller.UserID),
				zap.String("role", caller.RoleName),
				zap.String("capability", string(capability)))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
			return
		}
		c.Next()
	}
}

// GetCaller returns the caller stored by AuthMiddleware
func GetCaller(c *gin.Context) (models.Caller, bool) {
	value, exists := c.Get(CallerKey)
	if !exists {
		return models.Caller{}, false
	}
	caller, ok := value.(models.Caller)
	return caller, ok
}
