package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nis-portal/portal-api/internal/auth"
	"github.com/nis-portal/portal-api/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testTokens() *auth.TokenManager {
	return auth.NewTokenManager("middleware-test-secret", time.Hour, "nis-portal")
}

func issueToken(t *testing.T, tokens *auth.TokenManager, roleName string) string {
	t.Helper()
	token, _, err := tokens.Issue(&models.User{ID: 42, RoleID: 3, RoleName: roleName})
	require.NoError(t, err)
	return token
}

func TestAuthMiddleware(t *testing.T) {
	tokens := testTokens()
	other := auth.NewTokenManager("another-secret", time.Hour, "nis-portal")

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid token", "Bearer " + issueToken(t, tokens, models.RoleOfficer), http.StatusOK},
		{"lowercase scheme", "bearer " + issueToken(t, tokens, models.RoleOfficer), http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"foreign signature", "Bearer " + issueToken(t, other, models.RoleOfficer), http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(AuthMiddleware(tokens))
			router.GET("/requests", func(c *gin.Context) {
				caller, ok := GetCaller(c)
				require.True(t, ok)
				c.JSON(http.StatusOK, gin.H{"user_id": caller.UserID})
			})

			req := httptest.NewRequest(http.MethodGet, "/requests", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				assert.JSONEq(t, `{"user_id":42}`, w.Body.String())
			} else {
				assert.Contains(t, w.Body.String(), `"error"`)
			}
		})
	}
}

func TestRequireCapability(t *testing.T) {
	tokens := testTokens()

	tests := []struct {
		name       string
		role       string
		capability models.Capability
		wantStatus int
	}{
		{"administrator manages users", models.RoleAdministrator, models.CapManageUsers, http.StatusOK},
		{"administrator views audit", models.RoleAdministrator, models.CapViewAudit, http.StatusOK},
		{"supervisor assigns", models.RoleSupervisor, models.CapAssignRequests, http.StatusOK},
		{"supervisor cannot manage users", models.RoleSupervisor, models.CapManageUsers, http.StatusForbidden},
		{"officer cannot assign", models.RoleOfficer, models.CapAssignRequests, http.StatusForbidden},
		{"external officer cannot view audit", models.RoleExternalOfficer, models.CapViewAudit, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.GET("/guarded", AuthMiddleware(tokens), RequireCapability(tt.capability), func(c *gin.Context) {
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
			req.Header.Set("Authorization", "Bearer "+issueToken(t, tokens, tt.role))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestRequireCapability_WithoutAuthentication(t *testing.T) {
	router := gin.New()
	router.GET("/guarded", RequireCapability(models.CapViewAudit), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/guarded", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetCaller_WrongType(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Set(CallerKey, "not a caller")

	_, ok := GetCaller(c)
	assert.False(t, ok)
}
