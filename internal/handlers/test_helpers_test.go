package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nis-portal/portal-api/internal/auth"
	"github.com/nis-portal/portal-api/internal/logging"
	"github.com/nis-portal/portal-api/internal/models"
	"github.com/nis-portal/portal-api/internal/services"
	"github.com/nis-portal/portal-api/internal/storage"
	"github.com/nis-portal/portal-api/internal/store/storetest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testPassword = "correct-horse"

// testEnv wires every service onto an in-memory store.
type testEnv struct {
	t      *testing.T
	repo   *storetest.MemoryStore
	tokens *auth.TokenManager
	blobs  *storage.LocalStore
	router *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo := storetest.NewMemoryStore()
	tokens := auth.NewTokenManager("handlers-test-secret", time.Hour, "nis-portal")
	blobs, err := storage.NewLocalStore(t.TempDir(), logging.Logger)
	require.NoError(t, err)

	auditSvc := services.NewAuditService(repo, logging.Logger)
	services.AuditServiceInstance = auditSvc
	services.RequestServiceInstance = services.NewRequestService(repo, auditSvc, services.RequestSettings{}, logging.Logger)
	services.DocumentServiceInstance = services.NewDocumentService(repo, blobs, 1<<20, logging.Logger)
	services.MetaServiceInstance = services.NewMetaService(repo, logging.Logger)
	services.UserServiceInstance = services.NewUserService(repo, tokens,
		services.NewRateLimiter(nil, "login:", 3, time.Minute, logging.Logger), logging.Logger)

	t.Cleanup(func() {
		services.AuditServiceInstance = nil
		services.RequestServiceInstance = nil
		services.DocumentServiceInstance = nil
		services.MetaServiceInstance = nil
		services.UserServiceInstance = nil
		ResetHealthChecks()
	})

	router := gin.New()
	RegisterRoutes(router, tokens)

	return &testEnv{t: t, repo: repo, tokens: tokens, blobs: blobs, router: router}
}

// seedUser stores an account with testPassword and returns its id.
func (e *testEnv) seedUser(first, last, email string, roleID int64) int64 {
	e.t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(e.t, err)
	return e.repo.SeedUser(models.User{
		FirstName:    first,
		LastName:     last,
		Email:        email,
		PasswordHash: string(hash),
		RoleID:       roleID,
	})
}

// tokenFor issues a token for a caller with the given role.
func (e *testEnv) tokenFor(userID int64, roleID int64, roleName string) string {
	e.t.Helper()
	token, _, err := e.tokens.Issue(&models.User{ID: userID, RoleID: roleID, RoleName: roleName})
	require.NoError(e.t, err)
	return token
}

func (e *testEnv) adminToken() string {
	return e.tokenFor(1, 1, models.RoleAdministrator)
}

func (e *testEnv) officerToken() string {
	return e.tokenFor(3, 3, models.RoleOfficer)
}

// do sends a JSON request. A nil body sends no payload; an empty token sends
// no Authorization header.
func (e *testEnv) do(method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	e.t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			payload, err := json.Marshal(b)
			require.NoError(e.t, err)
			reader = bytes.NewReader(payload)
		}
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// createRequest creates a request for nationalID and returns its id.
func (e *testEnv) createRequest(nationalID string, targetCountryID int64) models.CreateRequestResult {
	e.t.Helper()
	w := e.do(http.MethodPost, "/requests", map[string]interface{}{
		"first_name":        "Jane",
		"last_name":         "Doe",
		"dob":               "1960-01-01",
		"national_id":       nationalID,
		"target_country_id": targetCountryID,
		"benefit_type_id":   1,
	}, e.officerToken())
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
	var result models.CreateRequestResult
	decode(e.t, w, &result)
	return result
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	decode(t, w, &resp)
	return resp.Error
}
