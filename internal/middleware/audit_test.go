package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nis-portal/portal-api/internal/accesslog"
	"github.com/nis-portal/portal-api/internal/models"
)

type recordingAccessLog struct {
	mu      sync.Mutex
	entries []accesslog.Entry
	err     error
}

func (r *recordingAccessLog) Log(_ context.Context, entry accesslog.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return r.err
}

func auditRouter(logger AccessLogger) *gin.Engine {
	router := gin.New()
	router.Use(RequestID(), AuditMiddleware(logger))
	echo := func(status int) gin.HandlerFunc {
		return func(c *gin.Context) {
			body, _ := io.ReadAll(c.Request.Body)
			c.Data(status, "application/json", body)
		}
	}
	router.GET("/requests", echo(http.StatusOK))
	router.POST("/requests", echo(http.StatusCreated))
	router.PUT("/requests/:id", echo(http.StatusBadRequest))
	router.POST("/health", echo(http.StatusOK))
	router.POST("/metrics", echo(http.StatusOK))
	router.POST("/documents/upload", echo(http.StatusCreated))
	router.PUT("/requests/:id/assign", func(c *gin.Context) {
		c.Set(CallerKey, models.Caller{UserID: 9, RoleName: models.RoleSupervisor})
		c.Status(http.StatusOK)
	})
	return router
}

func TestAuditMiddleware_RecordsSuccessfulWrites(t *testing.T) {
	logs := &recordingAccessLog{}
	router := auditRouter(logs)

	payload := `{"first_name":"Jane","national_id":"NID1"}`
	req := httptest.NewRequest(http.MethodPost, "/requests?src=ui", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "req-123")
	req.Header.Set("User-Agent", "portal-test")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, payload, w.Body.String(), "handler must still see the full body")

	require.Len(t, logs.entries, 1)
	entry := logs.entries[0]
	assert.Equal(t, http.MethodPost, entry.Method)
	assert.Equal(t, "/requests", entry.Path)
	assert.Equal(t, "/requests", entry.Route)
	assert.Equal(t, "src=ui", entry.Query)
	assert.Equal(t, http.StatusCreated, entry.Status)
	assert.Equal(t, "req-123", entry.RequestID)
	assert.Equal(t, "portal-test", entry.UserAgent)

	body := entry.Body.(map[string]interface{})
	assert.Equal(t, "Jane", body["first_name"])
	assert.Equal(t, "********", body["national_id"])
}

func TestAuditMiddleware_CapturesCallerSetDownstream(t *testing.T) {
	logs := &recordingAccessLog{}
	router := auditRouter(logs)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/requests/5/assign", nil))

	require.Len(t, logs.entries, 1)
	assert.Equal(t, int64(9), logs.entries[0].UserID)
	assert.Nil(t, logs.entries[0].Body)
}

func TestAuditMiddleware_Skips(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
	}{
		{"read", http.MethodGet, "/requests"},
		{"failed write", http.MethodPut, "/requests/1"},
		{"health", http.MethodPost, "/health"},
		{"metrics", http.MethodPost, "/metrics"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs := &recordingAccessLog{}
			w := httptest.NewRecorder()
			auditRouter(logs).ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, bytes.NewBufferString(`{}`)))
			assert.Empty(t, logs.entries)
		})
	}
}

func TestAuditMiddleware_DoesNotBufferUploads(t *testing.T) {
	logs := &recordingAccessLog{}
	req := httptest.NewRequest(http.MethodPost, "/documents/upload", bytes.NewBufferString("--x\r\n"))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	w := httptest.NewRecorder()
	auditRouter(logs).ServeHTTP(w, req)

	require.Len(t, logs.entries, 1)
	assert.Nil(t, logs.entries[0].Body)
	assert.Equal(t, "--x\r\n", w.Body.String())
}

func TestAuditMiddleware_LoggerFailureDoesNotAffectResponse(t *testing.T) {
	logs := &recordingAccessLog{err: errors.New("mongo unavailable")}
	w := httptest.NewRecorder()
	auditRouter(logs).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/requests", bytes.NewBufferString(`{}`)))

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, logs.entries, 1)
}

func TestAuditMiddleware_NilLogger(t *testing.T) {
	w := httptest.NewRecorder()
	auditRouter(nil).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/requests", bytes.NewBufferString(`{}`)))
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestAuditMiddleware_LargeBodyStillReachesHandler(t *testing.T) {
	logs := &recordingAccessLog{}
	large := bytes.Repeat([]byte("a"), maxCapturedBody+100)
	w := httptest.NewRecorder()
	auditRouter(logs).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/requests", bytes.NewReader(large)))

	assert.Equal(t, len(large), w.Body.Len())
	require.Len(t, logs.entries, 1)
	assert.IsType(t, "", logs.entries[0].Body)
}

func TestAuditMiddleware_OversizedJSONBodyIsOmitted(t *testing.T) {
	logs := &recordingAccessLog{}
	payload := `{"first_name":"Jane","dob":"1960-01-01","national_id":"NID-SECRET-123","password":"hunter2","description":"` +
		strings.Repeat("x", maxCapturedBody) + `"}`

	req := httptest.NewRequest(http.MethodPost, "/requests", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	auditRouter(logs).ServeHTTP(w, req)

	assert.Equal(t, payload, w.Body.String())
	require.Len(t, logs.entries, 1)
	body, ok := logs.entries[0].Body.(string)
	require.True(t, ok)
	assert.Equal(t, accesslog.OmittedBody(maxCapturedBody+1), body)
	assert.NotContains(t, body, "NID-SECRET-123")
	assert.NotContains(t, body, "1960-01-01")
	assert.NotContains(t, body, "hunter2")
}

func TestAuditMiddleware_BodyAtCaptureLimitIsMasked(t *testing.T) {
	logs := &recordingAccessLog{}
	prefix := `{"national_id":"NID-SECRET-123","description":"`
	suffix := `"}`
	payload := prefix + strings.Repeat("x", maxCapturedBody-len(prefix)-len(suffix)) + suffix
	require.Len(t, payload, maxCapturedBody)

	req := httptest.NewRequest(http.MethodPost, "/requests", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	auditRouter(logs).ServeHTTP(httptest.NewRecorder(), req)

	require.Len(t, logs.entries, 1)
	body, ok := logs.entries[0].Body.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "********", body["national_id"])
}
