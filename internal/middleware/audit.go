package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nis-portal/portal-api/internal/accesslog"
	"github.com/nis-portal/portal-api/internal/observability"
	"go.uber.org/zap"
)

// AccessLogger receives one entry per successful write call.
type AccessLogger interface {
	Log(ctx context.Context, entry accesslog.Entry) error
}

// maxCapturedBody bounds how much of a JSON body is buffered for the trail.
const maxCapturedBody = 64 << 10

// AuditMiddleware records every successful POST/PUT/PATCH/DELETE in the
// access trail
func AuditMiddleware(logger AccessLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if logger == nil || !isWriteMethod(c.Request.Method) {
			c.Next()
			return
		}

		path := c.Request.URL.Path
		if skipAccessLog(path) {
			c.Next()
			return
		}

		start := time.Now()
		bodyBytes, truncated := captureBody(c)

		c.Next()

		status := c.Writer.Status()
		if status < 200 || status >= 300 {
			return
		}

		entry := accesslog.Entry{
			Method:     c.Request.Method,
			Path:       path,
			Route:      c.FullPath(),
			Query:      c.Request.URL.RawQuery,
			Status:     status,
			IPAddress:  c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
			RequestID:  c.GetString(RequestIDKey),
			DurationMS: time.Since(start).Milliseconds(),
			Timestamp:  time.Now().UTC(),
		}
		if truncated {
			entry.Body = accesslog.OmittedBody(len(bodyBytes))
		} else {
			entry.Body = accesslog.SanitizeBody(bodyBytes)
		}
		if caller, ok := GetCaller(c); ok {
			entry.UserID = caller.UserID
		}

		if err := logger.Log(c.Request.Context(), entry); err != nil {
			observability.Logger().Warn("failed to record access log",
				zap.Error(err),
				zap.String("path", path),
				zap.String("method", entry.Method),
			)
		}
	}
}

func isWriteMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func skipAccessLog(path string) bool {
	return strings.HasPrefix(path, "/health") ||
		strings.HasPrefix(path, "/metrics") ||
		strings.HasPrefix(path, "/swagger")
}

// captureBody reads a JSON body and restores it for the handler. Uploads are
// never buffered. truncated is set when the body exceeds maxCapturedBody.
func captureBody(c *gin.Context) (head []byte, truncated bool) {
	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		return nil, false
	}
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		return nil, false
	}

	head, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCapturedBody+1))
	if err != nil {
		return nil, false
	}
	c.Request.Body = readCloser{
		Reader: io.MultiReader(bytes.NewReader(head), c.Request.Body),
		Closer: c.Request.Body,
	}
	return head, len(head) > maxCapturedBody
}

type readCloser struct {
	io.Reader
	io.Closer
}
