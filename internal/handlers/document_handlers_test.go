package handlers

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nis-portal/portal-api/internal/models"
)

type uploadPart struct {
	field, name, contentType, body string
}

func (e *testEnv) upload(path string, fields map[string]string, parts []uploadPart) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(e.t, mw.WriteField(k, v))
	}
	for _, p := range parts {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="`+p.field+`"; filename="`+p.name+`"`)
		if p.contentType != "" {
			header.Set("Content-Type", p.contentType)
		}
		w, err := mw.CreatePart(header)
		require.NoError(e.t, err)
		_, err = w.Write([]byte(p.body))
		require.NoError(e.t, err)
	}
	require.NoError(e.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+e.officerToken())
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestUploadDocuments(t *testing.T) {
	env := newTestEnv(t)
	created := env.createRequest("NID1", 2)
	id := strconv.FormatInt(created.RequestID, 10)

	w := env.upload("/documents/upload", map[string]string{"requestId": id}, []uploadPart{
		{"files", "birth_certificate.PDF", "application/pdf", "%PDF-1.4"},
		{"files", "contributions.csv", "text/csv", "year,amount"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var result models.UploadResult
	decode(t, w, &result)
	assert.Equal(t, "Document(s) uploaded successfully", result.Message)
	require.Len(t, result.Documents, 2)
	for _, doc := range result.Documents {
		assert.Equal(t, created.RequestID, doc.RequestID)
		assert.Equal(t, int64(3), doc.UploadedBy)
		_, err := os.Stat(doc.FilePath)
		assert.NoError(t, err, "blob should exist at %s", doc.FilePath)
	}

	w = env.do(http.MethodGet, "/documents/request/"+id, nil, env.officerToken())
	require.Equal(t, http.StatusOK, w.Code)
	var docs []models.Document
	decode(t, w, &docs)
	assert.Len(t, docs, 2)
}

func TestUploadDocuments_RequestIDSources(t *testing.T) {
	env := newTestEnv(t)
	created := env.createRequest("NID1", 2)
	id := strconv.FormatInt(created.RequestID, 10)
	single := []uploadPart{{"file", "letter.txt", "text/plain", "hello"}}

	t.Run("request_id form field", func(t *testing.T) {
		w := env.upload("/documents/upload", map[string]string{"request_id": id}, single)
		assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	})

	t.Run("query parameter", func(t *testing.T) {
		w := env.upload("/documents/upload?requestId="+id, nil, single)
		assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	})

	assert.Equal(t, 2, env.repo.DocumentCount())
}

func TestUploadDocuments_Errors(t *testing.T) {
	env := newTestEnv(t)
	created := env.createRequest("NID1", 2)
	id := strconv.FormatInt(created.RequestID, 10)
	single := []uploadPart{{"files", "letter.txt", "text/plain", "hello"}}

	t.Run("missing request id", func(t *testing.T) {
		w := env.upload("/documents/upload", nil, single)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "Missing request id", errorMessage(t, w))
	})

	t.Run("non numeric request id", func(t *testing.T) {
		w := env.upload("/documents/upload", map[string]string{"requestId": "abc"}, single)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("no files", func(t *testing.T) {
		w := env.upload("/documents/upload", map[string]string{"requestId": id}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "No files uploaded", errorMessage(t, w))
	})

	t.Run("unknown request", func(t *testing.T) {
		w := env.upload("/documents/upload", map[string]string{"requestId": "999"}, single)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("not multipart", func(t *testing.T) {
		w := env.do(http.MethodPost, "/documents/upload", `{"requestId":1}`, env.officerToken())
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("file over the size limit", func(t *testing.T) {
		big := string(bytes.Repeat([]byte("x"), (1<<20)+1))
		w := env.upload("/documents/upload", map[string]string{"requestId": id}, []uploadPart{{"files", "big.bin", "", big}})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	assert.Zero(t, env.repo.DocumentCount())
}

func TestUploadDocuments_BodyLimit(t *testing.T) {
	env := newTestEnv(t)
	created := env.createRequest("NID1", 2)

	saved := UploadBodyLimit
	UploadBodyLimit = 512
	t.Cleanup(func() { UploadBodyLimit = saved })

	big := string(bytes.Repeat([]byte("x"), 4096))
	w := env.upload("/documents/upload", map[string]string{"requestId": strconv.FormatInt(created.RequestID, 10)},
		[]uploadPart{{"files", "big.bin", "", big}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListDocuments(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/documents/request/5", nil, env.officerToken())
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = env.do(http.MethodGet, "/documents/request/zero", nil, env.officerToken())
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
