package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nis-portal/portal-api/internal/models"
	"github.com/nis-portal/portal-api/internal/observability"
	"github.com/nis-portal/portal-api/internal/services"
	"github.com/nis-portal/portal-api/internal/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// UploadBodyLimit caps the whole multipart body of an upload.
var UploadBodyLimit int64 = 200 << 20

// multipartMemory is how much of a multipart form is held in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

func documentServiceReady(c *gin.Context) bool {
	if services.DocumentServiceInstance == nil {
		observability.Logger().Error("document service not initialized")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Document service unavailable"})
		return false
	}
	return true
}

// UploadDocuments godoc
// @Summary Upload documents
// @Description Attaches one or more files to a request. Either every file is stored or none is.
// @Tags documents
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param requestId formData int false "Request ID (also accepted as request_id or as a query parameter)"
// @Param files formData file true "Files to attach (field files, or file for a single upload)"
// @Success 201 {object} models.UploadResult "Documents stored"
// @Failure 400 {object} ErrorResponse "Missing request id or files"
// @Failure 404 {object} ErrorResponse "Request not found"
// @Failure 500 {object} ErrorResponse "Internal error"
// @Router /documents/upload [post]
func UploadDocuments(c *gin.Context) {
	ctx, span := otel.Tracer("").Start(c.Request.Context(), "UploadDocuments")
	defer span.End()

	caller, ok := requireCaller(c)
	if !ok || !documentServiceReady(c) {
		return
	}

	ctx, parseSpan := utils.TraceInputParsing(ctx, "multipart_form")
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, UploadBodyLimit)
	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil {
		utils.RecordErrorInSpan(parseSpan, err, nil)
		parseSpan.End()
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Upload too large"})
			return
		}
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "No files uploaded"})
			return
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid multipart form"})
		return
	}
	defer func() { _ = c.Request.MultipartForm.RemoveAll() }()

	requestID, err := uploadRequestID(c)
	if err != nil {
		parseSpan.End()
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request id"})
		return
	}
	headers := uploadedFileHeaders(c.Request.MultipartForm)
	utils.AddSpanAttribute(parseSpan, "file.count", len(headers))
	parseSpan.End()

	span.SetAttributes(
		attribute.Int64("request.id", requestID),
		attribute.Int("file.count", len(headers)),
	)

	files := make([]models.UploadedFile, 0, len(headers))
	for _, fh := range headers {
		files = append(files, toUploadedFile(fh))
	}

	result, err := services.DocumentServiceInstance.Attach(ctx, caller, requestID, files)
	if err != nil {
		respondError(c, span, err, "Failed to upload documents")
		return
	}
	c.JSON(http.StatusCreated, result)
}

// uploadRequestID reads the request id from the form or the query string.
// A missing id yields zero and is rejected by the service.
func uploadRequestID(c *gin.Context) (int64, error) {
	var raw string
	for _, key := range []string{"requestId", "request_id"} {
		if v := strings.TrimSpace(c.Request.FormValue(key)); v != "" {
			raw = v
			break
		}
	}
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func uploadedFileHeaders(form *multipart.Form) []*multipart.FileHeader {
	if form == nil {
		return nil
	}
	headers := append([]*multipart.FileHeader{}, form.File["files"]...)
	return append(headers, form.File["file"]...)
}

func toUploadedFile(fh *multipart.FileHeader) models.UploadedFile {
	return models.UploadedFile{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Open: func() (io.ReadCloser, error) {
			f, err := fh.Open()
			if err != nil {
				return nil, err
			}
			return f, nil
		},
	}
}

// ListDocuments godoc
// @Summary List documents of a request
// @Tags documents
// @Produce json
// @Security BearerAuth
// @Param id path int true "Request ID"
// @Success 200 {array} models.Document "Documents, newest first"
// @Failure 400 {object} ErrorResponse "Invalid id"
// @Failure 500 {object} ErrorResponse "Internal error"
// @Router /documents/request/{id} [get]
func ListDocuments(c *gin.Context) {
	ctx, span := otel.Tracer("").Start(c.Request.Context(), "ListDocuments")
	defer span.End()

	if !documentServiceReady(c) {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request id"})
		return
	}

	docs, err := services.DocumentServiceInstance.List(ctx, id)
	if err != nil {
		respondError(c, span, err, "Failed to retrieve documents")
		return
	}
	c.JSON(http.StatusOK, nonNil(docs))
}
