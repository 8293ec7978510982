package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nis-portal/portal-api/internal/logging"
	"github.com/nis-portal/portal-api/internal/models"
	"github.com/nis-portal/portal-api/internal/observability"
	"github.com/nis-portal/portal-api/internal/storage"
	"github.com/nis-portal/portal-api/internal/store"
	"github.com/nis-portal/portal-api/internal/utils"
)

// DocumentService stores uploaded files and their metadata rows.
type DocumentService struct {
	repo     store.Repository
	blobs    storage.BlobStore
	maxBytes int64
	logger   *logging.SafeLogger
	now      func() time.Time
}

// NewDocumentService creates a document service. maxBytes <= 0 disables the
// per-file size check.
func NewDocumentService(repo store.Repository, blobs storage.BlobStore, maxBytes int64, logger *logging.SafeLogger) *DocumentService {
	return &DocumentService{repo: repo, blobs: blobs, maxBytes: maxBytes, logger: logger, now: time.Now}
}

// Global document service instance
var DocumentServiceInstance *DocumentService

type storedBlob struct {
	key string
	doc models.Document
}

// Attach writes every file to the blob store and records all document rows
// in one transaction. Either every file is attached or none is: on failure
// the rows are rolled back and written blobs are removed.
func (s *DocumentService) Attach(ctx context.Context, caller models.Caller, requestID int64, files []models.UploadedFile) (*models.UploadResult, error) {
	ctx, span, cleanup := utils.TraceOperation(ctx, "document.attach", map[string]interface{}{
		"request.id": requestID,
		"file.count": len(files),
	})
	defer cleanup()

	if requestID <= 0 {
		return nil, models.NewValidationError("Missing request id")
	}
	if len(files) == 0 {
		return nil, models.NewValidationError("No files uploaded")
	}
	for _, f := range files {
		if s.maxBytes > 0 && f.Size > s.maxBytes {
			return nil, models.NewValidationError(fmt.Sprintf("File %s exceeds the %d byte limit", f.Name, s.maxBytes))
		}
	}

	exists, err := s.repo.RequestExists(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("check request: %w", err)
	}
	if !exists {
		return nil, models.NewNotFoundError("Request not found")
	}

	stored := make([]storedBlob, 0, len(files))
	for _, f := range files {
		blob, err := s.writeBlob(ctx, caller, requestID, f)
		if err != nil {
			s.discard(ctx, stored)
			observability.DocumentsUploaded.WithLabelValues("failed").Add(float64(len(files)))
			utils.RecordErrorInSpan(span, err, nil)
			return nil, err
		}
		stored = append(stored, blob)
	}

	docs := make([]models.Document, 0, len(stored))
	err = s.repo.InTx(ctx, func(tx store.Repository) error {
		docs = docs[:0]
		for _, b := range stored {
			doc := b.doc
			id, err := tx.InsertDocument(ctx, &doc)
			if err != nil {
				return fmt.Errorf("insert document %s: %w", doc.FileName, err)
			}
			doc.ID = id
			docs = append(docs, doc)
		}
		return nil
	})
	if err != nil {
		s.discard(ctx, stored)
		observability.DocumentsUploaded.WithLabelValues("failed").Add(float64(len(files)))
		utils.RecordErrorInSpan(span, err, nil)
		return nil, err
	}

	observability.DocumentsUploaded.WithLabelValues("success").Add(float64(len(docs)))
	s.logger.Info("documents attached",
		zap.Int64("request_id", requestID),
		zap.Int("count", len(docs)),
		zap.Int64("caller_id", caller.UserID))

	return &models.UploadResult{
		Message:   "Document(s) uploaded successfully",
		RequestID: requestID,
		Documents: docs,
	}, nil
}

func (s *DocumentService) writeBlob(ctx context.Context, caller models.Caller, requestID int64, f models.UploadedFile) (storedBlob, error) {
	name := filepath.Base(strings.TrimSpace(f.Name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "upload"
	}
	contentType := strings.TrimSpace(f.ContentType)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if f.Open == nil {
		return storedBlob{}, fmt.Errorf("file %s has no content", name)
	}

	body, err := f.Open()
	if err != nil {
		return storedBlob{}, fmt.Errorf("open %s: %w", name, err)
	}
	defer body.Close()

	key := storage.DocumentKey(requestID, name)
	location, err := s.blobs.Put(ctx, key, body, f.Size, contentType)
	if err != nil {
		return storedBlob{}, fmt.Errorf("store %s: %w", name, err)
	}

	return storedBlob{
		key: key,
		doc: models.Document{
			RequestID:  requestID,
			FileName:   name,
			FilePath:   location,
			FileType:   contentType,
			FileSize:   f.Size,
			UploadedBy: caller.UserID,
			UploadedAt: s.now().UTC(),
		},
	}, nil
}

// discard removes blobs of a failed upload. Errors are only logged.
func (s *DocumentService) discard(ctx context.Context, stored []storedBlob) {
	for _, b := range stored {
		if err := s.blobs.Delete(context.WithoutCancel(ctx), b.key); err != nil {
			s.logger.Warn("failed to remove orphaned blob", zap.String("key", b.key), zap.Error(err))
		}
	}
}

// List returns the documents of a request, newest first.
func (s *DocumentService) List(ctx context.Context, requestID int64) ([]models.Document, error) {
	if requestID <= 0 {
		return nil, models.NewValidationError("Invalid request id")
	}
	docs, err := s.repo.ListDocuments(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}
