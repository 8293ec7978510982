package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nis-portal/portal-api/internal/logging"
	"github.com/nis-portal/portal-api/internal/models"
	"github.com/nis-portal/portal-api/internal/observability"
	"github.com/nis-portal/portal-api/internal/store"
	"github.com/nis-portal/portal-api/internal/utils"
)

// AuditRecorder appends audit entries. Business operations depend on this
// interface so a failing sink can never fail them.
type AuditRecorder interface {
	Record(ctx context.Context, entry models.AuditLogEntry) (int64, error)
}

// AuditService writes and reads the audit_logs table.
type AuditService struct {
	repo   store.AuditStore
	logger *logging.SafeLogger
}

func NewAuditService(repo store.AuditStore, logger *logging.SafeLogger) *AuditService {
	return &AuditService{repo: repo, logger: logger}
}

// Global audit service instance
var AuditServiceInstance *AuditService

// Record appends one entry.
func (s *AuditService) Record(ctx context.Context, entry models.AuditLogEntry) (int64, error) {
	ctx, span := utils.TraceAuditLogging(ctx, entry.ActionType, entry.EntityType)
	defer span.End()

	id, err := s.repo.InsertAuditLog(ctx, &entry)
	if err != nil {
		utils.RecordErrorInSpan(span, err, nil)
		return 0, fmt.Errorf("insert audit log: %w", err)
	}
	return id, nil
}

// Create validates a client-submitted entry and records it.
func (s *AuditService) Create(ctx context.Context, caller models.Caller, in models.AuditInput) (*models.AuditCreated, error) {
	entry, err := in.Entry(caller.UserID)
	if err != nil {
		return nil, err
	}
	id, err := s.Record(ctx, entry)
	if err != nil {
		return nil, err
	}
	return &models.AuditCreated{Message: "Audit log recorded", LogID: id}, nil
}

// List returns entries newest first.
func (s *AuditService) List(ctx context.Context, filter models.AuditFilter) ([]models.AuditLogEntry, error) {
	entries, err := s.repo.ListAuditLogs(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return entries, nil
}

// recordBestEffort writes entry and only logs and counts a failure.
func recordBestEffort(ctx context.Context, recorder AuditRecorder, entry models.AuditLogEntry, logger *logging.SafeLogger) {
	if recorder == nil {
		return
	}
	if _, err := recorder.Record(ctx, entry); err != nil {
		observability.AuditFailures.WithLabelValues(entry.ActionType).Inc()
		fields := []zap.Field{
			zap.String("action_type", entry.ActionType),
			zap.String("entity_type", entry.EntityType),
			zap.Error(err),
		}
		if entry.EntityID != nil {
			fields = append(fields, zap.Int64("entity_id", *entry.EntityID))
		}
		logger.Warn("audit entry dropped", fields...)
	}
}
