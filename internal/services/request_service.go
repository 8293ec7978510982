package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nis-portal/portal-api/internal/logging"
	"github.com/nis-portal/portal-api/internal/models"
	"github.com/nis-portal/portal-api/internal/observability"
	"github.com/nis-portal/portal-api/internal/store"
	"github.com/nis-portal/portal-api/internal/utils"
)

// RequestSettings holds the fallbacks and targets used by RequestService.
type RequestSettings struct {
	// DefaultRequestingCountryID is used when the caller has no office country.
	DefaultRequestingCountryID int64
	// DefaultCountryCode prefixes request numbers when the target country
	// row or its code is missing.
	DefaultCountryCode string
	// ResponseDays is the target response time used for due dates.
	ResponseDays int
}

// DefaultRequestSettings returns the built-in fallbacks.
func DefaultRequestSettings() RequestSettings {
	return RequestSettings{DefaultRequestingCountryID: 1, DefaultCountryCode: "CAR", ResponseDays: 30}
}

// RequestService manages the benefit request lifecycle.
type RequestService struct {
	repo      store.Repository
	claimants *ClaimantRegistry
	audit     AuditRecorder
	settings  RequestSettings
	logger    *logging.SafeLogger
	now       func() time.Time
}

// NewRequestService creates a request service. Zero settings fall back to
// DefaultRequestSettings.
func NewRequestService(repo store.Repository, audit AuditRecorder, settings RequestSettings, logger *logging.SafeLogger) *RequestService {
	defaults := DefaultRequestSettings()
	if settings.DefaultRequestingCountryID <= 0 {
		settings.DefaultRequestingCountryID = defaults.DefaultRequestingCountryID
	}
	if strings.TrimSpace(settings.DefaultCountryCode) == "" {
		settings.DefaultCountryCode = defaults.DefaultCountryCode
	}
	if settings.ResponseDays <= 0 {
		settings.ResponseDays = defaults.ResponseDays
	}
	return &RequestService{
		repo:      repo,
		claimants: NewClaimantRegistry(logger),
		audit:     audit,
		settings:  settings,
		logger:    logger,
		now:       time.Now,
	}
}

// Global request service instance
var RequestServiceInstance *RequestService

// Create registers the claimant if needed and files a new PENDING request,
// all in one transaction.
func (s *RequestService) Create(ctx context.Context, caller models.Caller, in models.CreateRequestInput) (*models.CreateRequestResult, error) {
	ctx, span, cleanup := utils.TraceOperation(ctx, "request.create", map[string]interface{}{
		"caller.id":         caller.UserID,
		"target_country_id": int64(in.TargetCountryID),
	})
	defer cleanup()

	dob, err := in.Validate()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	var (
		requestID     int64
		requestNumber string
		countryCode   string
	)
	err = s.repo.InTx(ctx, func(tx store.Repository) error {
		claimantID, _, err := s.claimants.FindOrCreate(ctx, tx, models.ClaimantInput{
			NationalID: in.NationalID,
			FirstName:  in.FirstName,
			LastName:   in.LastName,
			DOB:        dob,
		})
		if err != nil {
			return err
		}

		requestingCountryID, err := s.requestingCountry(ctx, tx, caller)
		if err != nil {
			return err
		}

		countryCode, err = s.countryCode(ctx, tx, int64(in.TargetCountryID))
		if err != nil {
			return err
		}

		seq, err := tx.NextRequestSequence(ctx, countryCode, now.Year())
		if err != nil {
			return fmt.Errorf("reserve request number: %w", err)
		}
		requestNumber = models.FormatRequestNumber(countryCode, now.Year(), seq)

		requestID, err = tx.InsertRequest(ctx, &models.NewRequest{
			RequestNumber:       requestNumber,
			ClaimantID:          claimantID,
			RequestingCountryID: requestingCountryID,
			TargetCountryID:     int64(in.TargetCountryID),
			BenefitTypeID:       int64(in.BenefitTypeID),
			EmploymentPeriod:    optionalText(in.EmploymentPeriod),
			Description:         optionalText(in.Description),
			Status:              models.StatusPending,
			CreatedAt:           now,
		})
		if err != nil {
			return fmt.Errorf("insert request: %w", err)
		}
		return nil
	})
	if err != nil {
		utils.RecordErrorInSpan(span, err, nil)
		return nil, err
	}

	observability.RequestsCreated.WithLabelValues(countryCode).Inc()
	utils.AddSpanAttribute(span, "request.number", requestNumber)
	s.logger.Info("benefit request created",
		zap.Int64("request_id", requestID),
		zap.String("request_number", requestNumber),
		zap.Int64("caller_id", caller.UserID),
		zap.String("national_id", observability.MaskNationalID(in.NationalID)))

	return &models.CreateRequestResult{
		Message:       "Request created successfully",
		RequestID:     requestID,
		RequestNumber: requestNumber,
		Status:        models.StatusPending,
	}, nil
}

// requestingCountry is the caller's office country, or the configured default.
func (s *RequestService) requestingCountry(ctx context.Context, tx store.Repository, caller models.Caller) (int64, error) {
	if caller.UserID <= 0 {
		return s.settings.DefaultRequestingCountryID, nil
	}
	user, err := tx.GetUserByID(ctx, caller.UserID)
	if errors.Is(err, models.ErrNotFound) {
		return s.settings.DefaultRequestingCountryID, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load caller: %w", err)
	}
	if user.CountryID == nil || *user.CountryID <= 0 {
		return s.settings.DefaultRequestingCountryID, nil
	}
	return *user.CountryID, nil
}

// countryCode is the target country's code, or the configured default when
// the row or its code is missing.
func (s *RequestService) countryCode(ctx context.Context, tx store.Repository, countryID int64) (string, error) {
	code, err := tx.CountryCode(ctx, countryID)
	if errors.Is(err, models.ErrNotFound) {
		code = ""
	} else if err != nil {
		return "", fmt.Errorf("load country code: %w", err)
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return strings.ToUpper(s.settings.DefaultCountryCode), nil
	}
	return code, nil
}

func optionalText(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

// List returns every request, newest first.
func (s *RequestService) List(ctx context.Context) ([]models.RequestRecord, error) {
	ctx, span, cleanup := utils.TraceOperation(ctx, "request.list", nil)
	defer cleanup()

	records, err := s.repo.ListRequests(ctx)
	if err != nil {
		utils.RecordErrorInSpan(span, err, nil)
		return nil, fmt.Errorf("list requests: %w", err)
	}
	now := s.now()
	for i := range records {
		records[i].Decorate(now, s.settings.ResponseDays)
	}
	utils.AddSpanAttribute(span, "request.count", len(records))
	return records, nil
}

// Get returns one request with its benefit type descriptor.
func (s *RequestService) Get(ctx context.Context, id int64) (*models.RequestDetail, error) {
	if id <= 0 {
		return nil, models.NewValidationError("Invalid request id")
	}
	record, err := s.repo.GetRequest(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.NewNotFoundError("Request not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	record.Decorate(s.now(), s.settings.ResponseDays)
	return &models.RequestDetail{
		RequestRecord: *record,
		BenefitType:   models.LookupBenefitType(record.BenefitTypeID),
	}, nil
}

// UpdateStatus sets the status of a request. Only PENDING, RESPONDED and
// CLOSED are accepted; concurrent updates are last-write-wins.
func (s *RequestService) UpdateStatus(ctx context.Context, id int64, raw string) (*models.StatusUpdateResult, error) {
	ctx, span, cleanup := utils.TraceOperation(ctx, "request.update_status", map[string]interface{}{
		"request.id": id,
	})
	defer cleanup()

	if id <= 0 {
		return nil, models.NewValidationError("Invalid request id")
	}
	if strings.TrimSpace(raw) == "" {
		return nil, models.NewValidationError("Missing required fields", "status")
	}
	status := models.NormalizeStatus(raw)
	if !status.Updatable() {
		allowed := make([]string, 0, 3)
		for _, st := range models.UpdatableStatuses() {
			allowed = append(allowed, string(st))
		}
		return nil, models.NewValidationError("Invalid status. Allowed values: " + strings.Join(allowed, ", "))
	}

	err := s.repo.InTx(ctx, func(tx store.Repository) error {
		ok, err := tx.UpdateRequestStatus(ctx, id, status)
		if err != nil {
			return fmt.Errorf("update status: %w", err)
		}
		if !ok {
			return models.NewNotFoundError("Request not found")
		}
		return nil
	})
	if err != nil {
		utils.RecordErrorInSpan(span, err, nil)
		return nil, err
	}

	observability.StatusTransitions.WithLabelValues(string(status)).Inc()
	s.logger.Info("request status updated",
		zap.Int64("request_id", id),
		zap.String("status", string(status)))

	return &models.StatusUpdateResult{
		Message:     "Status updated",
		RequestID:   id,
		Status:      status,
		StatusLabel: status.Label(),
	}, nil
}

// Assign sets the request's assignee and records an ASSIGNMENT audit entry.
// The audit write is best-effort.
func (s *RequestService) Assign(ctx context.Context, caller models.Caller, id, userID int64) (*models.AssignmentResult, error) {
	ctx, span, cleanup := utils.TraceOperation(ctx, "request.assign", map[string]interface{}{
		"request.id":  id,
		"assignee.id": userID,
	})
	defer cleanup()

	if id <= 0 {
		return nil, models.NewValidationError("Invalid request id")
	}
	if userID <= 0 {
		return nil, models.NewValidationError("Missing required fields", "user_id")
	}

	var assignee *models.User
	err := s.repo.InTx(ctx, func(tx store.Repository) error {
		user, err := tx.GetUserByID(ctx, userID)
		if errors.Is(err, models.ErrNotFound) {
			return models.NewNotFoundError("User not found")
		}
		if err != nil {
			return fmt.Errorf("load assignee: %w", err)
		}
		ok, err := tx.AssignRequest(ctx, id, userID)
		if err != nil {
			return fmt.Errorf("assign request: %w", err)
		}
		if !ok {
			return models.NewNotFoundError("Request not found")
		}
		assignee = user
		return nil
	})
	if err != nil {
		utils.RecordErrorInSpan(span, err, nil)
		return nil, err
	}

	actor := caller.UserID
	entityID := id
	recordBestEffort(ctx, s.audit, models.AuditLogEntry{
		UserID:      &actor,
		ActionType:  models.ActionAssignment,
		EntityType:  models.EntityRequest,
		EntityID:    &entityID,
		Description: fmt.Sprintf("Assigned request %d to user %d (%s)", id, userID, assignee.FullName()),
	}, s.logger)

	s.logger.Info("request assigned",
		zap.Int64("request_id", id),
		zap.Int64("assignee_id", userID),
		zap.Int64("caller_id", caller.UserID))

	return &models.AssignmentResult{
		Message:        "Request assigned",
		RequestID:      id,
		AssignedUserID: userID,
		AssignedTo:     assignee.FullName(),
	}, nil
}
