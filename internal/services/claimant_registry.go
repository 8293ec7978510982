package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/nis-portal/portal-api/internal/logging"
	"github.com/nis-portal/portal-api/internal/models"
	"github.com/nis-portal/portal-api/internal/observability"
	"github.com/nis-portal/portal-api/internal/store"
)

// ClaimantRegistry resolves claimants by national id. The first request
// naming a national id creates the claimant; later requests reuse it and
// their names and date of birth are ignored.
type ClaimantRegistry struct {
	logger *logging.SafeLogger
}

func NewClaimantRegistry(logger *logging.SafeLogger) *ClaimantRegistry {
	return &ClaimantRegistry{logger: logger}
}

// FindOrCreate must be given the transaction-bound store of the caller's
// unit of work. It reports whether a new claimant was inserted.
func (r *ClaimantRegistry) FindOrCreate(ctx context.Context, repo store.ClaimantStore, in models.ClaimantInput) (int64, bool, error) {
	nationalID := strings.TrimSpace(in.NationalID)

	existing, err := repo.FindClaimantByNationalID(ctx, nationalID)
	if err == nil {
		r.logger.Debug("reusing claimant",
			zap.Int64("claimant_id", existing.ID),
			zap.String("national_id", observability.MaskNationalID(nationalID)))
		return existing.ID, false, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return 0, false, fmt.Errorf("find claimant: %w", err)
	}

	id, created, err := repo.InsertClaimant(ctx, &models.Claimant{
		FirstName:  strings.TrimSpace(in.FirstName),
		LastName:   strings.TrimSpace(in.LastName),
		DOB:        in.DOB,
		NationalID: nationalID,
	})
	if err != nil {
		return 0, false, fmt.Errorf("insert claimant: %w", err)
	}
	if !created {
		r.logger.Debug("claimant registered concurrently, reusing",
			zap.Int64("claimant_id", id),
			zap.String("national_id", observability.MaskNationalID(nationalID)))
		return id, false, nil
	}
	r.logger.Info("claimant registered",
		zap.Int64("claimant_id", id),
		zap.String("national_id", observability.MaskNationalID(nationalID)))
	return id, true, nil
}
