package services

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/nis-portal/portal-api/internal/logging"
	"github.com/nis-portal/portal-api/internal/models"
	"github.com/nis-portal/portal-api/internal/store"
)

// MetaService serves the reference lists used by intake forms. Countries and
// benefit types are fixed; roles come from the database and are cached
// after the first successful read.
type MetaService struct {
	repo   store.ReferenceStore
	mutex  sync.RWMutex
	roles  []models.Role
	logger *logging.SafeLogger
}

func NewMetaService(repo store.ReferenceStore, logger *logging.SafeLogger) *MetaService {
	return &MetaService{repo: repo, logger: logger}
}

// Global meta service instance
var MetaServiceInstance *MetaService

// Countries returns the participating agencies.
func (s *MetaService) Countries() []models.Country {
	return append([]models.Country(nil), models.Countries...)
}

// BenefitTypes returns the benefit catalogue.
func (s *MetaService) BenefitTypes() []models.BenefitType {
	return append([]models.BenefitType(nil), models.BenefitTypes...)
}

// Roles returns the roles table. When the table cannot be read or is empty
// the seeded defaults are returned and the next call retries the database.
func (s *MetaService) Roles(ctx context.Context) []models.Role {
	s.mutex.RLock()
	cached := s.roles
	s.mutex.RUnlock()
	if cached != nil {
		return append([]models.Role(nil), cached...)
	}

	roles, err := s.repo.ListRoles(ctx)
	if err != nil {
		s.logger.Warn("failed to load roles, using defaults", zap.Error(err))
		return append([]models.Role(nil), models.DefaultRoles...)
	}
	if len(roles) == 0 {
		s.logger.Warn("roles table is empty, using defaults")
		return append([]models.Role(nil), models.DefaultRoles...)
	}

	s.mutex.Lock()
	if s.roles == nil {
		s.roles = roles
		s.logger.Debug("roles cached", zap.Int("count", len(roles)))
	}
	cached = s.roles
	s.mutex.Unlock()
	return append([]models.Role(nil), cached...)
}
