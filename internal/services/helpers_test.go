package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/nis-portal/portal-api/internal/logging"
	"github.com/nis-portal/portal-api/internal/models"
	"github.com/nis-portal/portal-api/internal/store/storetest"
)

var fixedNow = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func newTestRequestService(t *testing.T) (*RequestService, *storetest.MemoryStore) {
	t.Helper()
	repo := storetest.NewMemoryStore()
	repo.SetClock(func() time.Time { return fixedNow })
	svc := NewRequestService(repo, NewAuditService(repo, logging.Logger), RequestSettings{}, logging.Logger)
	svc.now = func() time.Time { return fixedNow }
	return svc, repo
}

func validInput() models.CreateRequestInput {
	return models.CreateRequestInput{
		FirstName:       "Jane",
		LastName:        "Doe",
		DOB:             "1960-01-01",
		NationalID:      "NID1",
		TargetCountryID: 2,
		BenefitTypeID:   1,
	}
}

func seedUser(t *testing.T, repo *storetest.MemoryStore, first, last, email, password string, roleID int64, officeID *int64) int64 {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return repo.SeedUser(models.User{
		FirstName:    first,
		LastName:     last,
		Email:        email,
		PasswordHash: string(hash),
		RoleID:       roleID,
		OfficeID:     officeID,
	})
}

// recordingAudit captures entries and optionally fails every write.
type recordingAudit struct {
	mu      sync.Mutex
	entries []models.AuditLogEntry
	err     error
}

func (r *recordingAudit) Record(ctx context.Context, entry models.AuditLogEntry) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	r.entries = append(r.entries, entry)
	return int64(len(r.entries)), nil
}

var errInjected = errors.New("injected failure")
